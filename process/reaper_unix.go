//go:build unix

package process

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// reaper centralizes every blocking(-ish) reap in the process, the same
// shape as dot.go/podman-rpc-supervisor/supervisor/zombie-reaping-supervisor's
// registerPid/deliverOrStash/preReaped, reimplemented with
// golang.org/x/sys/unix.Wait4(-1, ..., WNOHANG, ...) instead of a cgo
// waitid(WNOWAIT) call. Because this is the only code in the process that
// ever calls Wait4, a PID can never be reaped out from under a concurrent
// Kill: signalIfAlive and drain serialize through the same mutex.
type reaper struct {
	mu        sync.Mutex
	live      map[int]*unixHandle
	preReaped map[int]ExitResult
}

var globalReaper = newReaper()

func newReaper() *reaper {
	r := &reaper{
		live:      make(map[int]*unixHandle),
		preReaped: make(map[int]ExitResult),
	}
	sigchld := make(chan os.Signal, 16)
	signal.Notify(sigchld, unix.SIGCHLD)
	go r.loop(sigchld)
	return r
}

// register associates pid with h so a future exit is delivered to it. If
// the child already exited before register ran (the pre-reap race noted in
// spec §9), the stashed result is delivered immediately.
func (r *reaper) register(pid int, h *unixHandle) {
	r.mu.Lock()
	if pre, ok := r.preReaped[pid]; ok {
		delete(r.preReaped, pid)
		r.mu.Unlock()
		h.deliver(pre)
		return
	}
	r.live[pid] = h
	r.mu.Unlock()
}

// signalIfAlive sends sig to pid, but only while the reaper still considers
// it live. Once the reaper has reaped a pid, the OS may reuse it for an
// unrelated process; checking "live" under the reaper's own mutex (the same
// one drain uses to remove a pid) is what keeps this race-free.
func (r *reaper) signalIfAlive(pid int, sig unix.Signal) error {
	r.mu.Lock()
	_, alive := r.live[pid]
	r.mu.Unlock()
	if !alive {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

func (r *reaper) drain() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		var res ExitResult
		switch {
		case status.Exited():
			res.Code = status.ExitStatus()
		case status.Signaled():
			sig := status.Signal()
			res.Signaled = true
			res.Signal = int(sig)
			res.Code = 128 + int(sig)
		default:
			// Without WUNTRACED/WCONTINUED, Wait4 only reports real exits.
			continue
		}

		r.mu.Lock()
		h, ok := r.live[pid]
		if ok {
			delete(r.live, pid)
		} else {
			r.preReaped[pid] = res
		}
		r.mu.Unlock()

		if ok {
			h.deliver(res)
		} else {
			logrus.WithField("pid", pid).Debug("process: reaped exit for a pid nobody registered yet")
		}
	}
}

// loop drains on every SIGCHLD and, as a backstop against a missed signal
// (e.g. during the brief registration window), on a one-second tick.
func (r *reaper) loop(sigchld <-chan os.Signal) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigchld:
			r.drain()
		case <-ticker.C:
			r.drain()
		}
	}
}
