//go:build unix

package process

import (
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// unixHandle identifies a child by PID, as spec §4.A describes for
// POSIX-like systems. All reaping goes through the package-level reaper
// (reaper_unix.go); this type only registers with it and blocks on a
// per-child channel, which gives the "exactly one thread performs the
// blocking reap" property spec §4.B asks for without needing cgo's
// waitid(WNOWAIT) (see SPEC_FULL.md §4.A realization note).
type unixHandle struct {
	pid int

	mu     sync.Mutex
	exited bool
	result ExitResult
	done   chan struct{}
}

func spawnPlatform(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	// New process group so Kill/Suspend/Resume can be extended to the
	// child's own descendants by signalling -pid, matching
	// zombie-reaping-supervisor's signalGroup pattern.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid
	// The reaper owns every blocking reap from here on; releasing tells
	// os/exec to stop tracking this PID so it never competes with the
	// reaper's Wait4(-1, ...) calls.
	_ = cmd.Process.Release()

	h := &unixHandle{pid: pid, done: make(chan struct{})}
	globalReaper.register(pid, h)
	return h, nil
}

func (h *unixHandle) Pid() int { return h.pid }

// deliver is called by the reaper exactly once, when the child's exit has
// been observed and reaped.
func (h *unixHandle) deliver(res ExitResult) {
	h.mu.Lock()
	h.exited = true
	h.result = res
	h.mu.Unlock()
	close(h.done)
}

func (h *unixHandle) Wait() (ExitResult, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, nil
}

func (h *unixHandle) TryWait() (*ExitResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return nil, nil
	}
	r := h.result
	return &r, nil
}

func (h *unixHandle) Kill() error {
	return globalReaper.signalIfAlive(h.pid, unix.SIGKILL)
}

func (h *unixHandle) Suspend() error {
	return globalReaper.signalIfAlive(h.pid, unix.SIGSTOP)
}

func (h *unixHandle) Resume() error {
	return globalReaper.signalIfAlive(h.pid, unix.SIGCONT)
}
