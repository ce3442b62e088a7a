// Package child is the race-free wait+kill wrapper around a spawned
// process.Handle (component B of the engine, spec §4.B): any number of
// goroutines may call Wait, and any number may call Kill, concurrently.
//
// This is a close port of original_source/src/child.rs's Child/SharedChild:
// a {NotWaiting, Waiting, Exited} state machine guarded by a mutex and
// condition variable. Exactly one goroutine performs the real blocking
// wait at a time; the rest either observe Exited immediately or block on
// the condition variable until the waiter finishes.
package child

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bogen85/cmdforge/process"
)

type state int

const (
	notWaiting state = iota
	waiting
	exited
)

// Child wraps a process.Handle with the wait-state machine.
type Child struct {
	handle process.Handle

	mu     sync.Mutex
	cond   *sync.Cond
	st     state
	result process.ExitResult
}

// Spawn starts a child process and wraps it.
func Spawn(spec process.Spec) (*Child, error) {
	h, err := process.Spawn(spec)
	if err != nil {
		return nil, err
	}
	c := &Child{handle: h, st: notWaiting}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// Pid returns the wrapped child's process id.
func (c *Child) Pid() int { return c.handle.Pid() }

// Wait blocks until the child exits and returns its outcome. Safe to call
// from multiple goroutines concurrently, and safe to race with Kill.
func (c *Child) Wait() (process.ExitResult, error) {
	c.mu.Lock()
	for c.st == waiting {
		c.cond.Wait()
	}
	if c.st == exited {
		r := c.result
		c.mu.Unlock()
		return r, nil
	}

	// st == notWaiting: either nobody has waited yet, or a previous waiter
	// failed. We're responsible for the blocking wait. Mark Waiting and
	// release the lock before blocking so Kill/TryWait can proceed.
	c.st = waiting
	c.mu.Unlock()

	res, err := c.handle.Wait()

	c.mu.Lock()
	if err != nil {
		c.st = notWaiting
		c.cond.Broadcast()
		c.mu.Unlock()
		return process.ExitResult{}, err
	}
	c.st = exited
	c.result = res
	c.cond.Broadcast()
	c.mu.Unlock()
	return res, nil
}

// TryWait reports the child's outcome without blocking: nil, nil if it's
// still running.
func (c *Child) TryWait() (*process.ExitResult, error) {
	c.mu.Lock()
	if c.st == exited {
		r := c.result
		c.mu.Unlock()
		return &r, nil
	}
	c.mu.Unlock()
	return c.handle.TryWait()
}

// Kill terminates the child. A no-op returning nil if it has already
// exited, so repeated calls (e.g. from Action.Stop being called twice) are
// safe.
func (c *Child) Kill() error {
	c.mu.Lock()
	if c.st == exited {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := c.handle.Kill(); err != nil {
		logrus.WithError(err).WithField("pid", c.Pid()).Debug("child: kill failed")
		return err
	}
	return nil
}

// Suspend and Resume pause/unpause the child process.
func (c *Child) Suspend() error { return c.handle.Suspend() }
func (c *Child) Resume() error  { return c.handle.Resume() }
