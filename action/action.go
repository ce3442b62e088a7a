// Package action is the bounded worker pool (component D, spec §4.D): it
// runs a plan's invocations across a fixed number of slots, tracks
// progress, and on any invocation's failure (unless ignore_panic is set)
// stops every other slot and surfaces the first failure.
//
// Grounded in original_source/src/action.rs's Action::run (the
// slot/remaining/cond loop) and in
// dot.go/podman-rpc-supervisor/supervisor/zombie-reaping-supervisor's
// ordered-shutdown pattern for Stop.
package action

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bogen85/cmdforge/child"
	"github.com/bogen85/cmdforge/errs"
	"github.com/bogen85/cmdforge/plan"
	"github.com/bogen85/cmdforge/stdio"
)

// Action runs one expanded plan across a bounded set of worker slots.
type Action struct {
	ignorePanic bool
	sink        *stdio.Sink

	mu        sync.Mutex
	cond      *sync.Cond
	remaining []plan.Invocation
	slots     []*child.Child // slots[i] is worker i's in-flight child, or nil
	finished  int
	total     int

	outcome    error
	outcomeSet bool
	stopped    bool
	started    bool
	done       bool
}

// New builds an Action from cfg: it expands the plan and opens the shared
// stdio sink, but does not start running anything (call Start for that).
func New(cfg plan.Config) (*Action, error) {
	invocations, err := plan.Build(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := stdio.Open(cfg.Pipe)
	if err != nil {
		return nil, errs.New(errs.Other, "opening stdio sink failed", err)
	}

	a := &Action{
		ignorePanic: cfg.IgnorePanic,
		sink:        sink,
		remaining:   invocations,
		slots:       make([]*child.Child, cfg.ThreadsCount),
		total:       len(invocations),
	}
	a.cond = sync.NewCond(&a.mu)
	return a, nil
}

// Start launches the worker goroutines. Must be called at most once.
func (a *Action) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	n := len(a.slots)
	a.mu.Unlock()

	for i := 0; i < n; i++ {
		go a.workerLoop(i)
	}
}

// workerLoop repeatedly pulls and runs invocations in slot i until the plan
// is exhausted, the pool is stopped, or (without ignore_panic) a failure
// occurs anywhere in the pool.
func (a *Action) workerLoop(i int) {
	for {
		inv, ok := a.next()
		if !ok {
			break
		}
		if err := a.once(i, inv); err != nil {
			a.fail(err)
			if !a.ignorePanic {
				break
			}
		}
	}

	a.mu.Lock()
	a.slots[i] = nil
	a.cond.Broadcast()
	a.mu.Unlock()
}

// next pops the next invocation for slot i to run, or reports false if the
// pool is stopped or the plan is exhausted.
func (a *Action) next() (plan.Invocation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || len(a.remaining) == 0 {
		return plan.Invocation{}, false
	}
	inv := a.remaining[0]
	a.remaining = a.remaining[1:]
	return inv, true
}

// once spawns and waits for a single invocation in slot i.
func (a *Action) once(i int, inv plan.Invocation) error {
	stdout, stderr := a.sink.Streams()
	c, err := child.Spawn(processSpecFor(inv, stdout, stderr))
	if err != nil {
		return errs.New(errs.ExecutePanic, "spawn failed for "+inv.Program, err)
	}

	a.mu.Lock()
	a.slots[i] = c
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		// Stop ran while this child was being spawned and could not see it.
		_ = c.Kill()
	}

	res, err := c.Wait()

	a.mu.Lock()
	a.slots[i] = nil
	a.finished++
	a.cond.Broadcast()
	a.mu.Unlock()

	if err != nil {
		return errs.New(errs.ExecutePanic, "wait failed for "+inv.Program, err)
	}
	if !res.Success() {
		return errs.New(errs.ExecutePanic, "non-zero exit for "+inv.Program, nil)
	}
	return nil
}

// fail records the pool's first failure and triggers a stop of every other
// slot. With ignore_panic set, spec §4.D says to continue past a failing
// invocation rather than fail the whole run, so no outcome is recorded and
// Stop is not called.
func (a *Action) fail(err error) {
	a.mu.Lock()
	if a.ignorePanic {
		a.mu.Unlock()
		return
	}
	if !a.outcomeSet {
		a.outcome = err
		a.outcomeSet = true
	}
	a.mu.Unlock()

	if stopErr := a.Stop(); stopErr != nil {
		logrus.WithError(stopErr).Warn("action: stop after failure hit an error of its own")
	}
}

// Stop drains the remaining queue and kills every in-flight child. Safe to
// call more than once, and safe to call from outside the pool (e.g. on
// SIGINT) concurrently with the workers.
func (a *Action) Stop() error {
	a.mu.Lock()
	a.stopped = true
	a.remaining = nil
	live := make([]*child.Child, 0, len(a.slots))
	for _, c := range a.slots {
		if c != nil {
			live = append(live, c)
		}
	}
	a.mu.Unlock()

	var first error
	for _, c := range live {
		if err := c.Kill(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Progress reports (finished, total) invocations, where finished only
// counts invocations whose child has actually exited — a running child
// never counts early, per spec §4.D's progress accounting.
func (a *Action) Progress() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished, a.total
}

// Wait blocks until every slot has gone idle (the plan is exhausted or the
// pool was stopped), closes the stdio sink, and returns the pool's first
// recorded failure, if any.
func (a *Action) Wait() error {
	a.mu.Lock()
	for !a.allIdle() {
		a.cond.Wait()
	}
	a.done = true
	outcome := a.outcome
	a.mu.Unlock()

	if err := a.sink.Close(); err != nil && outcome == nil {
		outcome = errs.New(errs.Other, "closing stdio sink failed", err)
	}
	return outcome
}

// allIdle must be called with a.mu held.
func (a *Action) allIdle() bool {
	if len(a.remaining) > 0 && !a.stopped {
		return false
	}
	for _, c := range a.slots {
		if c != nil {
			return false
		}
	}
	return true
}

// Close releases the stdio sink directly, for callers that abandon an
// Action without ever calling Wait (e.g. the caller never called Start). Safe to call alongside Wait; stdio.Sink.Close is
// idempotent-safe to call twice in practice since os.File.Close on an
// already-closed file simply errors, which this discards.
func (a *Action) Close() {
	_ = a.sink.Close()
}
