package fiber

import (
	"github.com/jangala-dev/fibers/sched"
)

// current is the active fiber. It is a plain cell, not an atomic: every
// hand-off synchronizes through a channel, and only the active side
// touches it.
var current *Fiber

// Current returns the fiber that is executing, or nil when the
// scheduler (or no runtime at all) holds the baton.
func Current() *Fiber { return current }

// resumption carries the outcome of a suspension back into the fiber.
type resumption struct {
	tok  any
	wrap func([]any) []any
	vals []any
	err  error
}

// Fiber is a suspendable computation bound to a scheduler. The scope
// reference is opaque here; the scope package owns its meaning.
type Fiber struct {
	sched  *sched.Scheduler
	scope  any
	resume chan resumption
	yield  chan struct{}
}

// Spawn creates a fiber running body under the given ambient scope and
// schedules its first resumption. body runs on the scheduler's next
// turn.
func Spawn(s *sched.Scheduler, scope any, body func(*Fiber)) *Fiber {
	f := &Fiber{
		sched:  s,
		scope:  scope,
		resume: make(chan resumption),
		yield:  make(chan struct{}),
	}
	go func() {
		<-f.resume
		defer func() { f.yield <- struct{}{} }()
		body(f)
	}()
	s.Schedule(sched.TaskFunc(func() { f.doResume(resumption{}) }))
	return f
}

// Scheduler returns the fiber's home scheduler.
func (f *Fiber) Scheduler() *sched.Scheduler { return f.sched }

// Scope returns the ambient scope reference installed at spawn.
func (f *Fiber) Scope() any { return f.scope }

// doResume hands the baton to f and blocks until f suspends or
// finishes. It may be called from the scheduler goroutine or from
// another fiber that currently holds the baton, which is how a
// rendezvous can complete both sides within a single turn.
func (f *Fiber) doResume(r resumption) {
	prev := current
	current = f
	f.resume <- r
	<-f.yield
	current = prev
}

// suspendWait yields the baton and blocks the fiber until a Suspension
// completes it. Must be called by the fiber itself.
func (f *Fiber) suspendWait() resumption {
	f.yield <- struct{}{}
	return <-f.resume
}
