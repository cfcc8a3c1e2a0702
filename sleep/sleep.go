// Package sleep exposes the timer wheel as events: operations that
// become ready after a delay or at an absolute monotonic time.
package sleep

import (
	"time"

	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
)

// Op returns an event ready d after the performance blocks. A zero or
// negative d commits without suspending.
func Op(d time.Duration) op.Op {
	try := func() ([]any, bool) {
		return nil, d <= 0
	}
	block := func(u *fiber.Suspension, tok any, wrap op.WrapFn) {
		s := u.Fiber().Scheduler()
		s.ScheduleAfter(d, u.CompleteTask(tok, wrap, nil))
	}
	return op.Primitive(try, block)
}

// UntilOp returns an event ready once the monotonic clock reaches t.
// A time at or before now commits without suspending.
func UntilOp(t time.Duration) op.Op {
	try := func() ([]any, bool) {
		f := fiber.Current()
		return nil, f != nil && f.Scheduler().Now() >= t
	}
	block := func(u *fiber.Suspension, tok any, wrap op.WrapFn) {
		s := u.Fiber().Scheduler()
		s.ScheduleAt(t, u.CompleteTask(tok, wrap, nil))
	}
	return op.Primitive(try, block)
}
