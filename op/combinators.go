package op

import (
	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/sched"
)

// Always returns an event that is always ready, committing the given
// values.
func Always(vals ...any) Op {
	try := func() ([]any, bool) { return vals, true }
	block := func(u *fiber.Suspension, tok any, wrap WrapFn) {
		u.Complete(tok, wrap, vals)
	}
	return Primitive(try, block)
}

// Never returns an event that never becomes ready.
func Never() Op {
	try := func() ([]any, bool) { return nil, false }
	block := func(u *fiber.Suspension, tok any, wrap WrapFn) {}
	return Primitive(try, block)
}

// Race is choice under its common name: commit to whichever event is
// ready first.
func Race(ops ...Op) Op { return Choice(ops...) }

// FirstReady is an alias for Choice kept for symmetry with Race.
func FirstReady(ops ...Op) Op { return Choice(ops...) }

// Named attaches a stable branch label to an event by prefixing its
// committed values with label, so a choice's winner can be identified.
func Named(label any, o Op) Op {
	return o.Wrap(func(vals []any) []any {
		return append([]any{label}, vals...)
	})
}

// NamedChoice builds a choice over labelled arms. Winner values arrive
// prefixed with the arm's label.
func NamedChoice(arms map[any]Op) Op {
	ops := make([]Op, 0, len(arms))
	for label, o := range arms {
		ops = append(ops, Named(label, o))
	}
	return Choice(ops...)
}

// BooleanChoice races a against b; the committed values are prefixed
// with true when a won and false when b won.
func BooleanChoice(a, b Op) Op {
	return Choice(Named(true, a), Named(false, b))
}

// OrElse biases a choice against fallback: the fallback arm is never
// ready on the fast path, so body commits whenever it can commit
// immediately; otherwise the performance blocks, with the fallback arm
// scheduling itself for the very next turn. The
// fallback arm commits fallback()'s results.
func OrElse(body Op, fallback func() []any) Op {
	later := Primitive(
		func() ([]any, bool) { return nil, false },
		func(u *fiber.Suspension, tok any, wrap WrapFn) {
			u.Fiber().Scheduler().Schedule(sched.TaskFunc(func() {
				if u.Waiting() {
					u.CompleteAndRun(tok, wrap, fallback())
				}
			}))
		},
	)
	return Choice(body, later)
}

// Bracket acquires a resource per performance, builds the inner event
// over it, and guarantees release exactly once: on the commit path with
// aborted=false, or on the abort path with aborted=true when the inner
// event loses. Acquisition failures surface from Perform as errors.
func Bracket(
	acquire func() (any, error),
	release func(res any, aborted bool),
	use func(res any) Op,
) Op {
	return Guard(func() (Op, error) {
		res, err := acquire()
		if err != nil {
			return Op{}, err
		}
		inner := use(res).Wrap(func(vals []any) []any {
			release(res, false)
			return vals
		})
		return inner.WrapAbort(func() {
			release(res, true)
		}), nil
	})
}
