// Package blocking bridges blocking Go calls into the cooperative
// runtime. A call runs on its own goroutine — the one sanctioned use of
// real threads — and its result is marshalled back onto the scheduler,
// surfacing to fibers as an ordinary event that composes with choice
// and cancellation.
package blocking

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/sched"
)

// DefaultLimit bounds in-flight calls when no limit is given.
const DefaultLimit = 64

// Pool runs blocking calls with a bounded number in flight.
type Pool struct {
	sched *sched.Scheduler
	sem   *semaphore.Weighted
}

// NewPool creates a pool bound to the scheduler. limit <= 0 uses
// DefaultLimit.
func NewPool(s *sched.Scheduler, limit int64) *Pool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Pool{sched: s, sem: semaphore.NewWeighted(limit)}
}

// CallOp returns an event that commits (value, error) once fn has run
// to completion on a background goroutine. fn is started only when the
// performance blocks; if another arm commits on the fast path, fn is not
// run. Losing the performance after fn has started does not stop fn; its
// result is simply discarded when it lands.
func (p *Pool) CallOp(fn func() (any, error)) op.Op {
	return op.Guard(func() (op.Op, error) {
		try := func() ([]any, bool) { return nil, false }
		block := func(u *fiber.Suspension, tok any, wrap op.WrapFn) {
			task := u.CompleteTask(tok, wrap, nil)
			go func() {
				if err := p.sem.Acquire(context.Background(), 1); err != nil {
					p.sched.Inject(completion{task, nil, err})
					return
				}
				defer p.sem.Release(1)
				v, err := fn()
				p.sched.Inject(completion{task, v, err})
			}()
		}
		return op.Primitive(try, block), nil
	})
}

// completion delivers a finished call's result inside a scheduler
// turn.
type completion struct {
	task *fiber.CompleteTask
	v    any
	err  error
}

func (c completion) Run() {
	c.task.RunWith([]any{c.v, c.err})
}

// Call performs CallOp and unpacks the (value, error) pair.
func (p *Pool) Call(fn func() (any, error)) (any, error) {
	vals, err := op.Perform(p.CallOp(fn))
	if err != nil {
		return nil, err
	}
	if e := vals[1]; e != nil {
		return vals[0], e.(error)
	}
	return vals[0], nil
}
