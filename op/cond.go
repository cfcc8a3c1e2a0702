package op

import "github.com/jangala-dev/fibers/fiber"

// Cond is a one-shot, signal-all rendezvous. It carries nack and abort
// notifications between the arms of a choice, and is useful on its own
// as a latch that fibers can wait on as an event.
type Cond struct {
	triggered bool
	abort     func()
	waiters   []condWaiter
}

type condWaiter struct {
	u    *fiber.Suspension
	tok  any
	wrap WrapFn
}

// NewCond creates an untriggered Cond.
func NewCond() *Cond { return &Cond{} }

func newCondAbort(fn func()) *Cond { return &Cond{abort: fn} }

// Triggered reports whether Signal has been called.
func (c *Cond) Triggered() bool { return c.triggered }

// Signal triggers the cond: the abort handler (if any) runs, and every
// waiter that is still waiting is completed. Signal is idempotent;
// waiters wake at most once and the abort handler runs at most once.
func (c *Cond) Signal() {
	if c.triggered {
		return
	}
	c.triggered = true
	if fn := c.abort; fn != nil {
		c.abort = nil
		fn()
	}
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		if w.u.Waiting() {
			w.u.Complete(w.tok, w.wrap, nil)
		}
	}
}

// WaitOp returns an event that is ready once the cond has been
// signalled. It commits no values.
func (c *Cond) WaitOp() Op {
	try := func() ([]any, bool) {
		return nil, c.triggered
	}
	block := func(u *fiber.Suspension, tok any, wrap WrapFn) {
		if c.triggered {
			u.Complete(tok, wrap, nil)
			return
		}
		// Long-lived conds (a scope's not-ok) accumulate waiters from
		// performances that committed elsewhere; prune periodically.
		if len(c.waiters)%32 == 31 {
			live := c.waiters[:0]
			for _, w := range c.waiters {
				if w.u.Waiting() {
					live = append(live, w)
				}
			}
			c.waiters = live
		}
		c.waiters = append(c.waiters, condWaiter{u: u, tok: tok, wrap: wrap})
	}
	return Primitive(try, block)
}
