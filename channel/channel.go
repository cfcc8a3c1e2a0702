// Package channel provides synchronous rendezvous channels with an
// optional bounded buffer, expressed as events so that puts and gets
// compose with choice, timeouts and cancellation.
package channel

import (
	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
)

type waiter[T any] struct {
	u       *fiber.Suspension
	tok     any
	wrap    op.WrapFn
	val     T // senders only
	removed bool
}

// live reports whether the node can still complete: not tombstoned and
// its performance has not committed elsewhere.
func (w *waiter[T]) live() bool {
	return !w.removed && w.u.Waiting()
}

// Channel is a rendezvous point between putters and getters. With a
// zero capacity every transfer pairs a putter and a getter in the same
// turn; with capacity k puts complete immediately while fewer than k
// values are buffered.
type Channel[T any] struct {
	cap  int
	buf  []T
	putq []*waiter[T]
	getq []*waiter[T]
}

// New creates a channel with the given buffer capacity; zero means
// unbuffered rendezvous.
func New[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{cap: capacity}
}

// popGetter removes and returns the oldest live getter.
func (c *Channel[T]) popGetter() *waiter[T] {
	for len(c.getq) > 0 {
		g := c.getq[0]
		c.getq = c.getq[1:]
		if g.live() {
			g.removed = true
			return g
		}
	}
	return nil
}

// popPutter removes and returns the oldest live putter.
func (c *Channel[T]) popPutter() *waiter[T] {
	for len(c.putq) > 0 {
		p := c.putq[0]
		c.putq = c.putq[1:]
		if p.live() {
			p.removed = true
			return p
		}
	}
	return nil
}

// PutOp returns an event that commits once v has been handed to a
// getter or accepted by the buffer.
func (c *Channel[T]) PutOp(v T) op.Op {
	return op.Guard(func() (op.Op, error) {
		var n *waiter[T]
		try := func() ([]any, bool) {
			if g := c.popGetter(); g != nil {
				// Deliver directly; the getter resumes within this
				// turn, completing both sides of the rendezvous.
				g.u.CompleteAndRun(g.tok, g.wrap, []any{v})
				return nil, true
			}
			if c.cap > 0 && len(c.buf) < c.cap {
				c.buf = append(c.buf, v)
				return nil, true
			}
			return nil, false
		}
		block := func(u *fiber.Suspension, tok any, wrap op.WrapFn) {
			n = &waiter[T]{u: u, tok: tok, wrap: wrap, val: v}
			c.putq = append(c.putq, n)
		}
		prim := op.Primitive(try, block)
		return prim.WrapAbort(func() {
			if n != nil {
				n.removed = true
			}
		}), nil
	})
}

// GetOp returns an event that commits a value taken from the buffer or
// handed over by a putter.
func (c *Channel[T]) GetOp() op.Op {
	return op.Guard(func() (op.Op, error) {
		var n *waiter[T]
		try := func() ([]any, bool) {
			if len(c.buf) > 0 {
				v := c.buf[0]
				c.buf = c.buf[1:]
				// Room opened up; promote the oldest blocked putter.
				if p := c.popPutter(); p != nil {
					c.buf = append(c.buf, p.val)
					p.u.CompleteAndRun(p.tok, p.wrap, nil)
				}
				return []any{v}, true
			}
			if p := c.popPutter(); p != nil {
				v := p.val
				p.u.CompleteAndRun(p.tok, p.wrap, nil)
				return []any{v}, true
			}
			return nil, false
		}
		block := func(u *fiber.Suspension, tok any, wrap op.WrapFn) {
			n = &waiter[T]{u: u, tok: tok, wrap: wrap}
			c.getq = append(c.getq, n)
		}
		prim := op.Primitive(try, block)
		return prim.WrapAbort(func() {
			if n != nil {
				n.removed = true
			}
		}), nil
	})
}

// Put performs PutOp without scope interposition.
func (c *Channel[T]) Put(v T) error {
	_, err := op.Perform(c.PutOp(v))
	return err
}

// Get performs GetOp without scope interposition.
func (c *Channel[T]) Get() (T, error) {
	vals, err := op.Perform(c.GetOp())
	if err != nil {
		var zero T
		return zero, err
	}
	return vals[0].(T), nil
}

// Buffered reports the number of values currently buffered.
func (c *Channel[T]) Buffered() int { return len(c.buf) }

// Cap reports the channel's buffer capacity.
func (c *Channel[T]) Cap() int { return c.cap }

// PendingPuts counts senders that are still blocked.
func (c *Channel[T]) PendingPuts() int { return c.countLive(c.putq) }

// PendingGets counts receivers that are still blocked.
func (c *Channel[T]) PendingGets() int { return c.countLive(c.getq) }

func (c *Channel[T]) countLive(q []*waiter[T]) int {
	n := 0
	for _, w := range q {
		if w.live() {
			n++
		}
	}
	return n
}
