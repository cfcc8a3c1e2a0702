package pollio

import (
	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/sched"
)

// Token is a stable registration handle. Unlink is O(1), idempotent,
// and reports whether this call removed the last waiter for the key,
// in which case external interest has been demoted.
type Token interface {
	Unlink() bool
}

// Waitable is the uniform pattern for readiness-style events: a
// non-blocking probe plus a registration that fires a task when
// progress may be possible. Anything implementing it (fd readiness,
// pidfd exit, custom hardware) becomes an event via Op.
type Waitable interface {
	Step() ([]any, bool)
	Register(task sched.Task) Token
}

// Op turns a Waitable into an event. A losing arm unlinks its
// registration, so abandoned interest never accumulates.
func Op(w Waitable) op.Op {
	return op.Guard(func() (op.Op, error) {
		var tok Token
		prim := op.Primitive(
			w.Step,
			func(u *fiber.Suspension, t any, wrap op.WrapFn) {
				tok = w.Register(u.CompleteTask(t, wrap, nil))
			},
		)
		return prim.WrapAbort(func() {
			if tok != nil {
				tok.Unlink()
			}
		}), nil
	})
}

// fdToken wraps a waitset token so that unlinking the last waiter also
// demotes the backend's interest mask.
type fdToken struct {
	io     *IO
	fd     int
	unlink func() bool
}

func (t *fdToken) Unlink() bool {
	emptied := t.unlink()
	if emptied {
		t.io.updateMask(t.fd)
	}
	return emptied
}

type fdReadable struct {
	io *IO
	fd int
}

func (r fdReadable) Step() ([]any, bool) { return nil, false }

func (r fdReadable) Register(task sched.Task) Token {
	tok := r.io.rd.Add(r.fd, task)
	r.io.updateMask(r.fd)
	return &fdToken{io: r.io, fd: r.fd, unlink: tok.Unlink}
}

type fdWritable struct {
	io *IO
	fd int
}

func (w fdWritable) Step() ([]any, bool) { return nil, false }

func (w fdWritable) Register(task sched.Task) Token {
	tok := w.io.wr.Add(w.fd, task)
	w.io.updateMask(w.fd)
	return &fdToken{io: w.io, fd: w.fd, unlink: tok.Unlink}
}

// WaitReadableOp returns an event ready when fd is readable.
func (io *IO) WaitReadableOp(fd int) op.Op {
	return Op(fdReadable{io: io, fd: fd})
}

// WaitWritableOp returns an event ready when fd is writable.
func (io *IO) WaitWritableOp(fd int) op.Op {
	return Op(fdWritable{io: io, fd: fd})
}
