package op

import (
	"errors"

	"github.com/jangala-dev/fibers/fiber"
)

const Namespace = "op"

var (
	// ErrPerformOutsideFiber reports a contract violation: performing
	// an event from code not running inside a fiber.
	ErrPerformOutsideFiber = errors.New(Namespace + ": perform outside a fiber")
)

// TryFn probes a primitive without blocking. It returns the committed
// values and true when the primitive is ready.
type TryFn func() ([]any, bool)

// BlockFn installs a primitive's interest in a future completion. It
// must arrange for the suspension to be completed with exactly the
// given token and wrap once the primitive's condition occurs.
type BlockFn func(u *fiber.Suspension, tok any, wrap WrapFn)

// WrapFn maps the values committed by an event. A nil WrapFn is the
// identity.
type WrapFn func([]any) []any

type kind uint8

const (
	kindPrim kind = iota
	kindChoice
	kindGuard
	kindWithNack
	kindWrap
	kindAbort
)

// Op is a first-class event. The zero value is not a valid event; use
// the constructors.
type Op struct {
	kind  kind
	try   TryFn              // kindPrim
	block BlockFn            // kindPrim
	subs  []Op               // kindChoice
	build func() (Op, error) // kindGuard
	nack  func(Op) Op        // kindWithNack
	inner *Op                // kindWrap, kindAbort
	wrap  WrapFn             // kindWrap
	abort func()             // kindAbort
}

// Primitive creates a base event from a non-blocking probe and an
// interest-installing block function.
func Primitive(try TryFn, block BlockFn) Op {
	return Op{kind: kindPrim, try: try, block: block}
}

// Choice creates an event that commits to exactly one of the given
// events. Nested choices are flattened eagerly; a choice of one event
// is that event. A choice of zero events is a contract violation.
func Choice(ops ...Op) Op {
	if len(ops) == 0 {
		panic(Namespace + ": choice requires at least one event")
	}
	if len(ops) == 1 {
		return ops[0]
	}
	flat := make([]Op, 0, len(ops))
	for _, o := range ops {
		if o.kind == kindChoice {
			flat = append(flat, o.subs...)
		} else {
			flat = append(flat, o)
		}
	}
	return Op{kind: kindChoice, subs: flat}
}

// Guard defers building an event until each synchronization attempt,
// letting the builder allocate per-performance state. A builder error
// aborts the performance and surfaces from Perform.
func Guard(build func() (Op, error)) Op {
	return Op{kind: kindGuard, build: build}
}

// WithNack is like Guard, but the builder also receives a
// negative-acknowledgement event that becomes ready if and only if the
// built event loses the performance.
func WithNack(build func(nack Op) Op) Op {
	return Op{kind: kindWithNack, nack: build}
}

// Wrap returns an event that commits o's values mapped through fn. The
// mapper runs in the performing fiber, after commit.
func (o Op) Wrap(fn WrapFn) Op {
	inner := o
	return Op{kind: kindWrap, inner: &inner, wrap: fn}
}

// WrapAbort returns an event that additionally invokes fn if and only
// if this event loses the performance.
func (o Op) WrapAbort(fn func()) Op {
	inner := o
	return Op{kind: kindAbort, inner: &inner, abort: fn}
}

// leaf is a compiled primitive: the probe and block functions plus the
// composition of every enclosing wrap and the nack conditions on its
// path. Leaf identity (its address in the compiled slice) doubles as
// the commit token.
type leaf struct {
	try   TryFn
	block BlockFn
	wrap  WrapFn
	nacks []*Cond
}

func compose(outer, inner WrapFn) WrapFn {
	switch {
	case inner == nil:
		return outer
	case outer == nil:
		return inner
	default:
		return func(vals []any) []any { return outer(inner(vals)) }
	}
}

// compile flattens the event tree into leaves, threading the enclosing
// wrap composition and nack path through each combinator.
func compile(o Op, outer WrapFn, nacks []*Cond, out *[]leaf) error {
	switch o.kind {
	case kindPrim:
		*out = append(*out, leaf{try: o.try, block: o.block, wrap: outer, nacks: nacks})
		return nil
	case kindChoice:
		for _, sub := range o.subs {
			if err := compile(sub, outer, nacks, out); err != nil {
				return err
			}
		}
		return nil
	case kindGuard:
		built, err := o.build()
		if err != nil {
			return err
		}
		return compile(built, outer, nacks, out)
	case kindWithNack:
		c := NewCond()
		built := o.nack(c.WaitOp())
		return compile(built, outer, append(nacks[:len(nacks):len(nacks)], c), out)
	case kindWrap:
		return compile(*o.inner, compose(outer, o.wrap), nacks, out)
	case kindAbort:
		c := newCondAbort(o.abort)
		return compile(*o.inner, outer, append(nacks[:len(nacks):len(nacks)], c), out)
	default:
		panic(Namespace + ": invalid event")
	}
}
