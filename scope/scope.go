package scope

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/sched"
)

// Status describes where a scope is in its lifecycle. Running is the
// only state that admits work; Failed and Cancelled are entered the
// moment the first fault or cancellation is recorded; OK is reached
// only at join completion with neither recorded.
type Status int

const (
	StatusRunning Status = iota
	StatusOK
	StatusFailed
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (st Status) String() string {
	switch st {
	case StatusRunning:
		return "running"
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(st))
	}
}

// Report is the outcome snapshot produced when a scope joins.
type Report struct {
	ID          uint64
	ExtraErrors []error
	Children    []ChildReport
}

// ChildReport pairs an attached child's terminal outcome with its own
// report.
type ChildReport struct {
	Status  Status
	Primary error
	Report  *Report
}

// Finalizer runs during join, exactly once, in LIFO order. aborted is
// true when the scope did not end ok; primary is supplied only when the
// status is failed. A non-nil return (or a panic, under PanicAsError)
// is recorded against the scope.
type Finalizer func(aborted bool, status Status, primary error) error

var nextID atomic.Uint64

// processRoot is the scope attributed to code running outside any
// fiber. The runtime entry point installs it.
var processRoot *Scope

// SetProcessRoot installs (or clears, with nil) the process root scope.
func SetProcessRoot(s *Scope) { processRoot = s }

// Current returns the ambient scope: the scope of the executing fiber,
// or the process root outside any fiber.
func Current() *Scope {
	if f := fiber.Current(); f != nil {
		if s, ok := f.Scope().(*Scope); ok {
			return s
		}
	}
	return processRoot
}

// Scope is a supervision domain. All methods must run on the scheduler
// thread (directly or from a fiber); the cooperative model means no
// locking is needed.
type Scope struct {
	id     uint64
	sched  *sched.Scheduler
	parent *Scope

	status       Status
	joined       bool
	closed       bool // admission
	joinStarted  bool
	primary      error
	cancelReason error
	extra        []error

	children     []*Scope
	childReports []ChildReport
	wg           int
	finals       []Finalizer
	report       *Report

	wgZero   *op.Cond
	notOk    *op.Cond
	joinDone *op.Cond

	opts Options
	obs  Observer
}

func newScope(s *sched.Scheduler, parent *Scope, opts Options) *Scope {
	sc := &Scope{
		id:       nextID.Add(1),
		sched:    s,
		parent:   parent,
		status:   StatusRunning,
		wgZero:   op.NewCond(),
		notOk:    op.NewCond(),
		joinDone: op.NewCond(),
		opts:     opts,
		obs:      opts.Observer,
	}
	if sc.obs != nil {
		sc.obs.ScopeCreated(sc.id)
	}
	return sc
}

// NewRoot creates a root scope bound to the scheduler.
func NewRoot(s *sched.Scheduler, optFns ...Option) *Scope {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newScope(s, nil, opts)
}

// ID returns the scope's identifier.
func (s *Scope) ID() uint64 { return s.id }

// Scheduler returns the scope's scheduler.
func (s *Scope) Scheduler() *sched.Scheduler { return s.sched }

// Status returns the scope's current status.
func (s *Scope) Status() Status { return s.status }

// Joined reports whether the scope has reached its terminal state.
func (s *Scope) Joined() bool { return s.joined }

func (s *Scope) admitting() bool {
	return s.status == StatusRunning && !s.closed
}

// NewChild creates and attaches a child scope, inheriting options. It
// fails once admission has closed.
func (s *Scope) NewChild(optFns ...Option) (*Scope, error) {
	if !s.admitting() {
		return nil, ErrAdmissionClosed
	}
	childOpts := s.opts
	for _, fn := range optFns {
		fn(&childOpts)
	}
	c := newScope(s.sched, s, childOpts)
	s.children = append(s.children, c)
	return c, nil
}

// Spawn starts a fiber owned by the scope. The fiber's error return (or
// converted panic) is attributed to the scope: the first fault becomes
// the primary failure and cancels the subtree; escaped cancellations
// are not faults.
func (s *Scope) Spawn(fn func() error) error {
	if !s.admitting() {
		return ErrAdmissionClosed
	}
	s.wg++
	if s.obs != nil {
		s.obs.FiberSpawned(s.id)
	}
	fiber.Spawn(s.sched, s, func(*fiber.Fiber) {
		err, panicked := s.invoke(fn)
		s.fiberExited(err, panicked)
	})
	return nil
}

func (s *Scope) invoke(fn func() error) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			if !s.opts.PanicAsError {
				panic(r)
			}
			err = fmt.Errorf("%s: panic: %v", Namespace, r)
		}
	}()
	err = fn()
	return
}

func (s *Scope) fiberExited(err error, panicked bool) {
	if err != nil && !IsCancellation(err) {
		s.fail(err)
	}
	if s.obs != nil {
		s.obs.FiberFinished(s.id, err, panicked)
	}
	s.wg--
	if s.wg == 0 && s.closed {
		s.wgZero.Signal()
	}
}

// fail records a fault. The first fault in a running scope becomes the
// primary and triggers fail-fast cancellation of the subtree. A fault
// arriving in a scope that was merely cancelled takes over the primary
// slot: a real error outranks a cancellation sentinel. Anything later
// accrues to the extra errors.
func (s *Scope) fail(err error) {
	switch s.status {
	case StatusRunning:
		s.status = StatusFailed
		s.primary = err
		s.cancel(Cancelled(err))
	case StatusCancelled:
		s.status = StatusFailed
		s.primary = err
	default:
		s.extra = append(s.extra, err)
	}
}

// Cancel closes admission, records the reason if none is present yet,
// propagates to attached children, and signals every performance racing
// against the scope. Idempotent.
func (s *Scope) Cancel(reason error) {
	if reason == nil {
		reason = ErrCancelled
	}
	s.cancel(reason)
}

func (s *Scope) cancel(reason error) {
	s.closed = true
	if s.cancelReason == nil {
		s.cancelReason = reason
	}
	if s.status == StatusRunning {
		s.status = StatusCancelled
		if s.obs != nil {
			s.obs.ScopeCancelled(s.id, reason)
		}
	}
	s.notOk.Signal()
	for _, c := range s.children {
		c.cancel(reason)
	}
}

// Finally pushes a finalizer onto the scope's LIFO stack. Registering
// one once join has begun is a contract violation.
func (s *Scope) Finally(fn Finalizer) {
	if s.joinStarted {
		panic(Namespace + ": finalizer registered after join started")
	}
	s.finals = append(s.finals, fn)
}

// wgZeroOp is ready once every spawned fiber has completed.
func (s *Scope) wgZeroOp() op.Op {
	return op.Guard(func() (op.Op, error) {
		if s.wg == 0 {
			return op.Always(), nil
		}
		return s.wgZero.WaitOp(), nil
	})
}

// JoinOp returns an event that is ready once the scope has reached its
// terminal state, committing (status, report, primary). Performing it
// starts the join if it has not started yet. The primary is the fault
// for a failed scope and the cancellation for a cancelled one; nil when
// ok.
func (s *Scope) JoinOp() op.Op {
	return op.Guard(func() (op.Op, error) {
		s.ensureJoin()
		return s.joinDone.WaitOp().Wrap(func([]any) []any {
			var prim any
			if e := s.primaryRecord(); e != nil {
				prim = e
			}
			return []any{s.status, s.report, prim}
		}), nil
	})
}

// Join performs JoinOp with raw performance.
func (s *Scope) Join() (Status, *Report, error) {
	vals, err := op.Perform(s.JoinOp())
	if err != nil {
		return s.status, s.report, err
	}
	return vals[0].(Status), vals[1].(*Report), asError(vals[2])
}

func (s *Scope) primaryRecord() error {
	switch s.status {
	case StatusFailed:
		return s.primary
	case StatusCancelled:
		return Cancelled(s.cancelReason)
	default:
		return nil
	}
}

// ensureJoin closes admission and starts the join worker: a dedicated
// fiber that the scope's own cancellation cannot interrupt, since every
// step below uses raw performance.
func (s *Scope) ensureJoin() {
	if s.joinStarted {
		return
	}
	s.joinStarted = true
	s.closed = true
	fiber.Spawn(s.sched, s, func(*fiber.Fiber) { s.joinWorker() })
}

func (s *Scope) joinWorker() {
	start := time.Now()

	if _, err := op.Perform(s.wgZeroOp()); err != nil {
		s.extra = append(s.extra, err)
	}

	for _, c := range s.children {
		vals, err := op.Perform(c.JoinOp())
		if err != nil {
			s.extra = append(s.extra, err)
			continue
		}
		s.childReports = append(s.childReports, ChildReport{
			Status:  vals[0].(Status),
			Primary: asError(vals[2]),
			Report:  vals[1].(*Report),
		})
	}

	for i := len(s.finals) - 1; i >= 0; i-- {
		aborted := s.status != StatusRunning
		st := s.status
		if st == StatusRunning {
			st = StatusOK
		}
		var prim error
		if s.status == StatusFailed {
			prim = s.primary
		}
		err := s.callFinalizer(s.finals[i], aborted, st, prim)
		if err == nil || IsCancellation(err) {
			continue
		}
		if s.status == StatusRunning {
			// The scope would have been ok; the finalizer fault
			// becomes the primary failure.
			s.status = StatusFailed
			s.primary = err
			s.notOk.Signal()
		} else {
			s.extra = append(s.extra, err)
		}
	}

	if s.status == StatusRunning {
		s.status = StatusOK
	}
	s.joined = true
	s.report = &Report{ID: s.id, ExtraErrors: s.extra, Children: s.childReports}
	if s.obs != nil {
		s.obs.ScopeJoined(s.id, s.status, time.Since(start))
	}
	s.joinDone.Signal()
}

func (s *Scope) callFinalizer(fn Finalizer, aborted bool, st Status, prim error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if !s.opts.PanicAsError {
				panic(r)
			}
			err = fmt.Errorf("%s: finalizer panic: %v", Namespace, r)
		}
	}()
	return fn(aborted, st, prim)
}

// RunOp returns an event that creates a child scope, runs body in a
// fiber under it, and becomes ready at the child's join, committing
// (status, report, primary). It never commits on the fast path. The
// child's join starts when body returns, so body may spawn into the
// child.
func (s *Scope) RunOp(body func(child *Scope) error) op.Op {
	return op.Guard(func() (op.Op, error) {
		child, err := s.NewChild()
		if err != nil {
			return op.Op{}, err
		}
		if err := child.Spawn(func() error {
			defer child.ensureJoin()
			return body(child)
		}); err != nil {
			return op.Op{}, err
		}
		return child.joinDone.WaitOp().Wrap(func([]any) []any {
			var prim any
			if e := child.primaryRecord(); e != nil {
				prim = e
			}
			return []any{child.status, child.report, prim}
		}), nil
	})
}

// Run is the scope boundary helper: it performs RunOp and returns the
// child's terminal status, report, and primary record (the fault for a
// failed child, the cancellation for a cancelled one, nil when ok).
func (s *Scope) Run(body func(child *Scope) error) (Status, *Report, error) {
	vals, err := op.Perform(s.RunOp(body))
	if err != nil {
		return StatusRunning, nil, err
	}
	return vals[0].(Status), vals[1].(*Report), asError(vals[2])
}
