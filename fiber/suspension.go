package fiber

import "github.com/jangala-dev/fibers/sched"

// Suspension is a one-shot rendezvous between an event commit and a
// fiber resumption. It starts waiting; the first Complete* call wins
// and every later one is a no-op. The token identifies which leaf of a
// compiled event committed; the wrap is applied in the fiber's own
// context after it resumes.
type Suspension struct {
	f      *Fiber
	synced bool
	r      resumption
}

// NewSuspension creates a Suspension owned by f.
func NewSuspension(f *Fiber) *Suspension {
	return &Suspension{f: f}
}

// Fiber returns the owning fiber.
func (u *Suspension) Fiber() *Fiber { return u.f }

// Waiting reports whether the suspension has not yet synchronized.
func (u *Suspension) Waiting() bool { return !u.synced }

func (u *Suspension) sync(tok any, wrap func([]any) []any, vals []any, err error) bool {
	if u.synced {
		return false
	}
	u.synced = true
	u.r = resumption{tok: tok, wrap: wrap, vals: vals, err: err}
	return true
}

// Complete transitions waiting -> synchronized and schedules the owning
// fiber for resumption on its home scheduler. It reports whether this
// call won the rendezvous.
func (u *Suspension) Complete(tok any, wrap func([]any) []any, vals []any) bool {
	if !u.sync(tok, wrap, vals, nil) {
		return false
	}
	u.f.sched.Schedule(sched.TaskFunc(u.deliver))
	return true
}

// CompleteError synchronizes the suspension with an error, so the fiber
// observes a cancellation instead of committed values.
func (u *Suspension) CompleteError(reason error) bool {
	if !u.sync(nil, nil, nil, reason) {
		return false
	}
	u.f.sched.Schedule(sched.TaskFunc(u.deliver))
	return true
}

// CompleteAndRun synchronizes and resumes the fiber immediately,
// avoiding a queue hop when waking from within a source callback. When
// the owning fiber is the one currently executing (the suspension is
// being completed during its own install phase), the resumption is
// scheduled instead; resuming it in place would deadlock the hand-off.
func (u *Suspension) CompleteAndRun(tok any, wrap func([]any) []any, vals []any) bool {
	if u.f == Current() {
		return u.Complete(tok, wrap, vals)
	}
	if !u.sync(tok, wrap, vals, nil) {
		return false
	}
	u.f.doResume(u.r)
	return true
}

func (u *Suspension) deliver() {
	u.f.doResume(u.r)
}

// Wait yields the fiber until the suspension synchronizes, returning
// the winning token, the leaf wrap to apply, and the committed values.
// Must be called by the owning fiber.
func (u *Suspension) Wait() (tok any, wrap func([]any) []any, vals []any, err error) {
	r := u.f.suspendWait()
	return r.tok, r.wrap, r.vals, r.err
}

// CompleteTask returns a Task that completes the suspension with the
// given outcome when run. Running it after the suspension has already
// synchronized is a no-op. Its Cancel completes the suspension with the
// reason as an error, so the fiber observes the cancellation.
func (u *Suspension) CompleteTask(tok any, wrap func([]any) []any, vals []any) *CompleteTask {
	return &CompleteTask{u: u, tok: tok, wrap: wrap, vals: vals}
}

// CompleteTask adapts a pending completion to the scheduler's Task
// interface. One-shot, like the suspension it targets.
type CompleteTask struct {
	u    *Suspension
	tok  any
	wrap func([]any) []any
	vals []any
}

// Run completes and resumes the fiber in the current turn if the
// suspension is still waiting.
func (t *CompleteTask) Run() {
	if t.u.Waiting() {
		t.u.CompleteAndRun(t.tok, t.wrap, t.vals)
	}
}

// RunWith is Run with values that were only known at completion time,
// overriding the ones bound at creation.
func (t *CompleteTask) RunWith(vals []any) {
	if t.u.Waiting() {
		t.u.CompleteAndRun(t.tok, t.wrap, vals)
	}
}

// Cancel completes the suspension with reason so the fiber observes an
// error instead of values.
func (t *CompleteTask) Cancel(reason error) {
	if t.u.Waiting() {
		t.u.CompleteError(reason)
	}
}
