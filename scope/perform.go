package scope

import "github.com/jangala-dev/fibers/op"

// Outcome is the result of a scope-aware performance: either the body
// committed while the scope was ok, or the scope's not-ok state won the
// race (or overtook the body before its wrap returned).
type Outcome struct {
	Status Status // StatusOK, StatusFailed or StatusCancelled
	Vals   []any  // committed values, StatusOK only
	Err    error  // primary fault or cancellation, not-ok only
}

// Ok reports whether the body committed.
func (o Outcome) Ok() bool { return o.Status == StatusOK }

func (s *Scope) isNotOk() bool {
	return s.status == StatusFailed || s.status == StatusCancelled
}

// NotOkOp returns an event ready once the scope is failed or
// cancelled.
func (s *Scope) NotOkOp() op.Op {
	return s.notOk.WaitOp()
}

func (s *Scope) notOkOutcome() Outcome {
	if s.status == StatusFailed {
		return Outcome{Status: StatusFailed, Err: s.primary}
	}
	return Outcome{Status: StatusCancelled, Err: Cancelled(s.cancelReason)}
}

// TryOp races ev against the scope's not-ok condition. The returned
// event commits a single Outcome value: ok with the body's values when
// the body won and the scope was still running at commit, otherwise the
// scope's failure or cancellation.
func (s *Scope) TryOp(ev op.Op) op.Op {
	body := ev.Wrap(func(vals []any) []any {
		if s.isNotOk() {
			return []any{s.notOkOutcome()}
		}
		return []any{Outcome{Status: StatusOK, Vals: vals}}
	})
	interrupted := s.NotOkOp().Wrap(func([]any) []any {
		return []any{s.notOkOutcome()}
	})
	return op.Choice(body, interrupted)
}

// Try performs TryOp, returning the outcome without raising.
func (s *Scope) Try(ev op.Op) (Outcome, error) {
	vals, err := op.Perform(s.TryOp(ev))
	if err != nil {
		return Outcome{}, err
	}
	return vals[0].(Outcome), nil
}

// Perform synchronizes on ev under the scope: it returns the committed
// values when the body won, and the cancellation sentinel (carrying the
// primary fault or cancel reason) when the scope is not ok. Errors
// returned here propagate out of fiber bodies as cancellations, never
// as fresh faults.
func (s *Scope) Perform(ev op.Op) ([]any, error) {
	o, err := s.Try(ev)
	if err != nil {
		return nil, err
	}
	if o.Ok() {
		return o.Vals, nil
	}
	return nil, Cancelled(o.Err)
}
