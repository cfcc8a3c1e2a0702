package scope_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jangala-dev/fibers/channel"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/sched"
	"github.com/jangala-dev/fibers/scope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// join drives the scheduler until the scope reaches its terminal state.
func join(t *testing.T, s *sched.Scheduler, sc *scope.Scope) (scope.Status, *scope.Report, error) {
	t.Helper()
	var (
		st      scope.Status
		rep     *scope.Report
		primary error
		done    bool
	)
	fiberJoin(s, sc, &st, &rep, &primary, &done)
	for i := 0; i < 10000 && !done; i++ {
		s.Run(s.Monotime())
	}
	require.True(t, done, "scope did not join")
	return st, rep, primary
}

func fiberJoin(s *sched.Scheduler, sc *scope.Scope, st *scope.Status, rep **scope.Report, primary *error, done *bool) {
	spawnRaw(s, func() {
		*st, *rep, *primary = sc.Join()
		*done = true
	})
}

func spawnRaw(s *sched.Scheduler, body func()) {
	root := scope.NewRoot(s)
	_ = root.Spawn(func() error {
		body()
		return nil
	})
}

func TestSpawnAndOkJoin(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	ran := 0
	require.NoError(t, sc.Spawn(func() error { ran++; return nil }))
	require.NoError(t, sc.Spawn(func() error { ran++; return nil }))

	st, rep, primary := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st)
	require.NoError(t, primary)
	require.Equal(t, 2, ran)
	require.Empty(t, rep.ExtraErrors)
	require.True(t, sc.Joined())
}

func TestFirstFaultBecomesPrimaryAndCancelsSiblings(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	boom := errors.New("boom")
	var siblingErr error

	block := channel.New[int](0)
	require.NoError(t, sc.Spawn(func() error {
		_, err := sc.Perform(block.GetOp())
		siblingErr = err
		return err
	}))
	require.NoError(t, sc.Spawn(func() error { return boom }))

	st, rep, primary := join(t, s, sc)
	require.Equal(t, scope.StatusFailed, st)
	require.ErrorIs(t, primary, boom)
	require.Empty(t, rep.ExtraErrors, "sibling cancellation is not a fault")
	require.True(t, scope.IsCancellation(siblingErr))
	require.ErrorIs(t, siblingErr, boom, "the cancellation carries the primary")
}

func TestSecondFaultGoesToExtraErrors(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	first := errors.New("first")
	second := errors.New("second")
	require.NoError(t, sc.Spawn(func() error { return first }))
	require.NoError(t, sc.Spawn(func() error { return second }))

	st, rep, primary := join(t, s, sc)
	require.Equal(t, scope.StatusFailed, st)
	// Spawn order fixes attribution: the first fiber faults first.
	require.ErrorIs(t, primary, first)
	require.Len(t, rep.ExtraErrors, 1)
	require.ErrorIs(t, rep.ExtraErrors[0], second)
}

func TestPanicConvertedToFault(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	require.NoError(t, sc.Spawn(func() error { panic("kaput") }))
	st, _, primary := join(t, s, sc)
	require.Equal(t, scope.StatusFailed, st)
	require.ErrorContains(t, primary, "kaput")
}

func TestCancelClosesAdmission(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	reason := errors.New("stop")
	sc.Cancel(reason)
	sc.Cancel(nil) // idempotent; first reason sticks

	require.ErrorIs(t, sc.Spawn(func() error { return nil }), scope.ErrAdmissionClosed)
	_, err := sc.NewChild()
	require.ErrorIs(t, err, scope.ErrAdmissionClosed)

	st, _, primary := join(t, s, sc)
	require.Equal(t, scope.StatusCancelled, st)
	require.True(t, scope.IsCancellation(primary))
	require.ErrorIs(t, primary, reason)
}

func TestCancelPropagatesToChildren(t *testing.T) {
	t.Parallel()
	s := sched.New()
	parent := scope.NewRoot(s)
	child, err := parent.NewChild()
	require.NoError(t, err)
	parent.Cancel(errors.New("teardown"))
	require.Equal(t, scope.StatusCancelled, child.Status())
	require.ErrorIs(t, child.Spawn(func() error { return nil }), scope.ErrAdmissionClosed)

	st, rep, _ := join(t, s, parent)
	require.Equal(t, scope.StatusCancelled, st)
	require.Len(t, rep.Children, 1)
	require.Equal(t, scope.StatusCancelled, rep.Children[0].Status)
}

func TestChildJoinPrecedesParentJoin(t *testing.T) {
	t.Parallel()
	s := sched.New()
	parent := scope.NewRoot(s)
	child, err := parent.NewChild()
	require.NoError(t, err)
	var order []string
	child.Finally(func(bool, scope.Status, error) error {
		order = append(order, "child")
		return nil
	})
	parent.Finally(func(bool, scope.Status, error) error {
		require.True(t, child.Joined(), "child joins before the parent's finalizers")
		order = append(order, "parent")
		return nil
	})
	st, _, _ := join(t, s, parent)
	require.Equal(t, scope.StatusOK, st)
	require.Equal(t, []string{"child", "parent"}, order)
}

func TestFinalizersRunLIFO(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	var order []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		sc.Finally(func(aborted bool, st scope.Status, primary error) error {
			require.False(t, aborted)
			require.Equal(t, scope.StatusOK, st)
			require.NoError(t, primary)
			order = append(order, name)
			return nil
		})
	}
	st, rep, _ := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st)
	require.Equal(t, []string{"C", "B", "A"}, order)
	require.Empty(t, rep.ExtraErrors)
}

func TestFinalizerFaultPromotesOkScopeToFailed(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	cleanupErr := errors.New("cleanup failed")
	sc.Finally(func(bool, scope.Status, error) error { return cleanupErr })

	st, _, primary := join(t, s, sc)
	require.Equal(t, scope.StatusFailed, st)
	require.ErrorIs(t, primary, cleanupErr)
}

func TestFinalizerFaultInFailedScopeIsExtra(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	boom := errors.New("boom")
	cleanupErr := errors.New("cleanup failed")
	var saw struct {
		aborted bool
		status  scope.Status
		primary error
	}
	sc.Finally(func(aborted bool, st scope.Status, primary error) error {
		saw.aborted, saw.status, saw.primary = aborted, st, primary
		return cleanupErr
	})
	require.NoError(t, sc.Spawn(func() error { return boom }))

	st, rep, primary := join(t, s, sc)
	require.Equal(t, scope.StatusFailed, st)
	require.ErrorIs(t, primary, boom)
	require.True(t, saw.aborted)
	require.Equal(t, scope.StatusFailed, saw.status)
	require.ErrorIs(t, saw.primary, boom)
	require.Len(t, rep.ExtraErrors, 1)
	require.ErrorIs(t, rep.ExtraErrors[0], cleanupErr)
}

func TestTryOpRacesBodyAgainstCancellation(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	blocked := channel.New[int](0)
	var outcome scope.Outcome
	require.NoError(t, sc.Spawn(func() error {
		o, err := sc.Try(blocked.GetOp())
		require.NoError(t, err)
		outcome = o
		return nil
	}))
	s.Run(s.Monotime()) // park the fiber on the channel
	sc.Cancel(errors.New("stop"))

	st, _, _ := join(t, s, sc)
	require.Equal(t, scope.StatusCancelled, st)
	require.Equal(t, scope.StatusCancelled, outcome.Status)
	require.True(t, scope.IsCancellation(outcome.Err))
}

func TestTryOpOkWhenBodyWins(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	var outcome scope.Outcome
	require.NoError(t, sc.Spawn(func() error {
		o, err := sc.Try(op.Always(11))
		require.NoError(t, err)
		outcome = o
		return nil
	}))
	st, _, _ := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st)
	require.True(t, outcome.Ok())
	require.Equal(t, []any{11}, outcome.Vals)
}

func TestRunBoundaryReturnsChildOutcome(t *testing.T) {
	t.Parallel()
	s := sched.New()
	root := scope.NewRoot(s)
	boom := errors.New("boom")
	var st scope.Status
	var primary error
	require.NoError(t, root.Spawn(func() error {
		st, _, primary = root.Run(func(child *scope.Scope) error { return boom })
		return nil
	}))
	got, _, _ := join(t, s, root)
	require.Equal(t, scope.StatusOK, got, "child failure is reported, not re-raised")
	require.Equal(t, scope.StatusFailed, st)
	require.ErrorIs(t, primary, boom)
}

func TestRunBoundaryOkCarriesNoError(t *testing.T) {
	t.Parallel()
	s := sched.New()
	root := scope.NewRoot(s)
	require.NoError(t, root.Spawn(func() error {
		st, rep, primary := root.Run(func(child *scope.Scope) error {
			return child.Spawn(func() error { return nil })
		})
		require.Equal(t, scope.StatusOK, st)
		require.NoError(t, primary)
		require.NotNil(t, rep)
		return nil
	}))
	st, _, _ := join(t, s, root)
	require.Equal(t, scope.StatusOK, st)
}

func TestJoinOpIsReadyAfterTerminal(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	st, _, _ := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st)

	// A second join commits on the fast path with the same outcome.
	st2, rep2, primary2 := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st2)
	require.NotNil(t, rep2)
	require.NoError(t, primary2)
}

func TestSpawnAfterJoinStartFails(t *testing.T) {
	t.Parallel()
	s := sched.New()
	sc := scope.NewRoot(s)
	st, _, _ := join(t, s, sc)
	require.Equal(t, scope.StatusOK, st)
	require.ErrorIs(t, sc.Spawn(func() error { return nil }), scope.ErrAdmissionClosed)
}
