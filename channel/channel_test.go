package channel_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jangala-dev/fibers/channel"
	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/sched"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func spawn(s *sched.Scheduler, done *int, body func()) {
	fiber.Spawn(s, nil, func(*fiber.Fiber) {
		body()
		*done++
	})
}

func drive(t *testing.T, s *sched.Scheduler, done *int, want int) {
	t.Helper()
	for i := 0; i < 10000 && *done < want; i++ {
		s.Run(s.Monotime())
	}
	require.Equal(t, want, *done, "fibers did not finish")
}

func TestUnbufferedTransfersValue(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[string](0)
	done := 0
	spawn(s, &done, func() {
		require.NoError(t, ch.Put("hello"))
	})
	spawn(s, &done, func() {
		v, err := ch.Get()
		require.NoError(t, err)
		require.Equal(t, "hello", v)
	})
	drive(t, s, &done, 2)
	require.Zero(t, ch.PendingPuts())
	require.Zero(t, ch.PendingGets())
}

func TestUnbufferedPairsBothSidesInOneTurn(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](0)
	done := 0
	var getterRan, putterSawGetter bool
	spawn(s, &done, func() {
		_, err := ch.Get()
		require.NoError(t, err)
		getterRan = true
	})
	// One turn parks the getter; the putter's fast path then resumes it
	// in place, inside the putter's own turn.
	s.Run(s.Monotime())
	spawn(s, &done, func() {
		require.NoError(t, ch.Put(5))
		putterSawGetter = getterRan
	})
	drive(t, s, &done, 2)
	require.True(t, putterSawGetter, "getter resumed within the putter's turn")
}

func TestFIFOPairing(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](0)
	done := 0
	var got []int
	for i := 1; i <= 3; i++ {
		v := i
		spawn(s, &done, func() { require.NoError(t, ch.Put(v)) })
		// Park each sender before spawning the next so their queue
		// order is deterministic.
		s.Run(s.Monotime())
	}
	spawn(s, &done, func() {
		for i := 0; i < 3; i++ {
			v, err := ch.Get()
			require.NoError(t, err)
			got = append(got, v)
		}
	})
	drive(t, s, &done, 4)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestBufferedCapacitySequence(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](2)
	done := 0
	spawn(s, &done, func() {
		require.NoError(t, ch.Put(1))
		require.NoError(t, ch.Put(2))
		require.Equal(t, 2, ch.Buffered())
		require.NoError(t, ch.Put(3)) // blocks until a get makes room
	})
	s.Run(s.Monotime())
	s.Run(s.Monotime())
	require.Equal(t, 1, ch.PendingPuts(), "third put must block at capacity")

	spawn(s, &done, func() {
		for want := 1; want <= 3; want++ {
			v, err := ch.Get()
			require.NoError(t, err)
			require.Equal(t, want, v)
		}
	})
	drive(t, s, &done, 2)
	require.Zero(t, ch.Buffered())
	require.Zero(t, ch.PendingPuts())
	require.Zero(t, ch.PendingGets())
}

func TestBufferedPutDoesNotBlockWhileRoom(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](3)
	done := 0
	spawn(s, &done, func() {
		for i := 0; i < 3; i++ {
			require.NoError(t, ch.Put(i))
		}
	})
	drive(t, s, &done, 1)
	require.Equal(t, 3, ch.Buffered())
}

func TestLosingGetArmLeavesNoWaiter(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](0)
	other := op.NewCond()
	done := 0
	spawn(s, &done, func() {
		s.Schedule(sched.TaskFunc(other.Signal))
		vals, err := op.Perform(op.BooleanChoice(ch.GetOp(), other.WaitOp()))
		require.NoError(t, err)
		require.Equal(t, false, vals[0], "the cond arm wins")
	})
	drive(t, s, &done, 1)
	require.Zero(t, ch.PendingGets(), "lost arm is tombstoned")

	// A later putter pairs with a live getter, skipping any dead nodes.
	spawn(s, &done, func() {
		v, err := ch.Get()
		require.NoError(t, err)
		require.Equal(t, 9, v)
	})
	s.Run(s.Monotime())
	spawn(s, &done, func() { require.NoError(t, ch.Put(9)) })
	drive(t, s, &done, 3)
}

func TestPutOpComposesWithChoice(t *testing.T) {
	t.Parallel()
	s := sched.New()
	ch := channel.New[int](0)
	quit := channel.New[struct{}](0)
	done := 0
	var produced int
	spawn(s, &done, func() {
		for {
			vals, err := op.Perform(op.BooleanChoice(ch.PutOp(produced), quit.GetOp()))
			require.NoError(t, err)
			if !vals[0].(bool) {
				return
			}
			produced++
		}
	})
	spawn(s, &done, func() {
		for i := 0; i < 5; i++ {
			v, err := ch.Get()
			require.NoError(t, err)
			require.Equal(t, i, v)
		}
		require.NoError(t, quit.Put(struct{}{}))
	})
	drive(t, s, &done, 2)
	require.Equal(t, 5, produced)
}
