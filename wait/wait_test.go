package wait

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/fibers/sched"
)

type idTask int

func (idTask) Run() {}

func ids(tasks []sched.Task) []int {
	out := make([]int, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, int(t.(idTask)))
	}
	return out
}

func TestAddTakeInsertionOrder(t *testing.T) {
	t.Parallel()
	s := NewSet[string]()
	s.Add("k", idTask(1))
	s.Add("k", idTask(2))
	s.Add("k", idTask(3))
	require.Equal(t, 3, s.Size())

	task, ok := s.TakeOne("k")
	require.True(t, ok)
	require.Equal(t, idTask(1), task)
	require.Equal(t, []int{2, 3}, ids(s.TakeAll("k")))
	require.True(t, s.Empty())
}

func TestUnlinkReportsEmptiedBucket(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	t1 := s.Add(7, idTask(1))
	t2 := s.Add(7, idTask(2))

	require.False(t, t1.Unlink(), "bucket still has a waiter")
	require.True(t, t2.Unlink(), "last waiter removed")
	require.False(t, s.HasKey(7))
	require.True(t, s.Empty())
}

func TestUnlinkIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	tok := s.Add(1, idTask(1))
	require.True(t, tok.Unlink())
	require.False(t, tok.Unlink())
	require.False(t, tok.Unlink())
}

func TestUnlinkMiddleKeepsOrder(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	s.Add(1, idTask(1))
	mid := s.Add(1, idTask(2))
	s.Add(1, idTask(3))
	require.False(t, mid.Unlink())
	require.Equal(t, []int{1, 3}, ids(s.TakeAll(1)))
}

func TestUnlinkAfterTakeIsNoOp(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	tok := s.Add(1, idTask(1))
	_, ok := s.TakeOne(1)
	require.True(t, ok)
	require.False(t, tok.Unlink())
	require.Equal(t, 0, s.Size())
}

func TestNotifySchedules(t *testing.T) {
	t.Parallel()
	sc := sched.New()
	s := NewSet[int]()
	ran := 0
	for i := 0; i < 3; i++ {
		s.Add(9, sched.TaskFunc(func() { ran++ }))
	}
	require.True(t, s.NotifyOne(9, sc))
	require.Equal(t, 2, s.NotifyAll(9, sc))
	require.False(t, s.NotifyOne(9, sc))
	sc.Run(sc.Monotime())
	require.Equal(t, 3, ran)
}

type cancelTask struct{ reason error }

func (*cancelTask) Run()                  {}
func (c *cancelTask) Cancel(reason error) { c.reason = reason }

func TestClearCancelsTasks(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	c1, c2 := &cancelTask{}, &cancelTask{}
	s.Add(1, c1)
	s.Add(2, c2)
	require.Equal(t, 2, s.ClearAll(sched.ErrShutdown))
	require.ErrorIs(t, c1.reason, sched.ErrShutdown)
	require.ErrorIs(t, c2.reason, sched.ErrShutdown)
	require.True(t, s.Empty())
}

func TestKeys(t *testing.T) {
	t.Parallel()
	s := NewSet[int]()
	s.Add(1, idTask(1))
	s.Add(5, idTask(2))
	require.ElementsMatch(t, []int{1, 5}, s.Keys())
}
