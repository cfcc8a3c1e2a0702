package sched

import (
	"errors"
	"time"
)

const Namespace = "sched"

var (
	// ErrShutdown is the cancellation reason handed to tasks that are
	// still pending when the scheduler shuts down.
	ErrShutdown = errors.New(Namespace + ": scheduler shutting down")
)

// Task is the smallest schedulable unit. A Task runs at most once.
type Task interface {
	Run()
}

// TaskCanceller is implemented by tasks that can be abandoned with a
// reason instead of run, e.g. during shutdown.
type TaskCanceller interface {
	Cancel(reason error)
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func()

// Run invokes the function.
func (f TaskFunc) Run() { f() }

// Source contributes ready tasks to the scheduler once per turn.
// ScheduleTasks may push tasks onto the next-turn queue via
// Scheduler.Schedule; it must not block.
type Source interface {
	ScheduleTasks(s *Scheduler, now time.Duration)
}

// Waiter is a Source that can block the scheduler until external events
// arrive. At most one source acts as the designated event waiter; its
// Wake method must be safe to call from any goroutine.
type Waiter interface {
	Source
	WaitForEvents(s *Scheduler, now, timeout time.Duration)
	Wake()
}

// SourceCanceller is implemented by sources that can cancel all tasks
// they are holding, used by Shutdown to drain the runtime.
type SourceCanceller interface {
	CancelAllTasks(s *Scheduler)
}

// NextWakeTimer is implemented by sources that know when they next need
// the scheduler to run, letting WaitForEvents bound its sleep.
type NextWakeTimer interface {
	NextWakeTime() (time.Duration, bool)
}
