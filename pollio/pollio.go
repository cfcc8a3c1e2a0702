package pollio

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jangala-dev/fibers/sched"
	"github.com/jangala-dev/fibers/wait"
)

// Options holds optional settings for IO construction.
type Options struct {
	// Backend overrides platform backend selection.
	Backend Backend
	// Logger receives poll errors and backend selection diagnostics.
	Logger zerolog.Logger
}

// Option configures IO construction.
type Option func(*Options)

// WithBackend supplies a specific backend instead of selecting one.
func WithBackend(b Backend) Option { return func(o *Options) { o.Backend = b } }

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// IO is the readiness task source. Registered with a scheduler it is
// consulted every turn with a zero timeout, and as the designated event
// waiter it blocks in the backend until readiness, a timer deadline, or
// a wakeup.
type IO struct {
	sched *sched.Scheduler
	b     Backend
	rd    *wait.Set[int]
	wr    *wait.Set[int]
	masks map[int]Events
	log   zerolog.Logger
}

// New selects a backend, builds the IO source, and installs it on the
// scheduler as both a task source and the event waiter.
func New(s *sched.Scheduler, optFns ...Option) (*IO, error) {
	opts := Options{Logger: zerolog.Nop()}
	for _, fn := range optFns {
		fn(&opts)
	}
	b := opts.Backend
	if b == nil {
		var name string
		var err error
		b, name, err = NewBackend()
		if err != nil {
			return nil, err
		}
		opts.Logger.Debug().Str("backend", name).Msg("poller backend selected")
	}
	io := &IO{
		sched: s,
		b:     b,
		rd:    wait.NewSet[int](),
		wr:    wait.NewSet[int](),
		masks: make(map[int]Events),
		log:   opts.Logger,
	}
	s.AddSource(io)
	s.SetWaiter(io)
	return io, nil
}

// Close releases the backend and cancels all parked waiters.
func (io *IO) Close() error {
	io.rd.ClearAll(sched.ErrShutdown)
	io.wr.ClearAll(sched.ErrShutdown)
	for fd := range io.masks {
		delete(io.masks, fd)
	}
	return io.b.Close()
}

// ScheduleTasks makes IO an ordinary source: a non-blocking poll each
// turn.
func (io *IO) ScheduleTasks(s *sched.Scheduler, now time.Duration) {
	io.poll(0)
}

// WaitForEvents makes IO the scheduler's event waiter: block in the
// backend for up to timeout.
func (io *IO) WaitForEvents(s *sched.Scheduler, now, timeout time.Duration) {
	io.poll(timeout)
}

// Wake interrupts a blocked poll. Safe from any goroutine.
func (io *IO) Wake() { io.b.Wake() }

// CancelAllTasks drops every parked waiter at shutdown.
func (io *IO) CancelAllTasks(s *sched.Scheduler) {
	io.rd.ClearAll(sched.ErrShutdown)
	io.wr.ClearAll(sched.ErrShutdown)
	io.syncMasks()
}

func (io *IO) poll(timeout time.Duration) {
	ready, err := io.b.Poll(timeout)
	if err != nil {
		io.log.Error().Err(err).Msg("poll failed")
		return
	}
	for fd, ev := range ready {
		if ev&(EventRead|EventErr) != 0 {
			io.rd.NotifyAll(fd, io.sched)
		}
		if ev&(EventWrite|EventErr) != 0 {
			io.wr.NotifyAll(fd, io.sched)
		}
		io.updateMask(fd)
	}
}

// updateMask recomputes the interest mask for fd from the remaining
// waiters and pushes any change to the backend.
func (io *IO) updateMask(fd int) {
	var mask Events
	if io.rd.HasKey(fd) {
		mask |= EventRead
	}
	if io.wr.HasKey(fd) {
		mask |= EventWrite
	}
	if io.masks[fd] == mask {
		return
	}
	if mask == 0 {
		delete(io.masks, fd)
	} else {
		io.masks[fd] = mask
	}
	if err := io.b.OnWaitChange(fd, mask); err != nil {
		io.log.Error().Err(err).Int("fd", fd).Msg("interest update failed")
	}
}

// syncMasks republishes the mask for every descriptor that had one.
func (io *IO) syncMasks() {
	for fd := range io.masks {
		io.updateMask(fd)
	}
}
