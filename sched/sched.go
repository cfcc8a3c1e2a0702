package sched

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options holds optional settings for Scheduler construction.
type Options struct {
	// MaxSleep bounds how long the main loop blocks waiting for events.
	MaxSleep time.Duration
	// TickPeriod is the granularity of the innermost timer wheel.
	TickPeriod time.Duration
	// Logger receives structured diagnostics (task panics, shutdown
	// progress). Defaults to a no-op logger.
	Logger zerolog.Logger
}

// Option configures a Scheduler at construction time.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxSleep:   10 * time.Second,
		TickPeriod: DefaultTickPeriod,
		Logger:     zerolog.Nop(),
	}
}

// WithMaxSleep bounds how long a single wait for events may block.
func WithMaxSleep(d time.Duration) Option { return func(o *Options) { o.MaxSleep = d } }

// WithTickPeriod sets the timer wheel granularity.
func WithTickPeriod(d time.Duration) Option { return func(o *Options) { o.TickPeriod = d } }

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// Scheduler owns the monotonic clock, the two-buffered ready queue, the
// timer wheel, and any registered task sources. All methods except
// Inject and Wake must be called from the scheduler's own goroutine (or
// from a fiber it is currently running).
type Scheduler struct {
	epoch   time.Time
	now     time.Duration
	cur     []Task
	next    []Task
	sources []Source
	waiter  Waiter
	wheel   *TimerWheel
	done    bool
	opts    Options
	log     zerolog.Logger

	injectMu sync.Mutex
	injected []Task
	wakeCh   chan struct{}
}

// New creates a Scheduler with its timer wheel registered as the first
// task source.
func New(optFns ...Option) *Scheduler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Scheduler{
		epoch:  time.Now(),
		opts:   opts,
		log:    opts.Logger,
		wakeCh: make(chan struct{}, 1),
	}
	s.wheel = NewTimerWheel(0, opts.TickPeriod)
	s.sources = append(s.sources, s.wheel)
	return s
}

// Monotime reads the monotonic clock: the duration since the scheduler
// was created.
func (s *Scheduler) Monotime() time.Duration { return time.Since(s.epoch) }

// Now returns the current turn's time. It never decreases.
func (s *Scheduler) Now() time.Duration { return s.now }

// Wheel returns the scheduler's timer wheel.
func (s *Scheduler) Wheel() *TimerWheel { return s.wheel }

// AddSource registers an additional task source.
func (s *Scheduler) AddSource(src Source) {
	s.sources = append(s.sources, src)
}

// SetWaiter designates src as the event-waiter source that blocks for
// external events on behalf of the scheduler.
func (s *Scheduler) SetWaiter(src Waiter) {
	s.waiter = src
}

// Schedule queues task to run on the next turn.
func (s *Scheduler) Schedule(task Task) {
	s.next = append(s.next, task)
}

// ScheduleAt queues task to run once the monotonic clock reaches t.
func (s *Scheduler) ScheduleAt(t time.Duration, task Task) {
	s.wheel.AddAbsolute(t, task)
}

// ScheduleAfter queues task to run dt from the current turn's time.
func (s *Scheduler) ScheduleAfter(dt time.Duration, task Task) {
	s.wheel.AddAbsolute(s.now+dt, task)
}

// Inject queues task from an arbitrary goroutine and wakes the loop.
// It is the only thread-safe way to hand work to the scheduler.
func (s *Scheduler) Inject(task Task) {
	s.injectMu.Lock()
	s.injected = append(s.injected, task)
	s.injectMu.Unlock()
	s.Wake()
}

// Wake interrupts a blocked WaitForEvents.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
	if s.waiter != nil {
		s.waiter.Wake()
	}
}

func (s *Scheduler) drainInjected() {
	s.injectMu.Lock()
	if len(s.injected) > 0 {
		s.next = append(s.next, s.injected...)
		s.injected = s.injected[:0]
	}
	s.injectMu.Unlock()
}

// Run executes one scheduler turn at the given monotonic time: sources
// contribute tasks, the queues swap, and every task in the current
// queue runs exactly once in insertion order. Tasks enqueued while the
// turn runs land on the next turn's queue.
func (s *Scheduler) Run(now time.Duration) {
	if now > s.now {
		s.now = now
	}
	s.drainInjected()
	for _, src := range s.sources {
		src.ScheduleTasks(s, s.now)
	}
	s.cur, s.next = s.next, s.cur[:0]
	for _, task := range s.cur {
		s.runTask(task)
	}
}

// runTask runs a single task, isolating the loop from its panics.
func (s *Scheduler) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	task.Run()
}

// NextWakeTime reports the earliest time any source needs the loop to
// run again; ok is false when no source has a deadline.
func (s *Scheduler) NextWakeTime() (time.Duration, bool) {
	var best time.Duration
	found := false
	for _, src := range s.sources {
		if nw, ok := src.(NextWakeTimer); ok {
			if t, ok := nw.NextWakeTime(); ok && (!found || t < best) {
				best, found = t, true
			}
		}
	}
	return best, found
}

// WaitForEvents blocks until the next turn should run: until the
// earliest source deadline, a wakeup, or MaxSleep, whichever comes
// first. With a designated event waiter, blocking is delegated to it.
func (s *Scheduler) WaitForEvents() {
	now := s.Monotime()
	timeout := s.opts.MaxSleep
	if t, ok := s.NextWakeTime(); ok {
		if d := t - now; d < timeout {
			timeout = d
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	if len(s.next) > 0 || s.pendingInjected() {
		timeout = 0
	}
	if s.waiter != nil {
		s.waiter.WaitForEvents(s, now, timeout)
		return
	}
	if timeout == 0 {
		select {
		case <-s.wakeCh:
		default:
		}
		return
	}
	select {
	case <-s.wakeCh:
	case <-time.After(timeout):
	}
}

func (s *Scheduler) pendingInjected() bool {
	s.injectMu.Lock()
	n := len(s.injected)
	s.injectMu.Unlock()
	return n > 0
}

// Main drives the loop until Stop is called.
func (s *Scheduler) Main() {
	for !s.done {
		s.WaitForEvents()
		s.Run(s.Monotime())
	}
}

// Stop requests that Main return after the current turn.
func (s *Scheduler) Stop() { s.done = true }

// Done reports whether Stop has been called.
func (s *Scheduler) Done() bool { return s.done }

// Shutdown asks every source to cancel its pending tasks and drains the
// queues, making up to 100 passes. It reports whether the runtime went
// quiet.
func (s *Scheduler) Shutdown() bool {
	s.done = true
	for pass := 0; pass < 100; pass++ {
		for _, src := range s.sources {
			if c, ok := src.(SourceCanceller); ok {
				c.CancelAllTasks(s)
			}
		}
		s.Run(s.Monotime())
		if len(s.next) == 0 && !s.pendingInjected() && s.wheel.Count() == 0 {
			return true
		}
		s.log.Debug().Int("pass", pass+1).Msg("shutdown pass incomplete")
	}
	return false
}
