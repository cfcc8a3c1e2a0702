// Package fibers is a cooperative concurrency runtime: lightweight
// fibers communicating through composable events, organized into a
// supervision tree of scopes with fail-fast propagation and
// deterministic cleanup, driven by a single-threaded scheduler with
// timer-wheel timing and kernel-readiness integration.
//
// Run is the entry point. It builds a scheduler and a root scope, runs
// the given function in a fiber under a fresh child scope, and drives
// the loop until that scope joins:
//
//	err := fibers.Run(func(s *scope.Scope) error {
//		ch := channel.New[int](0)
//		s.Spawn(func() error { return ch.Put(42) })
//		v, err := ch.Get()
//		...
//	})
//
// Everything that can block is an event (an op.Op): channel puts and
// gets, sleeps, I/O readiness, scope joins. Events compose with
// op.Choice, so timeouts and cancellation are races, not special
// cases.
package fibers

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jangala-dev/fibers/fiber"
	"github.com/jangala-dev/fibers/op"
	"github.com/jangala-dev/fibers/pollio"
	"github.com/jangala-dev/fibers/sched"
	"github.com/jangala-dev/fibers/scope"
	"github.com/jangala-dev/fibers/sleep"
)

// Options holds optional settings for Run.
type Options struct {
	// Logger receives scheduler and poller diagnostics.
	Logger zerolog.Logger
	// Observer receives scope lifecycle events.
	Observer scope.Observer
	// Poller enables the kernel-readiness source when a backend is
	// supported on this platform.
	Poller bool
	// MaxSleep bounds how long the loop blocks waiting for events.
	MaxSleep time.Duration
}

// Option configures Run.
type Option func(*Options)

// WithLogger attaches a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithObserver attaches a scope lifecycle observer.
func WithObserver(obs scope.Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithPoller toggles the kernel-readiness source.
func WithPoller(v bool) Option { return func(o *Options) { o.Poller = v } }

// WithMaxSleep bounds a single wait for events.
func WithMaxSleep(d time.Duration) Option { return func(o *Options) { o.MaxSleep = d } }

func defaultOptions() Options {
	return Options{
		Logger:   zerolog.Nop(),
		Poller:   true,
		MaxSleep: 10 * time.Second,
	}
}

// Run builds the runtime, executes main in a fiber under a fresh scope,
// and drives the scheduler until that scope reaches its terminal state.
// It returns the scope's primary record: the first fault for a failed
// scope, the cancellation for a cancelled one, nil when ok.
//
// Run owns the calling goroutine until the main scope joins. It is not
// re-entrant; one runtime per process at a time.
func Run(main func(s *scope.Scope) error, optFns ...Option) error {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	s := sched.New(
		sched.WithLogger(opts.Logger),
		sched.WithMaxSleep(opts.MaxSleep),
	)
	var io *pollio.IO
	if opts.Poller {
		var err error
		io, err = pollio.New(s, pollio.WithLogger(opts.Logger))
		if err != nil && !errors.Is(err, pollio.ErrNoBackend) {
			return err
		}
	}

	var scopeOpts []scope.Option
	if opts.Observer != nil {
		scopeOpts = append(scopeOpts, scope.WithObserver(opts.Observer))
	}
	root := scope.NewRoot(s, scopeOpts...)
	scope.SetProcessRoot(root)
	defer scope.SetProcessRoot(nil)

	mainScope, err := root.NewChild()
	if err != nil {
		return err
	}
	if err := mainScope.Spawn(func() error { return main(mainScope) }); err != nil {
		return err
	}

	var primary error
	fiber.Spawn(s, root, func(*fiber.Fiber) {
		_, _, primary = mainScope.Join()
		s.Stop()
	})

	s.Main()
	if !s.Shutdown() {
		opts.Logger.Warn().Msg("shutdown left pending work")
	}
	if io != nil {
		if err := io.Close(); err != nil {
			opts.Logger.Error().Err(err).Msg("poller close failed")
		}
	}
	return primary
}

// CurrentScope returns the ambient scope of the calling fiber, or the
// process root outside any fiber. Valid only under Run.
func CurrentScope() *scope.Scope { return scope.Current() }

// Spawn starts a fiber under the ambient scope.
func Spawn(fn func() error) error { return scope.Current().Spawn(fn) }

// Perform synchronizes on ev under the ambient scope, racing it
// against the scope's cancellation.
func Perform(ev op.Op) ([]any, error) { return scope.Current().Perform(ev) }

// TryPerform synchronizes on ev under the ambient scope and reports
// the outcome without raising.
func TryPerform(ev op.Op) (scope.Outcome, error) { return scope.Current().Try(ev) }

// RunScope runs body in a fresh child of the ambient scope and returns
// its terminal status, report, and primary record.
func RunScope(body func(child *scope.Scope) error) (scope.Status, *scope.Report, error) {
	return scope.Current().Run(body)
}

// RunScopeOp is RunScope as an event, so a scope boundary can
// participate in choice.
func RunScopeOp(body func(child *scope.Scope) error) op.Op {
	return scope.Current().RunOp(body)
}

// Sleep suspends the calling fiber for d, waking early with an error
// if the ambient scope becomes not-ok.
func Sleep(d time.Duration) error {
	_, err := Perform(sleep.Op(d))
	return err
}
