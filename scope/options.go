package scope

import "time"

// Option configures a Scope at construction time.
type Option func(*Options)

// Options holds optional settings for Scope construction. Children
// inherit their parent's options unless overridden.
type Options struct {
	// PanicAsError converts a panic inside a fiber or finalizer to an
	// error when true.
	PanicAsError bool
	// Observer receives lifecycle events; if nil, hooks are skipped.
	Observer Observer
}

func defaultOptions() Options { return Options{PanicAsError: true} }

// WithPanicAsError toggles converting fiber panics into errors.
func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

// WithObserver attaches an observer for metrics/tracing hooks (nil =
// disabled).
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// Observer receives lifecycle events for metrics/tracing.
type Observer interface {
	ScopeCreated(id uint64)
	ScopeCancelled(id uint64, reason error)
	ScopeJoined(id uint64, status Status, wait time.Duration)
	FiberSpawned(id uint64)
	FiberFinished(id uint64, err error, panicked bool)
}
