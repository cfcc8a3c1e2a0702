// Package otel reserves the OpenTelemetry integration point. Nop
// implements the scope.Observer interface without adding dependencies;
// a traced observer can replace it without touching callers.
package otel

import (
	"time"

	"github.com/jangala-dev/fibers/scope"
)

// Nop is a no-op implementation of the scope.Observer interface.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

// ScopeCreated is a no-op.
func (*Nop) ScopeCreated(uint64) {}

// ScopeCancelled is a no-op.
func (*Nop) ScopeCancelled(uint64, error) {}

// ScopeJoined is a no-op.
func (*Nop) ScopeJoined(uint64, scope.Status, time.Duration) {}

// FiberSpawned is a no-op.
func (*Nop) FiberSpawned(uint64) {}

// FiberFinished is a no-op.
func (*Nop) FiberFinished(uint64, error, bool) {}
