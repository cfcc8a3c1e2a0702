// Package prom exports scope lifecycle metrics through Prometheus. It
// implements the scope.Observer interface; attach it with
// scope.WithObserver.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jangala-dev/fibers/scope"
)

// Observer maintains Prometheus collectors for scope and fiber
// lifecycle events.
type Observer struct {
	scopesCreated   prometheus.Counter
	scopesCancelled prometheus.Counter
	joins           prometheus.Counter
	joinWait        prometheus.Histogram
	activeFibers    prometheus.Gauge
	fibersSpawned   prometheus.Counter
	fibersFinished  *prometheus.CounterVec
}

// New creates an Observer and registers its collectors with reg (use
// prometheus.DefaultRegisterer for the default registry).
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		scopesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibers", Subsystem: "scope", Name: "created_total",
			Help: "Scopes created.",
		}),
		scopesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibers", Subsystem: "scope", Name: "cancelled_total",
			Help: "Scopes that observed a cancellation.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibers", Subsystem: "scope", Name: "joins_total",
			Help: "Completed scope joins.",
		}),
		joinWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fibers", Subsystem: "scope", Name: "join_wait_seconds",
			Help:    "Wall time from join start to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		activeFibers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fibers", Subsystem: "fiber", Name: "active",
			Help: "Fibers spawned and not yet finished.",
		}),
		fibersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fibers", Subsystem: "fiber", Name: "spawned_total",
			Help: "Fibers spawned.",
		}),
		fibersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fibers", Subsystem: "fiber", Name: "finished_total",
			Help: "Fibers finished, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		o.scopesCreated, o.scopesCancelled, o.joins, o.joinWait,
		o.activeFibers, o.fibersSpawned, o.fibersFinished,
	)
	return o
}

// ScopeCreated records scope creation.
func (o *Observer) ScopeCreated(_ uint64) { o.scopesCreated.Inc() }

// ScopeCancelled records scope cancellation.
func (o *Observer) ScopeCancelled(_ uint64, _ error) { o.scopesCancelled.Inc() }

// ScopeJoined records a completed join and its wait time.
func (o *Observer) ScopeJoined(_ uint64, _ scope.Status, wait time.Duration) {
	o.joins.Inc()
	o.joinWait.Observe(wait.Seconds())
}

// FiberSpawned tracks fiber starts.
func (o *Observer) FiberSpawned(_ uint64) {
	o.fibersSpawned.Inc()
	o.activeFibers.Inc()
}

// FiberFinished tracks fiber completion by outcome.
func (o *Observer) FiberFinished(_ uint64, err error, panicked bool) {
	o.activeFibers.Dec()
	switch {
	case panicked:
		o.fibersFinished.WithLabelValues("panic").Inc()
	case err != nil && scope.IsCancellation(err):
		o.fibersFinished.WithLabelValues("cancelled").Inc()
	case err != nil:
		o.fibersFinished.WithLabelValues("error").Inc()
	default:
		o.fibersFinished.WithLabelValues("ok").Inc()
	}
}
