// Package pollio converts kernel readiness into scheduled fiber
// resumptions. A pluggable backend (epoll on Linux) feeds an IO task
// source that doubles as the scheduler's event waiter; readiness is
// exposed to fibers as events through keyed waitsets.
package pollio

import (
	"errors"
	"time"
)

const Namespace = "pollio"

var (
	// ErrNoBackend reports that no poller backend supports this
	// platform.
	ErrNoBackend = errors.New(Namespace + ": no poller backend supported")
)

// Events is a readiness mask.
type Events uint8

const (
	// EventRead indicates the descriptor is ready for reading.
	EventRead Events = 1 << iota
	// EventWrite indicates the descriptor is ready for writing.
	EventWrite
	// EventErr indicates an error or hangup condition.
	EventErr
)

// Backend is a platform poller. Poll blocks for up to timeout (zero
// means probe only) and returns the readiness observed per descriptor.
// OnWaitChange is invoked whenever the interest mask for a descriptor
// changes, with zero meaning no interest. Wake must interrupt a
// concurrent Poll and is the only method safe to call from another
// goroutine.
type Backend interface {
	Poll(timeout time.Duration) (map[int]Events, error)
	OnWaitChange(fd int, mask Events) error
	Wake()
	Close() error
}

type backendFactory struct {
	name      string
	supported func() bool
	open      func() (Backend, error)
}

// factories lists backend candidates in preference order; platform
// files register themselves from init.
var factories []backendFactory

func registerBackend(name string, supported func() bool, open func() (Backend, error)) {
	factories = append(factories, backendFactory{name: name, supported: supported, open: open})
}

// NewBackend opens the first supported backend.
func NewBackend() (Backend, string, error) {
	for _, f := range factories {
		if f.supported() {
			b, err := f.open()
			if err != nil {
				return nil, f.name, err
			}
			return b, f.name, nil
		}
	}
	return nil, "", ErrNoBackend
}
