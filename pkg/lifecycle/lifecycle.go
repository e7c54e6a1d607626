/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lifecycle

import (
	"errors"
	"sync/atomic"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
)

var logger = log.New("lifecycle")

// ErrNotStarted indicates that an operation was attempted on a service that has not been started.
var ErrNotStarted = errors.New("service has not started")

// State is the state of the service.
type State = uint32

const (
	// StateNotStarted indicates that the service has not been started.
	StateNotStarted State = 0
	// StateStarting indicates that the service is in the process of starting.
	StateStarting State = 1
	// StateStarted indicates that the service has been started.
	StateStarted State = 2
	// StateStopped indicates that the service has been stopped.
	StateStopped State = 3
)

// Lifecycle implements the lifecycle of a service, i.e. Start and Stop. It also
// maintains the state of the service so that callers may reject requests to a
// service that is not yet started or has already been stopped.
type Lifecycle struct {
	*options

	name  string
	state uint32
}

// Opt sets a Lifecycle option.
type Opt func(opts *options)

type options struct {
	start func()
	stop  func()
}

// WithStart sets the start function which is invoked when Start() is called.
func WithStart(start func()) Opt {
	return func(opts *options) {
		opts.start = start
	}
}

// WithStop sets the stop function which is invoked when Stop() is called.
func WithStop(stop func()) Opt {
	return func(opts *options) {
		opts.stop = stop
	}
}

// New returns a new Lifecycle with the given name.
func New(name string, opts ...Opt) *Lifecycle {
	options := &options{
		start: func() {},
		stop:  func() {},
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Lifecycle{
		options: options,
		name:    name,
	}
}

// Start starts the service. The start function provided in New is invoked at most
// once: subsequent calls to Start are ignored.
func (h *Lifecycle) Start() {
	if !atomic.CompareAndSwapUint32(&h.state, StateNotStarted, StateStarting) {
		logger.Debug("Service already started", logfields.WithServiceName(h.name))

		return
	}

	logger.Debug("Starting service ...", logfields.WithServiceName(h.name))

	h.start()

	atomic.StoreUint32(&h.state, StateStarted)

	logger.Debug("... service started", logfields.WithServiceName(h.name))
}

// Stop stops the service if it is in the started state, otherwise the stop
// function is not invoked. Subsequent calls to Stop are ignored.
func (h *Lifecycle) Stop() {
	if !atomic.CompareAndSwapUint32(&h.state, StateStarted, StateStopped) {
		logger.Debug("Service not started or already stopped", logfields.WithServiceName(h.name))

		return
	}

	logger.Debug("Stopping service ...", logfields.WithServiceName(h.name))

	h.stop()

	logger.Debug("... service stopped", logfields.WithServiceName(h.name))
}

// State returns the current state of the service.
func (h *Lifecycle) State() State {
	return atomic.LoadUint32(&h.state)
}
