/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/url"
	"sync"

	"github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// ActivityHandler implements a mock activity handler.
type ActivityHandler struct {
	mutex       sync.RWMutex
	activities  Activities
	actorIRIs   []*url.URL
	subscribers []chan *vocab.ActivityType
	err         error
}

// NewActivityHandler returns a mock activity handler.
func NewActivityHandler() *ActivityHandler {
	return &ActivityHandler{}
}

// WithError injects an error into the mock activity handler.
func (m *ActivityHandler) WithError(err error) *ActivityHandler {
	m.err = err

	return m
}

// HandleActivity records the activity so that it may be retrieved by the
// Activities function and notifies any subscribers.
func (m *ActivityHandler) HandleActivity(actorIRI *url.URL, activity *vocab.ActivityType) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()

	m.activities = append(m.activities, activity)
	m.actorIRIs = append(m.actorIRIs, actorIRI)
	subscribers := m.subscribers

	m.mutex.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- activity:
		default:
		}
	}

	return nil
}

// Subscribe returns a channel to which handled activities are posted.
func (m *ActivityHandler) Subscribe() <-chan *vocab.ActivityType {
	ch := make(chan *vocab.ActivityType, 100)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.subscribers = append(m.subscribers, ch)

	return ch
}

// Activities returns the activities that were handled.
func (m *ActivityHandler) Activities() Activities {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.activities
}

// ActorIRIs returns the actor IRIs that were passed to HandleActivity.
func (m *ActivityHandler) ActorIRIs() []*url.URL {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.actorIRIs
}

// Start does nothing.
func (m *ActivityHandler) Start() {
}

// Stop does nothing.
func (m *ActivityHandler) Stop() {
}

// State always returns StateStarted.
func (m *ActivityHandler) State() spi.State {
	return spi.StateStarted
}
