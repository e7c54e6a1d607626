/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/url"
	"sync"
)

// AcceptFollowHandler implements a mock accept-follow handler.
type AcceptFollowHandler struct {
	mutex  sync.RWMutex
	actors []*url.URL
	err    error
}

// NewAcceptFollowHandler returns a mock accept-follow handler.
func NewAcceptFollowHandler() *AcceptFollowHandler {
	return &AcceptFollowHandler{}
}

// WithError injects an error into the mock handler.
func (m *AcceptFollowHandler) WithError(err error) *AcceptFollowHandler {
	m.err = err

	return m
}

// Actors returns the actors for which Accept was invoked.
func (m *AcceptFollowHandler) Actors() []*url.URL {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.actors
}

// Accept records the actor of the accepted follow request.
func (m *AcceptFollowHandler) Accept(actor *url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actors = append(m.actors, actor)

	return nil
}

// UndoFollowHandler implements a mock undo-follow handler.
type UndoFollowHandler struct {
	mutex  sync.RWMutex
	actors []*url.URL
	err    error
}

// NewUndoFollowHandler returns a mock undo-follow handler.
func NewUndoFollowHandler() *UndoFollowHandler {
	return &UndoFollowHandler{}
}

// WithError injects an error into the mock handler.
func (m *UndoFollowHandler) WithError(err error) *UndoFollowHandler {
	m.err = err

	return m
}

// Actors returns the actors for which Undo was invoked.
func (m *UndoFollowHandler) Actors() []*url.URL {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.actors
}

// Undo records the actor of the undone follow.
func (m *UndoFollowHandler) Undo(actor *url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actors = append(m.actors, actor)

	return nil
}
