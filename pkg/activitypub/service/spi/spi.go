/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spi defines the interfaces implemented by the ActivityPub services.
package spi

import (
	"net/url"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

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

// ServiceLifecycle defines the functions of a service lifecycle.
type ServiceLifecycle interface {
	// Start starts the service.
	Start()
	// Stop stops the service.
	Stop()
	// State returns the state of the service.
	State() State
}

// Outbox defines the functions for an ActivityPub outbox.
type Outbox interface {
	ServiceLifecycle

	// Post posts an activity to the outbox of the actor specified in the activity.
	// The activity is validated, stored, and queued for delivery to each remote
	// recipient. The ID of the posted activity is returned.
	Post(activity *vocab.ActivityType) (*url.URL, error)
}

// Inbox defines the functions for an ActivityPub inbox.
type Inbox interface {
	ServiceLifecycle
}

// ActivityHandler applies the side effects of an activity to the state of a local actor.
type ActivityHandler interface {
	ServiceLifecycle

	// HandleActivity handles the ActivityPub activity on behalf of the local actor
	// to whose stream the activity belongs.
	HandleActivity(actorIRI *url.URL, activity *vocab.ActivityType) error

	// Subscribe allows a client to receive published activities.
	Subscribe() <-chan *vocab.ActivityType
}

// FollowerAuth makes the decision of whether or not a request by the given
// actor to follow a local actor is accepted.
type FollowerAuth interface {
	AuthorizeFollower(follower *vocab.ActorType) (bool, error)
}

// AcceptFollowHandler is notified when a remote actor accepts a follow request
// from a local actor.
type AcceptFollowHandler interface {
	Accept(actor *url.URL) error
}

// UndoFollowHandler is notified when a remote actor undoes a follow of a local actor.
type UndoFollowHandler interface {
	Undo(actor *url.URL) error
}

// Handlers contains handlers for various activity events.
type Handlers struct {
	FollowerAuth        FollowerAuth
	AcceptFollowHandler AcceptFollowHandler
	UndoFollowHandler   UndoFollowHandler
}

// HandlerOpt sets a specific handler.
type HandlerOpt func(options *Handlers)

// WithFollowerAuth sets the handler that decides whether a follow request is accepted.
func WithFollowerAuth(auth FollowerAuth) HandlerOpt {
	return func(options *Handlers) {
		options.FollowerAuth = auth
	}
}

// WithAcceptFollowHandler sets the handler that is notified when a follow request
// from a local actor is accepted.
func WithAcceptFollowHandler(handler AcceptFollowHandler) HandlerOpt {
	return func(options *Handlers) {
		options.AcceptFollowHandler = handler
	}
}

// WithUndoFollowHandler sets the handler that is notified when a follow of a local
// actor is undone.
func WithUndoFollowHandler(handler UndoFollowHandler) HandlerOpt {
	return func(options *Handlers) {
		options.UndoFollowHandler = handler
	}
}
