/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// FollowerAuth implements a mock follower authorization handler.
type FollowerAuth struct {
	accept bool
	err    error
}

// NewFollowerAuth returns a mock follower authorization handler.
func NewFollowerAuth() *FollowerAuth {
	return &FollowerAuth{}
}

// WithAccept ensures that the request is accepted.
func (m *FollowerAuth) WithAccept() *FollowerAuth {
	m.accept = true

	return m
}

// WithReject ensures that the request is rejected.
func (m *FollowerAuth) WithReject() *FollowerAuth {
	m.accept = false

	return m
}

// WithError injects an error into the mock handler.
func (m *FollowerAuth) WithError(err error) *FollowerAuth {
	m.err = err

	return m
}

// AuthorizeFollower authorizes the follower request.
func (m *FollowerAuth) AuthorizeFollower(follower *vocab.ActorType) (bool, error) {
	if m.err != nil {
		return false, m.err
	}

	return m.accept, nil
}
