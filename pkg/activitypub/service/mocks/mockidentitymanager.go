/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// IdentityManager implements a mock manager of local actors.
type IdentityManager struct {
	mutex   sync.RWMutex
	baseURL string
	actors  map[string]*vocab.ActorType
	err     error
}

// NewIdentityManager returns a mock identity manager. Actor IRIs are minted
// under the given base URL.
func NewIdentityManager(baseURL string) *IdentityManager {
	return &IdentityManager{
		baseURL: baseURL,
		actors:  make(map[string]*vocab.ActorType),
	}
}

// WithError injects an error into the mock identity manager.
func (m *IdentityManager) WithError(err error) *IdentityManager {
	m.err = err

	return m
}

// CreateActor stores the given actor using an IRI derived from its preferred username.
func (m *IdentityManager) CreateActor(requested *vocab.ActorType) (*vocab.ActorType, error) {
	if m.err != nil {
		return nil, m.err
	}

	actorIRI := vocab.MustParseURL(fmt.Sprintf("%s/users/%s", m.baseURL, requested.PreferredUsername()))

	actor := vocab.NewActor(actorIRI, requested.Type().Types()[0],
		vocab.WithName(requested.Name()),
		vocab.WithPreferredUsername(requested.PreferredUsername()),
	)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actors[actorIRI.String()] = actor

	return actor, nil
}

// UpdateActor stores the given actor.
func (m *IdentityManager) UpdateActor(actor *vocab.ActorType) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actors[actor.ID().String()] = actor

	return nil
}

// DeleteActor removes the actor with the given IRI.
func (m *IdentityManager) DeleteActor(actorIRI *url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.actors, actorIRI.String())

	return nil
}

// Actor returns the stored actor with the given IRI or nil if it doesn't exist.
func (m *IdentityManager) Actor(actorIRI *url.URL) *vocab.ActorType {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.actors[actorIRI.String()]
}
