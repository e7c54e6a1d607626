/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/url"
	"sync"

	"github.com/broca-activitypub/broca/pkg/activitypub/client"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// ActivityPubClient is a mock ActivityPub client.
type ActivityPubClient struct {
	actors map[string]*vocab.ActorType
	keys   map[string]*vocab.PublicKeyType
	refs   map[string][]*url.URL
	err    error
	mutex  sync.RWMutex
}

// NewActivitPubClient returns a mock ActivityPub client.
func NewActivitPubClient() *ActivityPubClient {
	return &ActivityPubClient{
		actors: make(map[string]*vocab.ActorType),
		keys:   make(map[string]*vocab.PublicKeyType),
		refs:   make(map[string][]*url.URL),
	}
}

// WithPublicKey adds the given public key to the map of keys which is used
// by GetPublicKey.
func (m *ActivityPubClient) WithPublicKey(key *vocab.PublicKeyType) *ActivityPubClient {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.keys[key.ID.String()] = key

	return m
}

// WithActor adds the given actor to the map of actors which is used
// by GetActor.
func (m *ActivityPubClient) WithActor(actor *vocab.ActorType) *ActivityPubClient {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.actors[actor.ID().String()] = actor

	return m
}

// WithReferences sets the references that are returned by GetReferences for the given IRI.
func (m *ActivityPubClient) WithReferences(iri *url.URL, refs ...*url.URL) *ActivityPubClient {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.refs[iri.String()] = refs

	return m
}

// WithError sets an error to be returned when any function is invoked on this struct.
func (m *ActivityPubClient) WithError(err error) *ActivityPubClient {
	m.err = err

	return m
}

// GetPublicKey returns the public key for the given IRI.
func (m *ActivityPubClient) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	key, ok := m.keys[keyIRI.String()]
	if !ok {
		return nil, client.ErrNotFound
	}

	return key, nil
}

// GetActor returns the actor for the given IRI.
func (m *ActivityPubClient) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	actor, ok := m.actors[actorIRI.String()]
	if !ok {
		return nil, client.ErrNotFound
	}

	return actor, nil
}

// GetReferences returns an iterator over the references that were set for the given IRI
// with WithReferences. If no references were set then an iterator containing the given
// IRI is returned.
func (m *ActivityPubClient) GetReferences(iri *url.URL) (client.ReferenceIterator, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	refs, ok := m.refs[iri.String()]
	if !ok {
		refs = []*url.URL{iri}
	}

	return &refIterator{refs: refs}, nil
}

type refIterator struct {
	refs    []*url.URL
	current int
	mutex   sync.Mutex
}

func (it *refIterator) TotalItems() int {
	return len(it.refs)
}

func (it *refIterator) Next() (*url.URL, error) {
	it.mutex.Lock()
	defer it.mutex.Unlock()

	if it.current >= len(it.refs) {
		return nil, client.ErrNotFound
	}

	ref := it.refs[it.current]

	it.current++

	return ref, nil
}

// NewKey returns a new public key with the given ID, owner, and PEM.
func NewKey(keyID, owner *url.URL, pem string) *vocab.PublicKeyType {
	return vocab.NewPublicKey(
		vocab.WithID(keyID),
		vocab.WithOwner(owner),
		vocab.WithPublicKeyPem(pem),
	)
}
