/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/broca-activitypub/broca/pkg/activitypub/collections"
)

// CollectionManager implements a mock custom collection manager.
type CollectionManager struct {
	mutex       sync.RWMutex
	definitions map[string]*collections.Definition
	items       map[string][]string
	err         error
}

// NewCollectionManager returns a mock custom collection manager.
func NewCollectionManager() *CollectionManager {
	return &CollectionManager{
		definitions: make(map[string]*collections.Definition),
		items:       make(map[string][]string),
	}
}

// WithError injects an error into the mock collection manager.
func (m *CollectionManager) WithError(err error) *CollectionManager {
	m.err = err

	return m
}

// Create stores the given collection definition.
func (m *CollectionManager) Create(ownerIRI *url.URL, def *collections.Definition) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.definitions[defKey(ownerIRI, def.ID)] = def

	return nil
}

// Update stores the given collection definition.
func (m *CollectionManager) Update(ownerIRI *url.URL, def *collections.Definition) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.definitions[defKey(ownerIRI, def.ID)] = def

	return nil
}

// Delete removes the collection definition with the given ID.
func (m *CollectionManager) Delete(ownerIRI *url.URL, collectionID string) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.definitions, defKey(ownerIRI, collectionID))

	return nil
}

// Definition returns the stored definition with the given ID or nil if it doesn't exist.
func (m *CollectionManager) Definition(ownerIRI *url.URL, collectionID string) *collections.Definition {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.definitions[defKey(ownerIRI, collectionID)]
}

// AddItem adds the given item to the collection.
func (m *CollectionManager) AddItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := defKey(ownerIRI, collectionID)

	m.items[key] = append(m.items[key], itemID.String())

	return nil
}

// RemoveItem removes the given item from the collection.
func (m *CollectionManager) RemoveItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := defKey(ownerIRI, collectionID)

	items := m.items[key]

	for i, item := range items {
		if item == itemID.String() {
			m.items[key] = append(items[:i], items[i+1:]...)

			break
		}
	}

	return nil
}

// Items returns the items that were added to the collection.
func (m *CollectionManager) Items(ownerIRI *url.URL, collectionID string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.items[defKey(ownerIRI, collectionID)]
}

func defKey(ownerIRI *url.URL, collectionID string) string {
	return fmt.Sprintf("%s!%s", ownerIRI, collectionID)
}
