/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collections

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/store"
)

const (
	storeName    = "collection-definition"
	ownerTagName = "Owner"
)

var logger = log.New("collection-store")

// Store persists collection definitions.
type Store struct {
	store     storage.Store
	marshal   func(interface{}) ([]byte, error)
	unmarshal func([]byte, interface{}) error
}

// NewStore returns a new collection definition store.
func NewStore(provider storage.Provider) (*Store, error) {
	s, err := store.Open(provider, storeName, store.NewTagGroup(ownerTagName))
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", storeName, err)
	}

	return &Store{
		store:     s,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}, nil
}

// Put saves the given definition. An existing definition with the same owner and ID
// is overwritten.
func (s *Store) Put(def *Definition) error {
	defBytes, err := s.marshal(def)
	if err != nil {
		return fmt.Errorf("marshal collection definition [%s]: %w", def.ID, err)
	}

	err = s.store.Put(defKey(def.Owner, def.ID), defBytes,
		storage.Tag{Name: ownerTagName, Value: encodeOwner(def.Owner)})
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store collection definition [%s]: %w", def.ID, err))
	}

	logger.Debug("Stored collection definition", logfields.WithCollection(def.ID),
		logfields.WithActorID(def.Owner))

	return nil
}

// Get returns the definition of the given owner's collection. An ErrNotFound error
// is returned if the collection is not defined.
func (s *Store) Get(ownerIRI *url.URL, collectionID string) (*Definition, error) {
	defBytes, err := s.store.Get(defKey(ownerIRI.String(), collectionID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("collection [%s] of actor [%s]: %w",
				collectionID, ownerIRI, brocaerrors.ErrNotFound)
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("get collection definition [%s]: %w", collectionID, err))
	}

	def := &Definition{}

	if err := s.unmarshal(defBytes, def); err != nil {
		return nil, fmt.Errorf("unmarshal collection definition [%s]: %w", collectionID, err)
	}

	return def, nil
}

// Delete removes the definition of the given owner's collection.
func (s *Store) Delete(ownerIRI *url.URL, collectionID string) error {
	if err := s.store.Delete(defKey(ownerIRI.String(), collectionID)); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete collection definition [%s]: %w", collectionID, err))
	}

	logger.Debug("Deleted collection definition", logfields.WithCollection(collectionID),
		logfields.WithActorIRI(ownerIRI))

	return nil
}

// QueryByOwner returns all collection definitions of the given owner.
func (s *Store) QueryByOwner(ownerIRI *url.URL) ([]*Definition, error) {
	it, err := s.store.Query(fmt.Sprintf("%s:%s", ownerTagName, encodeOwner(ownerIRI.String())))
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("query collections of [%s]: %w", ownerIRI, err))
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(logger, err)
		}
	}()

	var defs []*Definition

	for {
		more, err := it.Next()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get next collection of [%s]: %w", ownerIRI, err))
		}

		if !more {
			break
		}

		defBytes, err := it.Value()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get collection value: %w", err))
		}

		def := &Definition{}

		if err := s.unmarshal(defBytes, def); err != nil {
			return nil, fmt.Errorf("unmarshal collection definition: %w", err)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

func defKey(owner, collectionID string) string {
	return fmt.Sprintf("%s!%s", encodeOwner(owner), collectionID)
}

func encodeOwner(owner string) string {
	return base64.RawStdEncoding.EncodeToString([]byte(owner))
}
