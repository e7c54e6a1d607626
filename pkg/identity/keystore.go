/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hyperledger/aries-framework-go/spi/storage"

	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/store"
)

const keyStoreName = "actor-keypair"

// KeyPair holds the PEM-encoded key pair of a local actor.
type KeyPair struct {
	KeyID         string `json:"keyId"`
	PublicKeyPem  string `json:"publicKeyPem"`
	PrivateKeyPem string `json:"privateKeyPem"`
}

// KeyStore persists the key pairs of local actors.
type KeyStore struct {
	store     storage.Store
	marshal   func(interface{}) ([]byte, error)
	unmarshal func([]byte, interface{}) error
}

// NewKeyStore returns a new actor key pair store.
func NewKeyStore(provider storage.Provider) (*KeyStore, error) {
	s, err := store.Open(provider, keyStoreName)
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", keyStoreName, err)
	}

	return &KeyStore{
		store:     s,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}, nil
}

// Put saves the key pair of the given actor.
func (s *KeyStore) Put(actorIRI *url.URL, keyPair *KeyPair) error {
	keyPairBytes, err := s.marshal(keyPair)
	if err != nil {
		return fmt.Errorf("marshal key pair for [%s]: %w", actorIRI, err)
	}

	if err := s.store.Put(actorIRI.String(), keyPairBytes); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store key pair for [%s]: %w", actorIRI, err))
	}

	return nil
}

// Get returns the key pair of the given actor. An ErrNotFound error is returned if no
// key pair exists for the actor.
func (s *KeyStore) Get(actorIRI *url.URL) (*KeyPair, error) {
	keyPairBytes, err := s.store.Get(actorIRI.String())
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("key pair for [%s]: %w", actorIRI, brocaerrors.ErrNotFound)
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("get key pair for [%s]: %w", actorIRI, err))
	}

	keyPair := &KeyPair{}

	if err := s.unmarshal(keyPairBytes, keyPair); err != nil {
		return nil, fmt.Errorf("unmarshal key pair for [%s]: %w", actorIRI, err)
	}

	return keyPair, nil
}

// Delete removes the key pair of the given actor.
func (s *KeyStore) Delete(actorIRI *url.URL) error {
	if err := s.store.Delete(actorIRI.String()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete key pair for [%s]: %w", actorIRI, err))
	}

	return nil
}
