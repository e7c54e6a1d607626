/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package blob

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/store"
)

const storeName = "media-blob"

var logger = log.New("media-blob-store")

// Blob holds the content and content type of a stored media object.
type Blob struct {
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// Store persists media blobs that were downloaded from remote hosts so that
// attachments may be served from this domain.
type Store struct {
	store     storage.Store
	marshal   func(interface{}) ([]byte, error)
	unmarshal func([]byte, interface{}) error
}

// New returns a new media blob store.
func New(provider storage.Provider) (*Store, error) {
	s, err := store.Open(provider, storeName)
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", storeName, err)
	}

	return &Store{
		store:     s,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}, nil
}

// Put saves the given content under the given owner and blob ID. If a blob already
// exists with the same owner and ID then it is overwritten.
func (s *Store) Put(owner, blobID, contentType string, content []byte) error {
	blobBytes, err := s.marshal(&Blob{ContentType: contentType, Content: content})
	if err != nil {
		return fmt.Errorf("marshal blob [%s]: %w", blobID, err)
	}

	if err := s.store.Put(blobKey(owner, blobID), blobBytes); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store blob [%s] for owner [%s]: %w", blobID, owner, err))
	}

	logger.Debug("Stored media blob", logfields.WithUsername(owner), logfields.WithBlobID(blobID),
		logfields.WithContentType(contentType), logfields.WithSize(len(content)))

	return nil
}

// Get returns the content and content type of the blob with the given owner and ID.
// If the blob is not found then an ErrNotFound error is returned.
func (s *Store) Get(owner, blobID string) ([]byte, string, error) {
	blobBytes, err := s.store.Get(blobKey(owner, blobID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, "", fmt.Errorf("blob [%s] for owner [%s]: %w", blobID, owner, brocaerrors.ErrNotFound)
		}

		return nil, "", brocaerrors.NewTransient(fmt.Errorf("get blob [%s] for owner [%s]: %w", blobID, owner, err))
	}

	b := &Blob{}

	if err := s.unmarshal(blobBytes, b); err != nil {
		return nil, "", fmt.Errorf("unmarshal blob [%s]: %w", blobID, err)
	}

	return b.Content, b.ContentType, nil
}

// Delete removes the blob with the given owner and ID. Deleting a blob that does
// not exist is a no-op.
func (s *Store) Delete(owner, blobID string) error {
	if err := s.store.Delete(blobKey(owner, blobID)); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete blob [%s] for owner [%s]: %w", blobID, owner, err))
	}

	return nil
}

func blobKey(owner, blobID string) string {
	return fmt.Sprintf("%s-%s", owner, blobID)
}
