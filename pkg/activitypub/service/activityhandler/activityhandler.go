/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
)

const (
	loggerModule = "activitypub_service"

	defaultBufferSize = 100
)

// Config holds the configuration parameters for the activity handlers.
type Config struct {
	// ServiceName is the name of the service (used for logging).
	ServiceName string

	// ServiceEndpointURL is the base HTTP(s) endpoint of this server.
	ServiceEndpointURL *url.URL

	// BufferSize is the size of the Go channel buffer for a subscription.
	BufferSize int

	// AutoAcceptFollowers indicates whether an Accept activity is automatically posted
	// in response to an authorized Follow request.
	AutoAcceptFollowers bool
}

type actorRetriever interface {
	GetActor(iri *url.URL) (*vocab.ActorType, error)
}

// collectionManager manages the membership of custom collections.
type collectionManager interface {
	AddItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error
	RemoveItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error
}

type handler struct {
	*Config
	*lifecycle.Lifecycle

	store       store.Store
	mutex       sync.RWMutex
	subscribers []chan *vocab.ActivityType
	logger      *log.Log
}

func newHandler(cfg *Config, s store.Store) *handler {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}

	h := &handler{
		Config: cfg,
		store:  s,
		logger: log.New(loggerModule, log.WithFields(logfields.WithServiceName(cfg.ServiceName))),
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceName, lifecycle.WithStop(h.stop))

	return h
}

func (h *handler) stop() {
	h.logger.Info("Stopping activity handler")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, ch := range h.subscribers {
		close(ch)
	}

	h.subscribers = nil
}

// Subscribe allows a client to receive published activities.
func (h *handler) Subscribe() <-chan *vocab.ActivityType {
	ch := make(chan *vocab.ActivityType, h.BufferSize)

	h.mutex.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mutex.Unlock()

	return ch
}

func (h *handler) notify(activity *vocab.ActivityType) {
	h.mutex.RLock()
	subscribers := h.subscribers
	h.mutex.RUnlock()

	for _, ch := range subscribers {
		ch <- activity
	}
}

func (h *handler) hasReference(refType store.ReferenceType, objectIRI, refIRI *url.URL) (bool, error) {
	it, err := h.store.QueryReferences(refType,
		store.NewCriteria(
			store.WithObjectIRI(objectIRI),
			store.WithReferenceIRI(refIRI),
		),
	)
	if err != nil {
		return false, fmt.Errorf("query references: %w", err)
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(h.logger, err)
		}
	}()

	_, err = it.Next()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("get next reference: %w", err)
	}

	return true, nil
}

// resolveCollectionID returns the ID of the custom collection at the given target IRI,
// which must be a collection endpoint of the given owner.
func resolveCollectionID(ownerIRI *url.URL, target *vocab.ObjectProperty) (string, error) {
	targetIRI := target.IRI()
	if targetIRI == nil {
		return "", fmt.Errorf("no target IRI specified")
	}

	prefix := ownerIRI.String() + "/collections/"

	if !strings.HasPrefix(targetIRI.String(), prefix) {
		return "", fmt.Errorf("target [%s] is not a collection of actor [%s]", targetIRI, ownerIRI)
	}

	collectionID := strings.TrimPrefix(targetIRI.String(), prefix)

	if collectionID == "" || strings.Contains(collectionID, "/") {
		return "", fmt.Errorf("invalid collection target [%s]", targetIRI)
	}

	return collectionID, nil
}

func defaultOptions() *service.Handlers {
	return &service.Handlers{
		FollowerAuth:        &AcceptAllFollowers{},
		AcceptFollowHandler: &noOpAcceptFollowHandler{},
		UndoFollowHandler:   &noOpUndoFollowHandler{},
	}
}

// AcceptAllFollowers authorizes any actor to follow a local actor.
type AcceptAllFollowers struct{}

// AuthorizeFollower authorizes the request to follow a local actor.
func (a *AcceptAllFollowers) AuthorizeFollower(_ *vocab.ActorType) (bool, error) {
	return true, nil
}

type noOpAcceptFollowHandler struct{}

func (h *noOpAcceptFollowHandler) Accept(_ *url.URL) error {
	return nil
}

type noOpUndoFollowHandler struct{}

func (h *noOpUndoFollowHandler) Undo(_ *url.URL) error {
	return nil
}
