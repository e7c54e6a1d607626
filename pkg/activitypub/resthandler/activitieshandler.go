/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

type getIRIFunc func(h *handler, req *http.Request) (*url.URL, error)

// getOwnerIRI returns the IRI of the actor addressed by the {username} path variable.
func getOwnerIRI(h *handler, req *http.Request) (*url.URL, error) {
	return h.ownerIRI(req)
}

// getObjectIRI returns the IRI of the object addressed by the {username} and {id}
// path variables.
func getObjectIRI(h *handler, req *http.Request) (*url.URL, error) {
	objectID := mux.Vars(req)[idParam]
	if objectID == "" {
		return nil, fmt.Errorf("object ID not specified in URL")
	}

	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		return nil, err
	}

	return url.Parse(fmt.Sprintf("%s/objects/%s", ownerIRI, objectID))
}

// getIRIWithSuffix returns a function that resolves the IRI returned by getIRI and
// appends the given path suffix. It is used to derive collection IDs, e.g.
// {owner}/inbox or {object}/likes.
func getIRIWithSuffix(getIRI getIRIFunc, suffix string) getIRIFunc {
	return func(h *handler, req *http.Request) (*url.URL, error) {
		iri, err := getIRI(h, req)
		if err != nil {
			return nil, err
		}

		return url.Parse(fmt.Sprintf("%s/%s", iri, suffix))
	}
}

// Activities implements a REST handler that serves a reference collection of
// activities as an OrderedCollection with two-tier paging: the bare collection URL
// returns the collection header (totalItems plus a 'first' page link) and a URL with
// 'page'/'limit' parameters returns an OrderedCollectionPage of activities.
type Activities struct {
	*handler

	refType      spi.ReferenceType
	sortOrder    spi.SortOrder
	gated        bool
	getObjectIRI getIRIFunc
	getID        getIRIFunc
}

// NewInbox returns a REST handler that retrieves an actor's inbox. Access may be
// gated with bearer read tokens or an HTTP signature.
func NewInbox(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *Activities {
	return newActivities(InboxPath, spi.Inbox, cfg, activityStore,
		getOwnerIRI, getIRIWithSuffix(getOwnerIRI, "inbox"), verifier, true)
}

// NewLiked returns a REST handler that retrieves the 'Like' activities posted by
// an actor.
func NewLiked(cfg *Config, activityStore spi.Store) *Activities {
	return newActivities(LikedPath, spi.Liked, cfg, activityStore,
		getOwnerIRI, getIRIWithSuffix(getOwnerIRI, "liked"), nil, false)
}

// NewShared returns a REST handler that retrieves the 'Announce' activities posted
// by an actor.
func NewShared(cfg *Config, activityStore spi.Store) *Activities {
	return newActivities(SharedPath, spi.Share, cfg, activityStore,
		getOwnerIRI, getIRIWithSuffix(getOwnerIRI, "shared"), nil, false)
}

// NewLikes returns a REST handler that retrieves the 'Like' activities that were
// received for an object.
func NewLikes(cfg *Config, activityStore spi.Store) *Activities {
	return newActivities(LikesPath, spi.Like, cfg, activityStore,
		getObjectIRI, getIRIWithSuffix(getObjectIRI, "likes"), nil, false)
}

// NewShares returns a REST handler that retrieves the 'Announce' activities that
// were received for an object.
func NewShares(cfg *Config, activityStore spi.Store) *Activities {
	return newActivities(SharesPath, spi.Share, cfg, activityStore,
		getObjectIRI, getIRIWithSuffix(getObjectIRI, "shares"), nil, false)
}

func newActivities(path string, refType spi.ReferenceType, cfg *Config, activityStore spi.Store,
	getObjectIRI, getID getIRIFunc, verifier signatureVerifier, gated bool) *Activities {
	h := &Activities{
		refType:      refType,
		sortOrder:    spi.SortDescending,
		gated:        gated,
		getObjectIRI: getObjectIRI,
		getID:        getID,
	}

	h.handler = newHandler(path, http.MethodGet, cfg, activityStore, h.handle, verifier)

	return h
}

func (h *Activities) handle(w http.ResponseWriter, req *http.Request) {
	if h.gated {
		ok, _, err := h.authorize(req)
		if err != nil {
			h.logger.Error("Error authorizing request", log.WithError(err))

			h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

			return
		}

		if !ok {
			h.writeResponse(w, http.StatusUnauthorized, []byte(unauthorizedResponse))

			return
		}
	}

	h.handleRefsOfType(w, req, h.refType)
}

func (h *Activities) handleRefsOfType(w http.ResponseWriter, req *http.Request, refType spi.ReferenceType) {
	objectIRI, err := h.getObjectIRI(h.handler, req)
	if err != nil {
		h.logger.Debug("Error getting object IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	id, err := h.getID(h.handler, req)
	if err != nil {
		h.logger.Debug("Error getting collection ID", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	if h.isPaging(req) {
		h.handlePage(w, req, objectIRI, id, refType)
	} else {
		h.handleCollection(w, objectIRI, id, refType)
	}
}

func (h *Activities) handleCollection(w http.ResponseWriter, objectIRI, id *url.URL,
	refType spi.ReferenceType) {
	coll, err := h.getCollection(objectIRI, id, refType)
	if err != nil {
		h.logger.Error("Error retrieving references", logfields.WithReferenceType(string(refType)),
			logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	collBytes, err := h.marshal(coll)
	if err != nil {
		h.logger.Error("Unable to marshal collection", logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, collBytes)
}

func (h *Activities) handlePage(w http.ResponseWriter, req *http.Request, objectIRI, id *url.URL,
	refType spi.ReferenceType) {
	pageNum, err := h.getPageNum(req)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	limit, err := h.getLimit(req)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	page, err := h.getPage(objectIRI, id, refType, pageNum, limit)
	if err != nil {
		h.logger.Error("Error retrieving page", logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	pageBytes, err := h.marshal(page)
	if err != nil {
		h.logger.Error("Unable to marshal page", logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, pageBytes)
}

func (h *Activities) getCollection(objectIRI, id *url.URL,
	refType spi.ReferenceType) (*vocab.OrderedCollectionType, error) {
	it, err := h.activityStore.QueryReferences(refType,
		spi.NewCriteria(spi.WithObjectIRI(objectIRI)))
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(h.logger, err)
		}
	}()

	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, fmt.Errorf("get total items from reference query: %w", err)
	}

	return vocab.NewOrderedCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithFirst(h.pageURL(id, 0, h.PageSize)),
		vocab.WithTotalItems(totalItems),
	), nil
}

func (h *Activities) getPage(objectIRI, id *url.URL, refType spi.ReferenceType,
	pageNum, limit int) (*vocab.OrderedCollectionPageType, error) {
	it, err := h.activityStore.QueryActivities(
		spi.NewCriteria(
			spi.WithReferenceType(refType),
			spi.WithObjectIRI(objectIRI),
		),
		spi.WithPageSize(limit),
		spi.WithPageNum(pageNum),
		spi.WithSortOrder(h.sortOrder),
	)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(h.logger, err)
		}
	}()

	activities, err := storeutil.ReadActivities(it, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*vocab.ObjectProperty, len(activities))

	for i, activity := range activities {
		items[i] = vocab.NewObjectProperty(vocab.WithActivity(activity))
	}

	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, fmt.Errorf("get total items from activity query: %w", err)
	}

	prev, next := h.prevNextURLs(id, pageNum, limit, totalItems)

	return vocab.NewOrderedCollectionPage(items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(h.pageURL(id, pageNum, limit)),
		vocab.WithPartOf(id),
		vocab.WithPrev(prev),
		vocab.WithNext(next),
		vocab.WithTotalItems(totalItems),
	), nil
}

// ReadOutbox implements the outbox GET endpoint. Administrative requests see all
// activities in the outbox; everyone else sees only the activities addressed to
// the public audience.
type ReadOutbox struct {
	*Activities
}

// NewReadOutbox returns a REST handler that retrieves an actor's outbox.
func NewReadOutbox(cfg *Config, activityStore spi.Store) *ReadOutbox {
	h := &ReadOutbox{
		Activities: &Activities{
			refType:      spi.Outbox,
			sortOrder:    spi.SortDescending,
			getObjectIRI: getOwnerIRI,
			getID:        getIRIWithSuffix(getOwnerIRI, "outbox"),
		},
	}

	h.Activities.handler = newHandler(OutboxPath, http.MethodGet, cfg, activityStore, h.handleOutbox, nil)

	return h
}

func (h *ReadOutbox) handleOutbox(w http.ResponseWriter, req *http.Request) {
	if h.isAdmin(req) {
		h.handleRefsOfType(w, req, spi.Outbox)
	} else {
		h.handleRefsOfType(w, req, spi.PublicOutbox)
	}
}
