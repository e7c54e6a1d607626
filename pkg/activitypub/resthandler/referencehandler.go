/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// Reference implements a REST handler that serves a reference collection as an
// OrderedCollection of IRIs with the same two-tier paging as Activities.
type Reference struct {
	*handler

	refType      spi.ReferenceType
	sortOrder    spi.SortOrder
	getObjectIRI getIRIFunc
	getID        getIRIFunc
}

// NewFollowers returns a REST handler that retrieves an actor's followers.
func NewFollowers(cfg *Config, activityStore spi.Store) *Reference {
	return newReference(FollowersPath, spi.Follower, cfg, activityStore,
		getOwnerIRI, getIRIWithSuffix(getOwnerIRI, "followers"))
}

// NewFollowing returns a REST handler that retrieves the actors that an actor
// is following.
func NewFollowing(cfg *Config, activityStore spi.Store) *Reference {
	return newReference(FollowingPath, spi.Following, cfg, activityStore,
		getOwnerIRI, getIRIWithSuffix(getOwnerIRI, "following"))
}

// NewReplies returns a REST handler that retrieves the objects that were posted
// in reply to an object.
func NewReplies(cfg *Config, activityStore spi.Store) *Reference {
	return newReference(RepliesPath, spi.Reply, cfg, activityStore,
		getObjectIRI, getIRIWithSuffix(getObjectIRI, "replies"))
}

func newReference(path string, refType spi.ReferenceType, cfg *Config, activityStore spi.Store,
	getObjectIRI, getID getIRIFunc) *Reference {
	h := &Reference{
		refType:      refType,
		sortOrder:    spi.SortAscending,
		getObjectIRI: getObjectIRI,
		getID:        getID,
	}

	h.handler = newHandler(path, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *Reference) handle(w http.ResponseWriter, req *http.Request) {
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
		h.handlePage(w, req, objectIRI, id)
	} else {
		h.handleCollection(w, objectIRI, id)
	}
}

func (h *Reference) handleCollection(w http.ResponseWriter, objectIRI, id *url.URL) {
	coll, err := h.getCollection(objectIRI, id)
	if err != nil {
		h.logger.Error("Error retrieving references", logfields.WithReferenceType(string(h.refType)),
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

func (h *Reference) handlePage(w http.ResponseWriter, req *http.Request, objectIRI, id *url.URL) {
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

	page, err := h.getPage(objectIRI, id, pageNum, limit)
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

func (h *Reference) getCollection(objectIRI, id *url.URL) (*vocab.OrderedCollectionType, error) {
	it, err := h.activityStore.QueryReferences(h.refType,
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

func (h *Reference) getPage(objectIRI, id *url.URL, pageNum, limit int) (*vocab.OrderedCollectionPageType, error) {
	it, err := h.activityStore.QueryReferences(h.refType,
		spi.NewCriteria(spi.WithObjectIRI(objectIRI)),
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

	refs, err := storeutil.ReadReferences(it, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*vocab.ObjectProperty, len(refs))

	for i, ref := range refs {
		items[i] = vocab.NewObjectProperty(vocab.WithIRI(ref))
	}

	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, fmt.Errorf("get total items from reference query: %w", err)
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
