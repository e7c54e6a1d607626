/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/collections"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

type collectionManager interface {
	Get(ownerIRI *url.URL, collectionID string) (*collections.Definition, error)
	List(ownerIRI *url.URL) ([]*collections.Definition, error)
	ReadPage(ownerIRI *url.URL, def *collections.Definition, pageNum, pageSize int) (*collections.Page, error)
}

// CollectionCatalog implements the custom-collection catalog endpoint. It lists the
// URLs of an actor's custom collections. Administrative requests see all of the
// actor's collections; everyone else sees only the PUBLIC ones.
type CollectionCatalog struct {
	*handler

	manager collectionManager
}

// NewCollectionCatalog returns a REST handler that retrieves an actor's
// custom-collection catalog.
func NewCollectionCatalog(cfg *Config, activityStore spi.Store, manager collectionManager) *CollectionCatalog {
	h := &CollectionCatalog{
		manager: manager,
	}

	h.handler = newHandler(CollectionsPath, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *CollectionCatalog) handle(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		h.logger.Debug("Error getting owner IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	defs, err := h.manager.List(ownerIRI)
	if err != nil {
		h.logger.Error("Error listing collections of actor", logfields.WithActorIRI(ownerIRI),
			log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	isAdmin := h.isAdmin(req)

	var items []*vocab.ObjectProperty

	for _, def := range defs {
		if def.Visibility != collections.VisibilityPublic && !isAdmin {
			continue
		}

		collIRI, err := url.Parse(fmt.Sprintf("%s/collections/%s", ownerIRI, def.ID))
		if err != nil {
			h.logger.Error("Error parsing collection IRI", logfields.WithActorIRI(ownerIRI),
				logfields.WithCollection(def.ID), log.WithError(err))

			continue
		}

		items = append(items, vocab.NewObjectProperty(vocab.WithIRI(collIRI)))
	}

	catalogIRI, err := url.Parse(fmt.Sprintf("%s/collections", ownerIRI))
	if err != nil {
		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	catalog := vocab.NewOrderedCollection(items,
		vocab.WithContext(vocab.ContextActivityStreams, vocab.ContextBroca),
		vocab.WithID(catalogIRI),
		vocab.WithTotalItems(len(items)),
	)

	catalogBytes, err := h.marshal(catalog)
	if err != nil {
		h.logger.Error("Unable to marshal collection catalog", logfields.WithActorIRI(ownerIRI),
			log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, catalogBytes)
}

// Collection implements the custom collection endpoint with two-tier paging.
// PRIVATE collections require the administrative bearer token; UNLISTED collections
// are served to anyone who knows the URL.
type Collection struct {
	*handler

	manager collectionManager
}

// NewCollection returns a REST handler that retrieves the contents of a custom
// collection.
func NewCollection(cfg *Config, activityStore spi.Store, manager collectionManager) *Collection {
	h := &Collection{
		manager: manager,
	}

	h.handler = newHandler(CollectionPath, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *Collection) handle(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		h.logger.Debug("Error getting owner IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	collectionID := mux.Vars(req)[idParam]
	if collectionID == "" {
		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	def, err := h.manager.Get(ownerIRI, collectionID)
	if err != nil {
		if errors.Is(err, brocaerrors.ErrNotFound) {
			h.writeResponse(w, http.StatusNotFound, []byte(notFoundResponse))

			return
		}

		h.logger.Error("Error retrieving collection", logfields.WithActorIRI(ownerIRI),
			logfields.WithCollection(collectionID), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	if def.Visibility == collections.VisibilityPrivate && !h.isAdmin(req) {
		h.logger.Debug("Unauthorized for private collection", logfields.WithActorIRI(ownerIRI),
			logfields.WithCollection(collectionID))

		h.writeResponse(w, http.StatusUnauthorized, []byte(unauthorizedResponse))

		return
	}

	id, err := url.Parse(fmt.Sprintf("%s/collections/%s", ownerIRI, collectionID))
	if err != nil {
		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	if h.isPaging(req) {
		h.handlePage(w, req, ownerIRI, id, def)
	} else {
		h.handleCollection(w, ownerIRI, id, def)
	}
}

func (h *Collection) handleCollection(w http.ResponseWriter, ownerIRI, id *url.URL,
	def *collections.Definition) {
	page, err := h.manager.ReadPage(ownerIRI, def, 0, h.PageSize)
	if err != nil {
		h.logger.Error("Error reading collection", logfields.WithActorIRI(ownerIRI),
			logfields.WithCollection(def.ID), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	coll := vocab.NewOrderedCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithFirst(h.pageURL(id, 0, h.PageSize)),
		vocab.WithTotalItems(page.TotalItems),
	)

	collBytes, err := h.marshal(coll)
	if err != nil {
		h.logger.Error("Unable to marshal collection", logfields.WithCollection(def.ID), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, collBytes)
}

func (h *Collection) handlePage(w http.ResponseWriter, req *http.Request, ownerIRI, id *url.URL,
	def *collections.Definition) {
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

	page, err := h.manager.ReadPage(ownerIRI, def, pageNum, limit)
	if err != nil {
		if brocaerrors.IsBadRequest(err) {
			h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))
		} else {
			h.logger.Error("Error reading collection page", logfields.WithActorIRI(ownerIRI),
				logfields.WithCollection(def.ID), log.WithError(err))

			h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))
		}

		return
	}

	prev, next := h.prevNextURLs(id, pageNum, limit, page.TotalItems)

	collPage := vocab.NewOrderedCollectionPage(page.Items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(h.pageURL(id, pageNum, limit)),
		vocab.WithPartOf(id),
		vocab.WithPrev(prev),
		vocab.WithNext(next),
		vocab.WithTotalItems(page.TotalItems),
	)

	pageBytes, err := h.marshal(collPage)
	if err != nil {
		h.logger.Error("Unable to marshal collection page", logfields.WithCollection(def.ID),
			log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, pageBytes)
}
