/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// Object implements a REST handler that retrieves a single object by ID. Objects
// that are not addressed to the public audience require authorization.
type Object struct {
	*handler
}

// NewObject returns a REST handler that retrieves a single object.
func NewObject(cfg *Config, activityStore spi.Store) *Object {
	h := &Object{}

	h.handler = newHandler(ObjectPath, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *Object) handle(w http.ResponseWriter, req *http.Request) {
	objectIRI, err := getObjectIRI(h.handler, req)
	if err != nil {
		h.logger.Debug("Error getting object IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	obj, err := h.activityStore.GetObject(objectIRI)
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			h.logger.Debug("Object not found", logfields.WithObjectIRI(objectIRI))

			h.writeResponse(w, http.StatusNotFound, []byte(notFoundResponse))

			return
		}

		h.logger.Error("Unable to retrieve object", logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	if !isPublic(obj) && !h.isAdmin(req) {
		h.logger.Debug("Unauthorized for object", logfields.WithObjectIRI(objectIRI))

		h.writeResponse(w, http.StatusUnauthorized, []byte(unauthorizedResponse))

		return
	}

	objBytes, err := h.marshal(obj)
	if err != nil {
		h.logger.Error("Unable to marshal object", logfields.WithObjectIRI(objectIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, objBytes)
}

func isPublic(obj *vocab.ObjectType) bool {
	for _, r := range obj.Recipients() {
		if r.String() == vocab.PublicIRI {
			return true
		}
	}

	return false
}
