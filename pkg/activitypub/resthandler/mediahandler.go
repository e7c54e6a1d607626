/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

type blobStore interface {
	Get(owner, blobID string) (content []byte, contentType string, err error)
}

// Media implements the media blob endpoint, which serves the content of
// attachments that were mirrored onto this domain.
type Media struct {
	*handler

	blobs blobStore
}

// NewMedia returns a REST handler that serves media blobs.
func NewMedia(cfg *Config, activityStore spi.Store, blobs blobStore) *Media {
	h := &Media{
		blobs: blobs,
	}

	h.handler = newHandler(MediaPath, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *Media) handle(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	owner := vars[usernameParam]
	blobID := vars[idParam]

	if owner == "" || blobID == "" {
		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	content, contentType, err := h.blobs.Get(owner, blobID)
	if err != nil {
		if errors.Is(err, brocaerrors.ErrNotFound) {
			h.logger.Debug("Media blob not found", logfields.WithUsername(owner),
				logfields.WithBlobID(blobID))

			h.writeResponse(w, http.StatusNotFound, []byte(notFoundResponse))

			return
		}

		h.logger.Error("Error retrieving media blob", logfields.WithUsername(owner),
			logfields.WithBlobID(blobID), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(content); err != nil {
		h.logger.Warn("Unable to write response", log.WithError(err))
	}
}
