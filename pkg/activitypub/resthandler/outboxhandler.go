/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

type outbox interface {
	Post(activity *vocab.ActivityType) (*url.URL, error)
}

// PostOutbox implements the outbox POST endpoint. The posted activity must be
// attributed to the actor that owns the outbox, and the request must be authorized
// either with the administrative bearer token or with an HTTP signature of the
// owning actor. On success the activity ID is returned in the Location header
// with a 201 status.
type PostOutbox struct {
	*handler

	ob outbox
}

// NewPostOutbox returns a REST handler that posts activities to an actor's outbox.
func NewPostOutbox(cfg *Config, ob outbox, activityStore spi.Store, verifier signatureVerifier) *PostOutbox {
	h := &PostOutbox{
		ob: ob,
	}

	h.handler = newHandler(OutboxPath, http.MethodPost, cfg, activityStore, h.handlePost, verifier)

	return h
}

func (h *PostOutbox) handlePost(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		h.logger.Debug("Error getting owner IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	ok, err := h.authorizePost(req, ownerIRI)
	if err != nil {
		h.logger.Error("Error authorizing request", log.WithError(err), logfields.WithRequestURL(req.URL))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	if !ok {
		h.logger.Info("Unauthorized", logfields.WithRequestURL(req.URL))

		h.writeResponse(w, http.StatusUnauthorized, []byte(unauthorizedResponse))

		return
	}

	activityBytes, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.Error("Error reading request body", log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	activity, err := h.unmarshalAndValidateActivity(activityBytes, ownerIRI)
	if err != nil {
		h.logger.Debug("Invalid activity", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	activityID, err := h.ob.Post(activity)
	if err != nil {
		if brocaerrors.IsBadRequest(err) {
			h.logger.Debug("Error posting activity", log.WithError(err))

			h.writeResponse(w, http.StatusBadRequest, []byte(err.Error()))
		} else {
			h.logger.Error("Error posting activity", log.WithError(err))

			h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))
		}

		return
	}

	activityIDBytes, err := h.marshal(activityID.String())
	if err != nil {
		h.logger.Error("Error marshaling activity ID", log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	w.Header().Set("Location", activityID.String())

	h.writeResponse(w, http.StatusCreated, activityIDBytes)
}

// authorizePost authorizes a post to the given actor's outbox. The administrative
// bearer token grants access to any local outbox. With an HTTP signature, the
// signing actor must be the owner of the outbox. If no signature verifier is
// configured (signatures disabled) then the endpoint's bearer tokens apply.
func (h *PostOutbox) authorizePost(req *http.Request, ownerIRI *url.URL) (bool, error) {
	if h.isAdmin(req) {
		return true, nil
	}

	if h.verifier == nil {
		return h.tokenVerifier.Verify(req), nil
	}

	ok, actorIRI, err := h.verifier.VerifyRequest(req)
	if err != nil {
		return false, fmt.Errorf("verify HTTP signature: %w", err)
	}

	if !ok {
		return false, nil
	}

	if actorIRI.String() != ownerIRI.String() {
		h.logger.Info("Actor in HTTP signature is not the owner of the outbox",
			logfields.WithActorIRI(actorIRI), logfields.WithObjectIRI(ownerIRI))

		return false, nil
	}

	return true, nil
}

func (h *PostOutbox) unmarshalAndValidateActivity(activityBytes []byte,
	ownerIRI *url.URL) (*vocab.ActivityType, error) {
	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(activityBytes, activity); err != nil {
		return nil, fmt.Errorf("unmarshal activity: %w", err)
	}

	if activity.Actor() == nil {
		return nil, fmt.Errorf("no actor specified in activity [%s]", activity.ID())
	}

	if activity.Actor().String() != ownerIRI.String() {
		return nil, fmt.Errorf("actor in activity [%s] does not match the owner of the outbox [%s]",
			activity.ID(), ownerIRI)
	}

	return activity, nil
}
