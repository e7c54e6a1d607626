/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

type collectionCatalog interface {
	CollectionsMap(ownerIRI *url.URL) (map[string]string, error)
}

type privateKeyResolver interface {
	PrivateKeyPem(actorIRI *url.URL) (string, error)
}

// ActorProfile implements the actor profile endpoint. The served document includes
// the actor's public custom collections in the 'broca:collections' map. The actor's
// private key PEM is included only for requests that carry the administrative
// bearer token.
type ActorProfile struct {
	*handler

	collections    collectionCatalog
	keys           privateKeyResolver
	systemActorIRI *url.URL
}

// NewActorProfile returns a REST handler that retrieves an actor's profile document.
// The systemActorIRI may be nil, in which case no admin capability is advertised.
func NewActorProfile(cfg *Config, activityStore spi.Store, collections collectionCatalog,
	keys privateKeyResolver, systemActorIRI *url.URL) *ActorProfile {
	h := &ActorProfile{
		collections:    collections,
		keys:           keys,
		systemActorIRI: systemActorIRI,
	}

	h.handler = newHandler(ActorPath, http.MethodGet, cfg, activityStore, h.handle, nil)

	return h
}

func (h *ActorProfile) handle(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		h.logger.Debug("Error getting owner IRI", log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	actor, err := h.getActor(ownerIRI)
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			h.writeResponse(w, http.StatusNotFound, []byte(notFoundResponse))

			return
		}

		h.logger.Error("Error retrieving actor", logfields.WithActorIRI(ownerIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	collections, err := h.collections.CollectionsMap(ownerIRI)
	if err != nil {
		h.logger.Error("Error retrieving collections of actor", logfields.WithActorIRI(ownerIRI),
			log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	if len(collections) > 0 {
		actor.SetCollections(collections)
	}

	if h.systemActorIRI != nil && h.AdminToken != "" && ownerIRI.String() == h.systemActorIRI.String() {
		actor.SetValue(vocab.PropertyBrocaAdminOperations, map[string]interface{}{
			"enabled":     true,
			"authMethods": []string{"bearer"},
		})
	}

	if h.isAdmin(req) {
		privateKeyPem, err := h.keys.PrivateKeyPem(ownerIRI)
		if err != nil {
			h.logger.Error("Error retrieving private key of actor", logfields.WithActorIRI(ownerIRI),
				log.WithError(err))

			h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

			return
		}

		actor.SetValue("privateKeyPem", privateKeyPem)
	}

	actorBytes, err := h.marshal(actor)
	if err != nil {
		h.logger.Error("Unable to marshal actor", logfields.WithActorIRI(ownerIRI), log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	h.writeResponse(w, http.StatusOK, actorBytes)
}

// getActor returns a copy of the stored actor so that the per-request properties
// added below never leak into the store.
func (h *ActorProfile) getActor(ownerIRI *url.URL) (*vocab.ActorType, error) {
	actor, err := h.activityStore.GetActor(ownerIRI)
	if err != nil {
		return nil, err
	}

	actorBytes, err := json.Marshal(actor)
	if err != nil {
		return nil, err
	}

	clone := &vocab.ActorType{}

	if err := json.Unmarshal(actorBytes, clone); err != nil {
		return nil, err
	}

	return clone, nil
}
