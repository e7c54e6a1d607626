/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/collections"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

type identityManager interface {
	CreateActor(actor *vocab.ActorType) (*vocab.ActorType, error)
	UpdateActor(actor *vocab.ActorType) error
	DeleteActor(actorIRI *url.URL) error
}

type collectionAdmin interface {
	Create(ownerIRI *url.URL, def *collections.Definition) error
	Update(ownerIRI *url.URL, def *collections.Definition) error
	Delete(ownerIRI *url.URL, collectionID string) error
}

// Admin applies administrative operations that are posted to the system actor's inbox
// with the administrative bearer token: management of local actors and of custom
// collections. Activities that are not administrative operations are delegated to the
// regular inbox handler.
type Admin struct {
	*handler

	delegate    service.ActivityHandler
	identity    identityManager
	collections collectionAdmin
}

// NewAdmin returns a new administrative activity handler.
func NewAdmin(cfg *Config, s store.Store, delegate service.ActivityHandler, identity identityManager,
	collections collectionAdmin) *Admin {
	return &Admin{
		handler:     newHandler(cfg, s),
		delegate:    delegate,
		identity:    identity,
		collections: collections,
	}
}

// HandleActivity handles an administrative activity that was posted to the system
// actor's inbox.
func (h *Admin) HandleActivity(ownerIRI *url.URL, activity *vocab.ActivityType) error {
	typeProp := activity.Type()

	switch {
	case typeProp.Is(vocab.TypeCreate):
		return h.handleCreate(ownerIRI, activity)
	case typeProp.Is(vocab.TypeUpdate):
		return h.handleUpdate(ownerIRI, activity)
	case typeProp.Is(vocab.TypeDelete):
		return h.handleDelete(ownerIRI, activity)
	default:
		return h.delegate.HandleActivity(ownerIRI, activity)
	}
}

func (h *Admin) handleCreate(ownerIRI *url.URL, create *vocab.ActivityType) error {
	obj := create.Object().Object()
	if obj == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Create' activity"))
	}

	switch {
	case obj.Type().IsActor():
		return h.createActor(create, obj)

	case obj.Type().Is(vocab.TypeCollection):
		return h.createCollection(create, obj)

	default:
		return h.delegate.HandleActivity(ownerIRI, create)
	}
}

func (h *Admin) createActor(create *vocab.ActivityType, obj *vocab.ObjectType) error {
	requested, err := actorFromObject(obj)
	if err != nil {
		return brocaerrors.NewBadRequest(fmt.Errorf("invalid actor in 'Create' activity: %w", err))
	}

	actor, err := h.identity.CreateActor(requested)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}

	h.logger.Info("Created actor", logfields.WithActorIRI(actor.ID()),
		logfields.WithUsername(actor.PreferredUsername()))

	h.notify(create)

	return nil
}

func (h *Admin) createCollection(create *vocab.ActivityType, obj *vocab.ObjectType) error {
	ownerIRI, def, err := collectionDefinition(obj)
	if err != nil {
		return err
	}

	if err := h.collections.Create(ownerIRI, def); err != nil {
		return fmt.Errorf("create collection [%s]: %w", def.ID, err)
	}

	h.logger.Info("Created collection", logfields.WithCollection(def.ID), logfields.WithActorIRI(ownerIRI))

	h.notify(create)

	return nil
}

func (h *Admin) handleUpdate(ownerIRI *url.URL, update *vocab.ActivityType) error {
	obj := update.Object().Object()
	if obj == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Update' activity"))
	}

	switch {
	case obj.Type().IsActor():
		actor, err := actorFromObject(obj)
		if err != nil {
			return brocaerrors.NewBadRequest(fmt.Errorf("invalid actor in 'Update' activity: %w", err))
		}

		if err := h.identity.UpdateActor(actor); err != nil {
			return fmt.Errorf("update actor: %w", err)
		}

		h.logger.Info("Updated actor", logfields.WithActorIRI(actor.ID()))

	case obj.Type().Is(vocab.TypeCollection):
		collOwnerIRI, def, err := collectionDefinition(obj)
		if err != nil {
			return err
		}

		if err := h.collections.Update(collOwnerIRI, def); err != nil {
			return fmt.Errorf("update collection [%s]: %w", def.ID, err)
		}

		h.logger.Info("Updated collection", logfields.WithCollection(def.ID), logfields.WithActorIRI(collOwnerIRI))

	default:
		return h.delegate.HandleActivity(ownerIRI, update)
	}

	h.notify(update)

	return nil
}

func (h *Admin) handleDelete(_ *url.URL, del *vocab.ActivityType) error {
	targetID := del.Object().ID()
	if targetID == nil || targetID.URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Delete' activity"))
	}

	target := targetID.URL()

	if ownerIRI, collectionID, ok := parseCollectionIRI(target); ok {
		if err := h.collections.Delete(ownerIRI, collectionID); err != nil {
			return fmt.Errorf("delete collection [%s]: %w", collectionID, err)
		}

		h.logger.Info("Deleted collection", logfields.WithCollection(collectionID),
			logfields.WithActorIRI(ownerIRI))
	} else {
		if err := h.identity.DeleteActor(target); err != nil {
			return fmt.Errorf("delete actor: %w", err)
		}

		h.logger.Info("Deleted actor", logfields.WithActorIRI(target))
	}

	h.notify(del)

	return nil
}

// actorFromObject converts an embedded object into an actor.
func actorFromObject(obj *vocab.ObjectType) (*vocab.ActorType, error) {
	objBytes, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}

	actor := &vocab.ActorType{}

	if err := json.Unmarshal(objBytes, actor); err != nil {
		return nil, fmt.Errorf("unmarshal actor: %w", err)
	}

	return actor, nil
}

// collectionDefinition extracts the collection definition and its owner from a
// Collection object in an administrative Create or Update activity.
func collectionDefinition(obj *vocab.ObjectType) (*url.URL, *collections.Definition, error) {
	if obj.AttributedTo() == nil || obj.AttributedTo().URL() == nil {
		return nil, nil, brocaerrors.NewBadRequest(
			errors.New("no attributedTo specified in 'Collection' object"))
	}

	value, ok := obj.Value(vocab.PropertyBrocaCollectionDefinition)
	if !ok {
		return nil, nil, brocaerrors.NewBadRequestf("no '%s' property specified in 'Collection' object",
			vocab.PropertyBrocaCollectionDefinition)
	}

	defBytes, err := json.Marshal(value)
	if err != nil {
		return nil, nil, brocaerrors.NewBadRequest(fmt.Errorf("marshal collection definition: %w", err))
	}

	def := &collections.Definition{}

	if err := json.Unmarshal(defBytes, def); err != nil {
		return nil, nil, brocaerrors.NewBadRequest(fmt.Errorf("invalid collection definition: %w", err))
	}

	return obj.AttributedTo().URL(), def, nil
}

// parseCollectionIRI splits a collection IRI of the form {owner}/collections/{id} into
// the owner IRI and collection ID.
func parseCollectionIRI(iri *url.URL) (*url.URL, string, bool) {
	idx := strings.Index(iri.String(), "/collections/")
	if idx < 0 {
		return nil, "", false
	}

	ownerIRI, err := url.Parse(iri.String()[:idx])
	if err != nil {
		return nil, "", false
	}

	collectionID := iri.String()[idx+len("/collections/"):]

	if collectionID == "" || strings.Contains(collectionID, "/") {
		return nil, "", false
	}

	return ownerIRI, collectionID, true
}
