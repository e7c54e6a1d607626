/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"errors"
	"fmt"
	"net/url"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

// Outbox applies the local side effects of activities that are posted to the outbox of
// a local actor. The activity has already been validated and persisted to the actor's
// outbox when this handler is invoked.
type Outbox struct {
	*handler

	collections collectionManager
}

// NewOutbox returns a new ActivityPub outbox activity handler.
func NewOutbox(cfg *Config, s store.Store, collections collectionManager) *Outbox {
	return &Outbox{
		handler:     newHandler(cfg, s),
		collections: collections,
	}
}

// HandleActivity handles the ActivityPub activity on behalf of the local actor that posted
// the activity to its outbox.
func (h *Outbox) HandleActivity(actorIRI *url.URL, activity *vocab.ActivityType) error {
	typeProp := activity.Type()

	switch {
	case typeProp.Is(vocab.TypeCreate):
		return h.handleCreateActivity(actorIRI, activity)
	case typeProp.Is(vocab.TypeLike):
		return h.handleLikeActivity(actorIRI, activity)
	case typeProp.Is(vocab.TypeAnnounce):
		return h.handleAnnounceActivity(actorIRI, activity)
	case typeProp.Is(vocab.TypeAdd):
		return h.handleAddActivity(actorIRI, activity)
	case typeProp.Is(vocab.TypeRemove):
		return h.handleRemoveActivity(actorIRI, activity)
	case typeProp.Is(vocab.TypeUndo):
		return h.handleUndoActivity(actorIRI, activity)
	default:
		// Follow, Accept, Reject, Update, and Delete have no local outbox side effects.
		// Following relationships are only recorded when the remote actor accepts.
		h.notify(activity)

		return nil
	}
}

// handleCreateActivity records a reply reference when the created object is a reply to
// another object.
func (h *Outbox) handleCreateActivity(actorIRI *url.URL, create *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Create' activity", logfields.WithActivityID(create.ID()),
		logfields.WithActorIRI(actorIRI))

	obj := create.Object().Object()

	if obj != nil && obj.InReplyTo() != nil && obj.ID() != nil {
		if err := h.store.AddReference(store.Reply, obj.InReplyTo().URL(), obj.ID().URL()); err != nil {
			return brocaerrors.NewTransient(fmt.Errorf("store reply reference: %w", err))
		}
	}

	h.notify(create)

	return nil
}

// handleLikeActivity records the Like in the actor's 'liked' collection and indexes it
// against the liked object.
func (h *Outbox) handleLikeActivity(actorIRI *url.URL, like *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Like' activity", logfields.WithActivityID(like.ID()))

	objectIRI := like.Object().ID()
	if objectIRI == nil || objectIRI.URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Like' activity"))
	}

	if err := h.store.AddReference(store.Liked, actorIRI, like.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store liked reference: %w", err))
	}

	if err := h.store.AddReference(store.Like, objectIRI.URL(), like.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store like reference: %w", err))
	}

	h.notify(like)

	return nil
}

// handleAnnounceActivity records the Announce in the actor's 'shares' and indexes it
// against the shared object.
func (h *Outbox) handleAnnounceActivity(actorIRI *url.URL, announce *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Announce' activity", logfields.WithActivityID(announce.ID()))

	objectIRI := announce.Object().ID()
	if objectIRI == nil || objectIRI.URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Announce' activity"))
	}

	if err := h.store.AddReference(store.Share, actorIRI, announce.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store shares reference: %w", err))
	}

	if err := h.store.AddReference(store.Share, objectIRI.URL(), announce.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store share reference: %w", err))
	}

	h.notify(announce)

	return nil
}

func (h *Outbox) handleAddActivity(actorIRI *url.URL, add *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Add' activity", logfields.WithActivityID(add.ID()))

	collectionID, err := resolveCollectionID(actorIRI, add.Target())
	if err != nil {
		return brocaerrors.NewBadRequest(err)
	}

	objectID := add.Object().ID()
	if objectID == nil || objectID.URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Add' activity"))
	}

	if err := h.collections.AddItem(actorIRI, collectionID, objectID.URL()); err != nil {
		return fmt.Errorf("add item to collection [%s]: %w", collectionID, err)
	}

	h.notify(add)

	return nil
}

func (h *Outbox) handleRemoveActivity(actorIRI *url.URL, remove *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Remove' activity", logfields.WithActivityID(remove.ID()))

	collectionID, err := resolveCollectionID(actorIRI, remove.Target())
	if err != nil {
		return brocaerrors.NewBadRequest(err)
	}

	objectID := remove.Object().ID()
	if objectID == nil || objectID.URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no object specified in 'Remove' activity"))
	}

	if err := h.collections.RemoveItem(actorIRI, collectionID, objectID.URL()); err != nil {
		return fmt.Errorf("remove item from collection [%s]: %w", collectionID, err)
	}

	h.notify(remove)

	return nil
}

func (h *Outbox) handleUndoActivity(actorIRI *url.URL, undo *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Undo' activity", logfields.WithActivityID(undo.ID()))

	original, err := h.resolveActivityInUndo(undo)
	if err != nil {
		return err
	}

	if original.Actor() == nil || original.Actor().String() != actorIRI.String() {
		return brocaerrors.NewBadRequestf("not handling 'Undo' activity %s since the actor [%s] is not"+
			" the actor of the original activity [%s]", undo.ID(), actorIRI, original.Actor())
	}

	switch {
	case original.Type().Is(vocab.TypeFollow):
		err = h.undoFollowing(actorIRI, original)
	case original.Type().Is(vocab.TypeLike):
		err = h.undoLiked(actorIRI, original)
	case original.Type().Is(vocab.TypeAnnounce):
		err = h.undoShare(actorIRI, original)
	default:
		return fmt.Errorf("undo of type %s is not supported", original.Type())
	}

	if err != nil {
		return fmt.Errorf("undo activity [%s]: %w", undo.ID(), err)
	}

	h.notify(undo)

	return nil
}

func (h *Outbox) resolveActivityInUndo(undo *vocab.ActivityType) (*vocab.ActivityType, error) {
	originalID := undo.Object().ID()
	if originalID == nil || originalID.URL() == nil {
		return nil, brocaerrors.NewBadRequest(
			errors.New("no activity specified in the 'object' field of the 'Undo' activity"))
	}

	original, err := h.store.GetActivity(originalID.URL())
	if err == nil {
		return original, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, brocaerrors.NewTransient(fmt.Errorf("retrieve activity %s: %w", originalID, err))
	}

	if embedded := undo.Object().Activity(); embedded != nil {
		return embedded, nil
	}

	return nil, fmt.Errorf("activity in 'Undo' [%s] not found in store", originalID)
}

// undoFollowing removes the remote actor from the local actor's 'following' collection
// when the local actor unfollows.
func (h *Outbox) undoFollowing(actorIRI *url.URL, follow *vocab.ActivityType) error {
	iri := follow.Object().IRI()
	if iri == nil {
		return brocaerrors.NewBadRequest(errors.New("no IRI specified in 'object' field of the 'Follow' activity"))
	}

	if err := h.store.DeleteReference(store.Following, actorIRI, iri); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete following %s of %s: %w", iri, actorIRI, err))
	}

	return nil
}

func (h *Outbox) undoLiked(actorIRI *url.URL, like *vocab.ActivityType) error {
	if err := h.store.DeleteReference(store.Liked, actorIRI, like.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete liked reference: %w", err))
	}

	if objectIRI := like.Object().ID(); objectIRI != nil && objectIRI.URL() != nil {
		if err := h.store.DeleteReference(store.Like, objectIRI.URL(), like.ID().URL()); err != nil {
			return brocaerrors.NewTransient(fmt.Errorf("delete like reference: %w", err))
		}
	}

	return nil
}

func (h *Outbox) undoShare(actorIRI *url.URL, announce *vocab.ActivityType) error {
	if err := h.store.DeleteReference(store.Share, actorIRI, announce.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete shares reference: %w", err))
	}

	if objectIRI := announce.Object().ID(); objectIRI != nil && objectIRI.URL() != nil {
		if err := h.store.DeleteReference(store.Share, objectIRI.URL(), announce.ID().URL()); err != nil {
			return brocaerrors.NewTransient(fmt.Errorf("delete share reference: %w", err))
		}
	}

	return nil
}
