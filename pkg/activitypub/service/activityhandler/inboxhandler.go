/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

// Inbox applies the side effects of activities that are posted to the inbox of a local actor.
type Inbox struct {
	*handler
	*service.Handlers

	outbox      service.Outbox
	client      actorRetriever
	collections collectionManager
}

// NewInbox returns a new ActivityPub inbox activity handler.
func NewInbox(cfg *Config, s store.Store, outbox service.Outbox, retriever actorRetriever,
	collections collectionManager, opts ...service.HandlerOpt) *Inbox {
	options := defaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	return &Inbox{
		handler:     newHandler(cfg, s),
		Handlers:    options,
		outbox:      outbox,
		client:      retriever,
		collections: collections,
	}
}

// HandleActivity handles the ActivityPub activity on behalf of the local actor that owns
// the inbox to which the activity was posted.
func (h *Inbox) HandleActivity(ownerIRI *url.URL, activity *vocab.ActivityType) error {
	typeProp := activity.Type()

	switch {
	case typeProp.Is(vocab.TypeCreate):
		return h.handleCreateActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeFollow):
		return h.handleFollowActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAccept):
		return h.handleAcceptActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeReject):
		return h.handleRejectActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeUndo):
		return h.handleUndoActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeLike):
		return h.handleLikeActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAnnounce):
		return h.handleAnnounceActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeAdd):
		return h.handleAddActivity(ownerIRI, activity)
	case typeProp.Is(vocab.TypeRemove):
		return h.handleRemoveActivity(ownerIRI, activity)
	default:
		// The activity has already been persisted to the owner's inbox, so an
		// unrecognized type is not an error.
		h.logger.Info("Ignoring activity of unsupported type", logfields.WithActivityID(activity.ID()),
			logfields.WithActivityType(typeProp.String()))

		return nil
	}
}

// handleCreateActivity records a reply reference if the created object is a reply. The
// activity itself was persisted to the owner's inbox before this handler was invoked.
func (h *Inbox) handleCreateActivity(ownerIRI *url.URL, create *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Create' activity", logfields.WithActivityID(create.ID()),
		logfields.WithObjectIRI(ownerIRI))

	obj := create.Object().Object()

	if obj != nil && obj.InReplyTo() != nil && obj.ID() != nil {
		if err := h.store.AddReference(store.Reply, obj.InReplyTo().URL(), obj.ID().URL()); err != nil {
			return brocaerrors.NewTransient(fmt.Errorf("store reply reference: %w", err))
		}
	}

	h.notify(create)

	return nil
}

func (h *Inbox) handleFollowActivity(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Follow' activity", logfields.WithActivityID(follow.ID()))

	actorIRI := follow.Actor()
	if actorIRI == nil {
		return brocaerrors.NewBadRequest(errors.New("no actor specified in 'Follow' activity"))
	}

	iri := follow.Object().IRI()
	if iri == nil {
		return brocaerrors.NewBadRequest(errors.New("no IRI specified in 'object' field of the 'Follow' activity"))
	}

	if iri.String() != ownerIRI.String() {
		return brocaerrors.NewBadRequestf("the 'object' of the 'Follow' activity [%s] is not this actor [%s]",
			iri, ownerIRI)
	}

	hasFollower, err := h.hasReference(store.Follower, ownerIRI, actorIRI)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("query followers of %s: %w", ownerIRI, err))
	}

	if hasFollower {
		h.logger.Debug("Actor is already a follower; nothing to do",
			logfields.WithActorIRI(actorIRI), logfields.WithObjectIRI(ownerIRI))

		return nil
	}

	actor, err := h.client.GetActor(actorIRI)
	if err != nil {
		return fmt.Errorf("retrieve actor [%s]: %w", actorIRI, err)
	}

	// The follower relationship is always recorded. The FollowerAuth hook only decides
	// whether an Accept is posted in response.
	if err := h.store.AddReference(store.Follower, ownerIRI, actorIRI); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store new follower of %s: %w", ownerIRI, err))
	}

	// Cache the remote actor so that its inbox may be resolved without a fetch.
	if err := h.store.PutActor(actor); err != nil {
		h.logger.Warn("Error storing remote actor", logfields.WithActorIRI(actorIRI), log.WithError(err))
	}

	if h.AutoAcceptFollowers {
		accept, err := h.FollowerAuth.AuthorizeFollower(actor)
		if err != nil {
			return fmt.Errorf("authorize follower [%s]: %w", actorIRI, err)
		}

		if accept {
			if err := h.postAccept(follow, ownerIRI, actorIRI); err != nil {
				return err
			}
		} else {
			h.logger.Info("Follow request was not authorized; not posting 'Accept'",
				logfields.WithActorIRI(actorIRI), logfields.WithObjectIRI(ownerIRI))
		}
	}

	h.notify(follow)

	return nil
}

func (h *Inbox) postAccept(follow *vocab.ActivityType, ownerIRI, toIRI *url.URL) error {
	accept := vocab.NewAcceptActivity(
		vocab.NewObjectProperty(vocab.WithActivity(follow)),
		vocab.WithActor(ownerIRI),
		vocab.WithTo(toIRI),
	)

	h.logger.Debug("Posting 'Accept' activity", logfields.WithTargetIRI(toIRI))

	if _, err := h.outbox.Post(accept); err != nil {
		return fmt.Errorf("post 'Accept' to %s: %w", toIRI, err)
	}

	return nil
}

// handleAcceptActivity records a 'following' relationship when a remote actor accepts
// a follow request that was posted by the local actor.
func (h *Inbox) handleAcceptActivity(ownerIRI *url.URL, accept *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Accept' activity", logfields.WithActivityID(accept.ID()))

	actorIRI := accept.Actor()
	if actorIRI == nil {
		return brocaerrors.NewBadRequest(errors.New("no actor specified in 'Accept' activity"))
	}

	follow := accept.Object().Activity()
	if follow == nil || !follow.Type().Is(vocab.TypeFollow) {
		return brocaerrors.NewBadRequest(
			errors.New("no 'Follow' activity specified in the 'object' field of the 'Accept' activity"))
	}

	if follow.Actor() == nil || follow.Actor().String() != ownerIRI.String() {
		return brocaerrors.NewBadRequestf("the actor of the 'Follow' activity in the 'Accept' [%s] is not"+
			" this actor [%s]", follow.Actor(), ownerIRI)
	}

	if obj := follow.Object().IRI(); obj != nil && obj.String() != actorIRI.String() {
		return brocaerrors.NewBadRequestf("the object of the 'Follow' activity [%s] is not the actor of"+
			" the 'Accept' [%s]", obj, actorIRI)
	}

	isFollowing, err := h.hasReference(store.Following, ownerIRI, actorIRI)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("query following of %s: %w", ownerIRI, err))
	}

	if !isFollowing {
		if err := h.store.AddReference(store.Following, ownerIRI, actorIRI); err != nil {
			return brocaerrors.NewTransient(fmt.Errorf("store new following of %s: %w", ownerIRI, err))
		}
	}

	if err := h.AcceptFollowHandler.Accept(actorIRI); err != nil {
		return fmt.Errorf("accept follow handler: %w", err)
	}

	h.notify(accept)

	return nil
}

// handleRejectActivity is informational. No local state is mutated since a follower
// relationship is only recorded when the remote actor accepts the follow request.
func (h *Inbox) handleRejectActivity(_ *url.URL, reject *vocab.ActivityType) error {
	h.logger.Info("Follow request was rejected", logfields.WithActivityID(reject.ID()),
		logfields.WithActorIRI(reject.Actor()))

	h.notify(reject)

	return nil
}

func (h *Inbox) handleUndoActivity(ownerIRI *url.URL, undo *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Undo' activity", logfields.WithActivityID(undo.ID()))

	if undo.Actor() == nil {
		return brocaerrors.NewBadRequest(errors.New("no actor specified in 'Undo' activity"))
	}

	original, err := h.resolveActivityInUndo(undo)
	if err != nil {
		return err
	}

	if original.Actor() == nil || original.Actor().String() != undo.Actor().String() {
		return brocaerrors.NewBadRequestf("not handling 'Undo' activity %s since the actor of the 'Undo' [%s]"+
			" is not the same as the actor of the original activity [%s]", undo.ID(), undo.Actor(), original.Actor())
	}

	switch {
	case original.Type().Is(vocab.TypeFollow):
		err = h.undoFollow(ownerIRI, original)
	case original.Type().Is(vocab.TypeLike):
		err = h.undoObjectReference(store.Like, original)
	case original.Type().Is(vocab.TypeAnnounce):
		err = h.undoObjectReference(store.Share, original)
	default:
		return fmt.Errorf("undo of type %s is not supported", original.Type())
	}

	if err != nil {
		return fmt.Errorf("undo activity [%s]: %w", undo.ID(), err)
	}

	h.notify(undo)

	return nil
}

// resolveActivityInUndo returns the activity that is being undone: the stored activity
// when the undo refers to an activity of this service, or the embedded activity when the
// original is not in the store.
func (h *Inbox) resolveActivityInUndo(undo *vocab.ActivityType) (*vocab.ActivityType, error) {
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

func (h *Inbox) undoFollow(ownerIRI *url.URL, follow *vocab.ActivityType) error {
	iri := follow.Object().IRI()
	if iri == nil {
		return brocaerrors.NewBadRequest(errors.New("no IRI specified in 'object' field of the 'Follow' activity"))
	}

	if iri.String() != ownerIRI.String() {
		return brocaerrors.NewBadRequestf("the 'object' of the 'Follow' activity [%s] is not this actor [%s]",
			iri, ownerIRI)
	}

	actorIRI := follow.Actor()

	hasFollower, err := h.hasReference(store.Follower, ownerIRI, actorIRI)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("query followers of %s: %w", ownerIRI, err))
	}

	if !hasFollower {
		h.logger.Info("Actor not found in followers; nothing to do",
			logfields.WithActorIRI(actorIRI), logfields.WithObjectIRI(ownerIRI))

		return nil
	}

	if err := h.store.DeleteReference(store.Follower, ownerIRI, actorIRI); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete follower %s of %s: %w", actorIRI, ownerIRI, err))
	}

	if err := h.UndoFollowHandler.Undo(actorIRI); err != nil {
		return fmt.Errorf("undo follow handler: %w", err)
	}

	h.logger.Debug("Deleted follower", logfields.WithActorIRI(actorIRI), logfields.WithObjectIRI(ownerIRI))

	return nil
}

// undoObjectReference removes the reference that was recorded for a Like or Announce
// of one of the local actor's objects.
func (h *Inbox) undoObjectReference(refType store.ReferenceType, original *vocab.ActivityType) error {
	objectIRI := original.Object().ID()
	if objectIRI == nil || objectIRI.URL() == nil {
		return brocaerrors.NewBadRequestf("no object specified in '%s' activity", original.Type())
	}

	if err := h.store.DeleteReference(refType, objectIRI.URL(), original.ID().URL()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete %s reference: %w", refType, err))
	}

	return nil
}

// handleLikeActivity indexes the Like against the liked object so that the likes of
// the object may be queried.
func (h *Inbox) handleLikeActivity(_ *url.URL, like *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Like' activity", logfields.WithActivityID(like.ID()))

	return h.addObjectReference(store.Like, like)
}

// handleAnnounceActivity indexes the Announce against the shared object so that the
// shares of the object may be queried.
func (h *Inbox) handleAnnounceActivity(_ *url.URL, announce *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Announce' activity", logfields.WithActivityID(announce.ID()))

	return h.addObjectReference(store.Share, announce)
}

func (h *Inbox) addObjectReference(refType store.ReferenceType, activity *vocab.ActivityType) error {
	objectIRI := activity.Object().ID()
	if objectIRI == nil || objectIRI.URL() == nil {
		return brocaerrors.NewBadRequestf("no object specified in '%s' activity", activity.Type())
	}

	if err := h.store.AddReference(refType, objectIRI.URL(), activity.ID().URL(),
		store.WithActivityType(activity.Type().Types()[0])); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store %s reference: %w", refType, err))
	}

	h.notify(activity)

	return nil
}

func (h *Inbox) handleAddActivity(ownerIRI *url.URL, add *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Add' activity", logfields.WithActivityID(add.ID()))

	collectionID, itemID, err := h.validateCollectionMutation(ownerIRI, add)
	if err != nil {
		return err
	}

	if err := h.collections.AddItem(ownerIRI, collectionID, itemID); err != nil {
		return fmt.Errorf("add item to collection [%s]: %w", collectionID, err)
	}

	h.notify(add)

	return nil
}

func (h *Inbox) handleRemoveActivity(ownerIRI *url.URL, remove *vocab.ActivityType) error {
	h.logger.Debug("Handling 'Remove' activity", logfields.WithActivityID(remove.ID()))

	collectionID, itemID, err := h.validateCollectionMutation(ownerIRI, remove)
	if err != nil {
		return err
	}

	if err := h.collections.RemoveItem(ownerIRI, collectionID, itemID); err != nil {
		return fmt.Errorf("remove item from collection [%s]: %w", collectionID, err)
	}

	h.notify(remove)

	return nil
}

// validateCollectionMutation ensures that the target of an Add or Remove activity is a
// collection of the actor whose inbox received the activity, and that the activity was
// posted by that same actor. Remote actors may not mutate a local actor's collections.
func (h *Inbox) validateCollectionMutation(ownerIRI *url.URL,
	activity *vocab.ActivityType) (collectionID string, itemID *url.URL, err error) {
	if activity.Actor() == nil || activity.Actor().String() != ownerIRI.String() {
		return "", nil, brocaerrors.NewBadRequestf("the actor of the '%s' activity [%s] is not the owner of"+
			" the target collection [%s]", activity.Type(), activity.Actor(), ownerIRI)
	}

	collectionID, err = resolveCollectionID(ownerIRI, activity.Target())
	if err != nil {
		return "", nil, brocaerrors.NewBadRequest(err)
	}

	objectID := activity.Object().ID()
	if objectID == nil || objectID.URL() == nil {
		return "", nil, brocaerrors.NewBadRequestf("no object specified in '%s' activity", activity.Type())
	}

	return collectionID, objectID.URL(), nil
}
