/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activityhandler

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	service "github.com/broca-activitypub/broca/pkg/activitypub/service/mocks"
	servicespi "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/internal/aptestutil"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
)

//nolint:gochecknoglobals
var (
	inboxOwnerIRI  = testutil.MustParseURL("https://broca.example.com/users/alice")
	remoteActorIRI = testutil.MustParseURL("https://other.example.com/users/bob")
)

func TestNewInbox(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	h := NewInbox(cfg, memstore.New(cfg.ServiceName), service.NewOutbox(),
		service.NewActorRetriever(), service.NewCollectionManager())
	require.NotNil(t, h)

	h.Start()
	require.Equal(t, lifecycle.StateStarted, h.State())

	h.Stop()
	require.Equal(t, lifecycle.StateStopped, h.State())
}

func TestInbox_HandleFollowActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:         "inbox1",
		ServiceEndpointURL:  testutil.MustParseURL("https://broca.example.com"),
		AutoAcceptFollowers: true,
	}

	t.Run("Accepted", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)
		ob := service.NewOutbox()
		retriever := service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI))

		h := NewInbox(cfg, s, ob, retriever, service.NewCollectionManager(),
			servicespi.WithFollowerAuth(service.NewFollowerAuth().WithAccept()))
		h.Start()
		defer h.Stop()

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, follow))

		require.True(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))

		// The remote actor should have been cached.
		cached, err := s.GetActor(remoteActorIRI)
		require.NoError(t, err)
		require.Equal(t, remoteActorIRI.String(), cached.ID().String())

		// An Accept should have been posted in response.
		require.Len(t, ob.Activities().QueryByType(vocab.TypeAccept), 1)

		// A duplicate Follow should be a no-op.
		require.NoError(t, h.HandleActivity(inboxOwnerIRI, follow))
		require.Len(t, ob.Activities().QueryByType(vocab.TypeAccept), 1)
	})

	t.Run("Not authorized -> no Accept posted", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)
		ob := service.NewOutbox()
		retriever := service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI))

		h := NewInbox(cfg, s, ob, retriever, service.NewCollectionManager(),
			servicespi.WithFollowerAuth(service.NewFollowerAuth().WithReject()))
		h.Start()
		defer h.Stop()

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, follow))

		// The follower relationship is recorded even when no Accept is posted.
		require.True(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))
		require.Empty(t, ob.Activities())
	})

	t.Run("Auto-accept disabled -> no Accept posted", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)
		ob := service.NewOutbox()
		retriever := service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI))

		h := NewInbox(&Config{
			ServiceName:        cfg.ServiceName,
			ServiceEndpointURL: cfg.ServiceEndpointURL,
		}, s, ob, retriever, service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		require.NoError(t, h.HandleActivity(inboxOwnerIRI,
			aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)))

		require.True(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))
		require.Empty(t, ob.Activities())
	})

	t.Run("No actor in Follow -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(inboxOwnerIRI)),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
		)

		err := h.HandleActivity(inboxOwnerIRI, follow)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Object is not the inbox owner -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI,
			testutil.MustParseURL("https://broca.example.com/users/carol"))

		err := h.HandleActivity(inboxOwnerIRI, follow)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Actor retriever error", func(t *testing.T) {
		errExpected := errors.New("injected retriever error")

		h := NewInbox(cfg, memstore.New(cfg.ServiceName), service.NewOutbox(),
			service.NewActorRetriever().WithError(errExpected), service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		err := h.HandleActivity(inboxOwnerIRI, aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI))
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})

	t.Run("Outbox error", func(t *testing.T) {
		errExpected := errors.New("injected outbox error")

		h := NewInbox(cfg, memstore.New(cfg.ServiceName), service.NewOutbox().WithError(errExpected),
			service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI)),
			service.NewCollectionManager(),
			servicespi.WithFollowerAuth(service.NewFollowerAuth().WithAccept()))
		h.Start()
		defer h.Stop()

		err := h.HandleActivity(inboxOwnerIRI, aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI))
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestInbox_HandleAcceptActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	t.Run("Success", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager(),
			servicespi.WithAcceptFollowHandler(service.NewAcceptFollowHandler()))
		h.Start()
		defer h.Stop()

		accept := newAcceptActivity(remoteActorIRI,
			aptestutil.NewMockFollowActivity(inboxOwnerIRI, remoteActorIRI))

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, accept))
		require.True(t, containsReference(t, s, store.Following, inboxOwnerIRI, remoteActorIRI))

		// A duplicate Accept should be a no-op.
		require.NoError(t, h.HandleActivity(inboxOwnerIRI, accept))
	})

	t.Run("No embedded Follow -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		accept := vocab.NewAcceptActivity(
			vocab.NewObjectProperty(vocab.WithIRI(testutil.MustParseURL("https://other.example.com/activities/xyz"))),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
		)

		err := h.HandleActivity(inboxOwnerIRI, accept)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Follow actor is not the inbox owner -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		accept := newAcceptActivity(remoteActorIRI,
			aptestutil.NewMockFollowActivity(testutil.MustParseURL("https://broca.example.com/users/carol"),
				remoteActorIRI))

		err := h.HandleActivity(inboxOwnerIRI, accept)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Follow object is not the Accept actor -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		accept := newAcceptActivity(remoteActorIRI,
			aptestutil.NewMockFollowActivity(inboxOwnerIRI,
				testutil.MustParseURL("https://yet-another.example.com/users/eve")))

		err := h.HandleActivity(inboxOwnerIRI, accept)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})
}

func TestInbox_HandleRejectActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	h := newTestInbox(t, cfg)

	subscriber := h.Subscribe()

	reject := vocab.NewRejectActivity(
		vocab.NewObjectProperty(vocab.WithActivity(
			aptestutil.NewMockFollowActivity(inboxOwnerIRI, remoteActorIRI))),
		vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
		vocab.WithActor(remoteActorIRI),
	)

	require.NoError(t, h.HandleActivity(inboxOwnerIRI, reject))

	select {
	case activity := <-subscriber:
		require.Equal(t, reject.ID().String(), activity.ID().String())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for activity")
	}
}

func TestInbox_HandleCreateActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	t.Run("Reply -> reference stored", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		inReplyTo := testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1")
		replyID := testutil.MustParseURL("https://other.example.com/users/bob/objects/reply1")

		reply := vocab.NewObject(
			vocab.WithID(replyID),
			vocab.WithType(vocab.TypeNote),
			vocab.WithContent("A reply"),
			vocab.WithInReplyTo(inReplyTo),
		)

		create := aptestutil.NewMockCreateActivity(remoteActorIRI, inboxOwnerIRI,
			vocab.NewObjectProperty(vocab.WithObject(reply)))

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, create))
		require.True(t, containsReference(t, s, store.Reply, inReplyTo, replyID))
	})

	t.Run("Not a reply -> no reference stored", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		create := aptestutil.NewMockCreateActivity(remoteActorIRI, inboxOwnerIRI,
			vocab.NewObjectProperty(vocab.WithObject(aptestutil.NewMockNoteObject(
				testutil.MustParseURL("https://other.example.com/users/bob/objects/note2"), "A note"))))

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, create))
	})
}

func TestInbox_HandleLikeAndAnnounceActivities(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	objectIRI := testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1")

	t.Run("Like", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)
		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		like := vocab.NewLikeActivity(
			vocab.NewObjectProperty(vocab.WithIRI(objectIRI)),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
		)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, like))
		require.True(t, containsReference(t, s, store.Like, objectIRI, like.ID().URL()))
	})

	t.Run("Announce", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)
		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		announce := aptestutil.NewMockAnnounceActivity(remoteActorIRI, inboxOwnerIRI,
			vocab.NewObjectProperty(vocab.WithIRI(objectIRI)))

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, announce))
		require.True(t, containsReference(t, s, store.Share, objectIRI, announce.ID().URL()))
	})

	t.Run("No object -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		like := vocab.NewLikeActivity(
			vocab.NewObjectProperty(),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
		)

		err := h.HandleActivity(inboxOwnerIRI, like)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})
}

func TestInbox_HandleUndoActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	t.Run("Undo Follow", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(),
			service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI)),
			service.NewCollectionManager(),
			servicespi.WithUndoFollowHandler(service.NewUndoFollowHandler()))
		h.Start()
		defer h.Stop()

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)

		require.NoError(t, s.AddActivity(follow))
		require.NoError(t, h.HandleActivity(inboxOwnerIRI, follow))
		require.True(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))

		undo := newUndoActivity(remoteActorIRI, follow.ID().URL())

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, undo))
		require.False(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))

		// Undoing a Follow that is no longer in effect should be a no-op.
		require.NoError(t, h.HandleActivity(inboxOwnerIRI, undo))
	})

	t.Run("Undo Like", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(), service.NewActorRetriever(),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		objectIRI := testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1")

		like := vocab.NewLikeActivity(
			vocab.NewObjectProperty(vocab.WithIRI(objectIRI)),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
		)

		require.NoError(t, s.AddActivity(like))
		require.NoError(t, h.HandleActivity(inboxOwnerIRI, like))
		require.True(t, containsReference(t, s, store.Like, objectIRI, like.ID().URL()))

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, newUndoActivity(remoteActorIRI, like.ID().URL())))
		require.False(t, containsReference(t, s, store.Like, objectIRI, like.ID().URL()))
	})

	t.Run("Embedded activity fallback", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(),
			service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI)),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, follow))

		undo := vocab.NewUndoActivity(
			vocab.NewObjectProperty(vocab.WithActivity(follow)),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
		)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, undo))
		require.False(t, containsReference(t, s, store.Follower, inboxOwnerIRI, remoteActorIRI))
	})

	t.Run("Actor mismatch -> error", func(t *testing.T) {
		s := memstore.New(cfg.ServiceName)

		h := NewInbox(cfg, s, service.NewOutbox(),
			service.NewActorRetriever().WithActor(aptestutil.NewMockPerson(remoteActorIRI)),
			service.NewCollectionManager())
		h.Start()
		defer h.Stop()

		follow := aptestutil.NewMockFollowActivity(remoteActorIRI, inboxOwnerIRI)

		require.NoError(t, s.AddActivity(follow))

		undo := newUndoActivity(testutil.MustParseURL("https://yet-another.example.com/users/eve"),
			follow.ID().URL())

		err := h.HandleActivity(inboxOwnerIRI, undo)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Activity not found -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		undo := newUndoActivity(remoteActorIRI,
			testutil.MustParseURL("https://other.example.com/activities/unknown"))

		err := h.HandleActivity(inboxOwnerIRI, undo)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not found")
	})
}

func TestInbox_HandleAddAndRemoveActivities(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	collectionIRI := testutil.MustParseURL(inboxOwnerIRI.String() + "/collections/favorites")
	itemIRI := testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1")

	t.Run("Add and Remove", func(t *testing.T) {
		cm := service.NewCollectionManager()

		h := NewInbox(cfg, memstore.New(cfg.ServiceName), service.NewOutbox(),
			service.NewActorRetriever(), cm)
		h.Start()
		defer h.Stop()

		add := vocab.NewAddActivity(
			vocab.NewObjectProperty(vocab.WithIRI(itemIRI)),
			vocab.WithID(aptestutil.NewActivityID(inboxOwnerIRI)),
			vocab.WithActor(inboxOwnerIRI),
			vocab.WithTarget(vocab.NewObjectProperty(vocab.WithIRI(collectionIRI))),
		)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, add))
		require.Contains(t, cm.Items(inboxOwnerIRI, "favorites"), itemIRI.String())

		remove := vocab.NewRemoveActivity(
			vocab.NewObjectProperty(vocab.WithIRI(itemIRI)),
			vocab.WithID(aptestutil.NewActivityID(inboxOwnerIRI)),
			vocab.WithActor(inboxOwnerIRI),
			vocab.WithTarget(vocab.NewObjectProperty(vocab.WithIRI(collectionIRI))),
		)

		require.NoError(t, h.HandleActivity(inboxOwnerIRI, remove))
		require.NotContains(t, cm.Items(inboxOwnerIRI, "favorites"), itemIRI.String())
	})

	t.Run("Actor is not the collection owner -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		add := vocab.NewAddActivity(
			vocab.NewObjectProperty(vocab.WithIRI(itemIRI)),
			vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
			vocab.WithActor(remoteActorIRI),
			vocab.WithTarget(vocab.NewObjectProperty(vocab.WithIRI(collectionIRI))),
		)

		err := h.HandleActivity(inboxOwnerIRI, add)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Target is not a collection of the owner -> error", func(t *testing.T) {
		h := newTestInbox(t, cfg)

		add := vocab.NewAddActivity(
			vocab.NewObjectProperty(vocab.WithIRI(itemIRI)),
			vocab.WithID(aptestutil.NewActivityID(inboxOwnerIRI)),
			vocab.WithActor(inboxOwnerIRI),
			vocab.WithTarget(vocab.NewObjectProperty(vocab.WithIRI(
				testutil.MustParseURL("https://other.example.com/users/bob/collections/favorites")))),
		)

		err := h.HandleActivity(inboxOwnerIRI, add)
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})
}

func TestInbox_HandleUnsupportedActivity(t *testing.T) {
	cfg := &Config{
		ServiceName:        "inbox1",
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	h := newTestInbox(t, cfg)

	update := vocab.NewUpdateActivity(
		vocab.NewObjectProperty(vocab.WithIRI(
			testutil.MustParseURL("https://other.example.com/users/bob/objects/note1"))),
		vocab.WithID(aptestutil.NewActivityID(remoteActorIRI)),
		vocab.WithActor(remoteActorIRI),
	)

	require.NoError(t, h.HandleActivity(inboxOwnerIRI, update))
}

func newTestInbox(t *testing.T, cfg *Config) *Inbox {
	t.Helper()

	h := NewInbox(cfg, memstore.New(cfg.ServiceName), service.NewOutbox(),
		service.NewActorRetriever(), service.NewCollectionManager())

	h.Start()

	t.Cleanup(h.Stop)

	return h
}

func newAcceptActivity(actorIRI *url.URL, follow *vocab.ActivityType) *vocab.ActivityType {
	return vocab.NewAcceptActivity(
		vocab.NewObjectProperty(vocab.WithActivity(follow)),
		vocab.WithID(aptestutil.NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
	)
}

func newUndoActivity(actorIRI, originalIRI *url.URL) *vocab.ActivityType {
	return vocab.NewUndoActivity(
		vocab.NewObjectProperty(vocab.WithIRI(originalIRI)),
		vocab.WithID(aptestutil.NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
	)
}

func containsReference(t *testing.T, s store.Store, refType store.ReferenceType, objectIRI, refIRI *url.URL) bool {
	t.Helper()

	it, err := s.QueryReferences(refType,
		store.NewCriteria(store.WithObjectIRI(objectIRI), store.WithReferenceIRI(refIRI)))
	require.NoError(t, err)

	defer func() {
		require.NoError(t, it.Close())
	}()

	_, err = it.Next()
	if err != nil {
		require.True(t, errors.Is(err, store.ErrNotFound))

		return false
	}

	return true
}
