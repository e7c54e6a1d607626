/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/aptestutil"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
)

func TestInbox_Handler(t *testing.T) {
	cfg := newTestConfig()

	s := memstore.New("broca")

	seedInboxActivities(t, s, aliceIRI, 6)

	h := NewInbox(cfg, s, nil)

	vars := map[string]string{"username": "alice"}

	t.Run("Collection header", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/inbox", vars)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, ActivityJSONType, rr.Header().Get("Content-Type"))

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, coll.UnmarshalJSON(readBody(t, rr)))

		require.Equal(t, "https://broca.example.com/users/alice/inbox", coll.ID().String())
		require.Equal(t, 6, coll.TotalItems())
		require.NotNil(t, coll.First())
		require.Contains(t, coll.First().String(), "page=0")
		require.Contains(t, coll.First().String(), "limit=4")
	})

	t.Run("First page", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/inbox?page=0&limit=4", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))

		require.Len(t, page.Items(), 4)
		require.Equal(t, 6, page.TotalItems())
		require.Equal(t, "https://broca.example.com/users/alice/inbox", page.PartOf().String())
		require.Nil(t, page.Prev())
		require.NotNil(t, page.Next())
		require.Contains(t, page.Next().String(), "page=1")
	})

	t.Run("Last page", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/inbox?page=1&limit=4", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))

		require.Len(t, page.Items(), 2)
		require.NotNil(t, page.Prev())
		require.Contains(t, page.Prev().String(), "page=0")
		require.Nil(t, page.Next())
	})

	t.Run("Page beyond range -> empty", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/inbox?page=5&limit=4", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))

		require.Empty(t, page.Items())
		require.Nil(t, page.Next())
	})

	t.Run("Other owner -> empty collection", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/carol/inbox",
			map[string]string{"username": "carol"})
		require.Equal(t, http.StatusOK, rr.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, coll.UnmarshalJSON(readBody(t, rr)))
		require.Zero(t, coll.TotalItems())
	})
}

func TestReadOutbox_Handler(t *testing.T) {
	cfg := newTestConfig()

	s := memstore.New("broca")

	public := aptestutil.NewMockCreateActivity(aliceIRI, vocab.MustParseURL(vocab.PublicIRI),
		vocab.NewObjectProperty(vocab.WithIRI(testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1"))))
	private := aptestutil.NewMockCreateActivity(aliceIRI, bobIRI,
		vocab.NewObjectProperty(vocab.WithIRI(testutil.MustParseURL("https://broca.example.com/users/alice/objects/note2"))))

	for _, activity := range []*vocab.ActivityType{public, private} {
		require.NoError(t, s.AddActivity(activity))
		require.NoError(t, s.AddReference(spi.Outbox, aliceIRI, activity.ID().URL(),
			spi.WithActivityType(vocab.TypeCreate)))
	}

	require.NoError(t, s.AddReference(spi.PublicOutbox, aliceIRI, public.ID().URL(),
		spi.WithActivityType(vocab.TypeCreate)))

	h := NewReadOutbox(cfg, s)

	vars := map[string]string{"username": "alice"}

	t.Run("Anonymous sees only public activities", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/outbox", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, coll.UnmarshalJSON(readBody(t, rr)))
		require.Equal(t, 1, coll.TotalItems())

		rr = invokeHandler(t, h, "https://broca.example.com/users/alice/outbox?page=0", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))
		require.Len(t, page.Items(), 1)
		require.Equal(t, public.ID().String(), page.Items()[0].Activity().ID().String())
	})

	t.Run("Admin sees all activities", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/outbox", vars,
			withBearerToken(adminToken))
		require.Equal(t, http.StatusOK, rr.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, coll.UnmarshalJSON(readBody(t, rr)))
		require.Equal(t, 2, coll.TotalItems())
	})
}

func TestLikesShares_Handler(t *testing.T) {
	cfg := newTestConfig()

	s := memstore.New("broca")

	objectIRI := testutil.MustParseURL("https://broca.example.com/users/alice/objects/note1")

	for i := 0; i < 3; i++ {
		like := aptestutil.NewMockLikeActivity(
			fmt.Sprintf("https://other.example.com/activities/like%d", i), objectIRI.String())

		require.NoError(t, s.AddActivity(like))
		require.NoError(t, s.AddReference(spi.Like, objectIRI, like.ID().URL(),
			spi.WithActivityType(vocab.TypeLike)))
	}

	announce := aptestutil.NewMockAnnounceActivity(bobIRI, vocab.MustParseURL(vocab.PublicIRI),
		vocab.NewObjectProperty(vocab.WithIRI(objectIRI)))

	require.NoError(t, s.AddActivity(announce))
	require.NoError(t, s.AddReference(spi.Share, objectIRI, announce.ID().URL(),
		spi.WithActivityType(vocab.TypeAnnounce)))

	vars := map[string]string{"username": "alice", "id": "note1"}

	t.Run("Likes of object", func(t *testing.T) {
		h := NewLikes(cfg, s)

		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/objects/note1/likes", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, coll.UnmarshalJSON(readBody(t, rr)))
		require.Equal(t, "https://broca.example.com/users/alice/objects/note1/likes", coll.ID().String())
		require.Equal(t, 3, coll.TotalItems())
	})

	t.Run("Shares of object", func(t *testing.T) {
		h := NewShares(cfg, s)

		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/objects/note1/shares?page=0", vars)
		require.Equal(t, http.StatusOK, rr.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))
		require.Len(t, page.Items(), 1)
		require.Equal(t, announce.ID().String(), page.Items()[0].Activity().ID().String())
	})

	t.Run("No object ID -> 400", func(t *testing.T) {
		h := NewLikes(cfg, s)

		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/objects//likes",
			map[string]string{"username": "alice"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLikedShared_Handler(t *testing.T) {
	cfg := newTestConfig()

	s := memstore.New("broca")

	like := aptestutil.NewMockLikeActivity("https://broca.example.com/activities/like1",
		"https://other.example.com/objects/note9")

	require.NoError(t, s.AddActivity(like))
	require.NoError(t, s.AddReference(spi.Liked, aliceIRI, like.ID().URL(),
		spi.WithActivityType(vocab.TypeLike)))

	vars := map[string]string{"username": "alice"}

	h := NewLiked(cfg, s)

	rr := invokeHandler(t, h, "https://broca.example.com/users/alice/liked?page=0", vars)
	require.Equal(t, http.StatusOK, rr.Code)

	page := &vocab.OrderedCollectionPageType{}
	require.NoError(t, page.UnmarshalJSON(readBody(t, rr)))
	require.Len(t, page.Items(), 1)
	require.Equal(t, like.ID().String(), page.Items()[0].Activity().ID().String())
}
