/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectionPage(t *testing.T) {
	pageID := MustParseURL("https://example1.com/users/alice/followers?page=1&limit=20")
	partOf := MustParseURL("https://example1.com/users/alice/followers")
	next := MustParseURL("https://example1.com/users/alice/followers?page=2&limit=20")
	prev := MustParseURL("https://example1.com/users/alice/followers?page=0&limit=20")

	follower1 := MustParseURL("https://example2.com/users/bob")
	follower2 := MustParseURL("https://example3.com/users/carol")

	items := []*ObjectProperty{
		NewObjectProperty(WithIRI(follower1)),
		NewObjectProperty(WithIRI(follower2)),
	}

	t.Run("Marshal", func(t *testing.T) {
		page := NewCollectionPage(items,
			WithContext(ContextActivityStreams),
			WithID(pageID),
			WithPartOf(partOf),
			WithNext(next),
			WithPrev(prev),
			WithTotalItems(19),
		)

		b, err := json.Marshal(page)
		require.NoError(t, err)

		doc, err := UnmarshalToDoc(b)
		require.NoError(t, err)

		require.Equal(t, pageID.String(), doc["id"])
		require.Equal(t, "CollectionPage", doc["type"])
		require.Equal(t, partOf.String(), doc["partOf"])
		require.Equal(t, next.String(), doc["next"])
		require.Equal(t, prev.String(), doc["prev"])
		require.Equal(t, float64(19), doc["totalItems"])

		collItems, ok := doc["items"].([]interface{})
		require.True(t, ok)
		require.Len(t, collItems, 2)
	})

	t.Run("Unmarshal", func(t *testing.T) {
		page := &CollectionPageType{}
		require.NoError(t, json.Unmarshal([]byte(jsonCollectionPage), page))

		require.True(t, page.Type().Is(TypeCollectionPage))
		require.Equal(t, pageID.String(), page.ID().String())
		require.Equal(t, partOf.String(), page.PartOf().String())
		require.Equal(t, next.String(), page.Next().String())
		require.Equal(t, prev.String(), page.Prev().String())
		require.Equal(t, 19, page.TotalItems())

		items := page.Items()
		require.Len(t, items, 2)
		require.Equal(t, follower1.String(), items[0].IRI().String())
	})
}

func TestOrderedCollectionPage(t *testing.T) {
	pageID := MustParseURL("https://example1.com/users/alice/outbox?page=1&limit=20")
	partOf := MustParseURL("https://example1.com/users/alice/outbox")
	next := MustParseURL("https://example1.com/users/alice/outbox?page=2&limit=20")
	prev := MustParseURL("https://example1.com/users/alice/outbox?page=0&limit=20")

	activity1 := MustParseURL("https://example1.com/activities/activity1")
	activity2 := MustParseURL("https://example1.com/activities/activity2")

	items := []*ObjectProperty{
		NewObjectProperty(WithIRI(activity1)),
		NewObjectProperty(WithIRI(activity2)),
	}

	t.Run("Marshal", func(t *testing.T) {
		page := NewOrderedCollectionPage(items,
			WithContext(ContextActivityStreams),
			WithID(pageID),
			WithPartOf(partOf),
			WithNext(next),
			WithPrev(prev),
			WithTotalItems(42),
		)

		b, err := json.Marshal(page)
		require.NoError(t, err)

		doc, err := UnmarshalToDoc(b)
		require.NoError(t, err)

		require.Equal(t, pageID.String(), doc["id"])
		require.Equal(t, "OrderedCollectionPage", doc["type"])
		require.Equal(t, partOf.String(), doc["partOf"])
		require.Equal(t, next.String(), doc["next"])
		require.Equal(t, prev.String(), doc["prev"])
		require.Equal(t, float64(42), doc["totalItems"])

		orderedItems, ok := doc["orderedItems"].([]interface{})
		require.True(t, ok)
		require.Len(t, orderedItems, 2)
		require.Equal(t, activity1.String(), orderedItems[0])
	})

	t.Run("Unmarshal", func(t *testing.T) {
		page := &OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal([]byte(jsonOrderedCollectionPage), page))

		require.True(t, page.Type().Is(TypeOrderedCollectionPage))
		require.Equal(t, pageID.String(), page.ID().String())
		require.Equal(t, partOf.String(), page.PartOf().String())
		require.Equal(t, next.String(), page.Next().String())
		require.Equal(t, prev.String(), page.Prev().String())
		require.Equal(t, 42, page.TotalItems())

		items := page.Items()
		require.Len(t, items, 2)
		require.Equal(t, activity2.String(), items[1].IRI().String())
	})

	t.Run("Empty page", func(t *testing.T) {
		page := NewOrderedCollectionPage(nil, WithID(pageID))

		require.Nil(t, page.PartOf())
		require.Nil(t, page.Next())
		require.Nil(t, page.Prev())
		require.Empty(t, page.Items())
	})
}

const jsonCollectionPage = `{
  "@context": "https://www.w3.org/ns/activitystreams",
  "id": "https://example1.com/users/alice/followers?page=1&limit=20",
  "type": "CollectionPage",
  "partOf": "https://example1.com/users/alice/followers",
  "next": "https://example1.com/users/alice/followers?page=2&limit=20",
  "prev": "https://example1.com/users/alice/followers?page=0&limit=20",
  "totalItems": 19,
  "items": [
    "https://example2.com/users/bob",
    "https://example3.com/users/carol"
  ]
}`

const jsonOrderedCollectionPage = `{
  "@context": "https://www.w3.org/ns/activitystreams",
  "id": "https://example1.com/users/alice/outbox?page=1&limit=20",
  "type": "OrderedCollectionPage",
  "partOf": "https://example1.com/users/alice/outbox",
  "next": "https://example1.com/users/alice/outbox?page=2&limit=20",
  "prev": "https://example1.com/users/alice/outbox?page=0&limit=20",
  "totalItems": 42,
  "orderedItems": [
    "https://example1.com/activities/activity1",
    "https://example1.com/activities/activity2"
  ]
}`
