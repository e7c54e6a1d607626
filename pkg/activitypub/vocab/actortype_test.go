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

func TestActor(t *testing.T) {
	const keyPem = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhki....."

	actorID := MustParseURL("https://example1.com/users/alice")
	keyID := MustParseURL("https://example1.com/users/alice#main-key")
	inbox := MustParseURL("https://example1.com/users/alice/inbox")
	outbox := MustParseURL("https://example1.com/users/alice/outbox")
	followers := MustParseURL("https://example1.com/users/alice/followers")
	following := MustParseURL("https://example1.com/users/alice/following")
	liked := MustParseURL("https://example1.com/users/alice/liked")
	shares := MustParseURL("https://example1.com/users/alice/shared")
	sharedInbox := MustParseURL("https://example1.com/inbox")

	publicKey := NewPublicKey(
		WithID(keyID),
		WithOwner(actorID),
		WithPublicKeyPem(keyPem),
	)

	t.Run("Marshal", func(t *testing.T) {
		actor := NewPerson(actorID,
			WithPublicKey(publicKey),
			WithInbox(inbox),
			WithOutbox(outbox),
			WithFollowers(followers),
			WithFollowing(following),
			WithLiked(liked),
			WithShares(shares),
			WithSharedInbox(sharedInbox),
			WithPreferredUsername("alice"),
			WithCollections(map[string]string{
				"favourites": "https://example1.com/users/alice/collections/favourites",
			}),
		)

		b, err := json.Marshal(actor)
		require.NoError(t, err)

		doc, err := UnmarshalToDoc(b)
		require.NoError(t, err)

		require.Equal(t, actorID.String(), doc["id"])
		require.Equal(t, "Person", doc["type"])
		require.Equal(t, "alice", doc["preferredUsername"])
		require.Equal(t, inbox.String(), doc["inbox"])
		require.Equal(t, outbox.String(), doc["outbox"])
		require.Equal(t, followers.String(), doc["followers"])
		require.Equal(t, following.String(), doc["following"])
		require.Equal(t, liked.String(), doc["liked"])
		require.Equal(t, shares.String(), doc["shares"])

		context, ok := doc["@context"].([]interface{})
		require.True(t, ok)
		require.Contains(t, context, string(ContextActivityStreams))
		require.Contains(t, context, string(ContextSecurity))
		require.Contains(t, context, string(ContextBroca))

		key, ok := doc["publicKey"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, keyID.String(), key["id"])
		require.Equal(t, actorID.String(), key["owner"])
		require.Equal(t, keyPem, key["publicKeyPem"])

		endpoints, ok := doc["endpoints"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, sharedInbox.String(), endpoints["sharedInbox"])

		collections, ok := doc["broca:collections"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "https://example1.com/users/alice/collections/favourites", collections["favourites"])
	})

	t.Run("Unmarshal", func(t *testing.T) {
		a := &ActorType{}
		require.NoError(t, json.Unmarshal([]byte(jsonActor), a))

		require.NotNil(t, a.Type())
		require.True(t, a.Type().Is(TypePerson))

		id := a.ID()
		require.NotNil(t, id)
		require.Equal(t, actorID.String(), id.String())

		context := a.Context()
		require.NotNil(t, context)
		require.True(t, context.Contains(ContextActivityStreams, ContextSecurity))

		key := a.PublicKey()
		require.NotNil(t, key)
		require.Equal(t, keyID.String(), key.ID.String())
		require.Equal(t, actorID.String(), key.Owner.String())
		require.Equal(t, keyPem, key.PublicKeyPem)

		require.Equal(t, "alice", a.PreferredUsername())
		require.Equal(t, inbox.String(), a.Inbox().String())
		require.Equal(t, outbox.String(), a.Outbox().String())
		require.Equal(t, followers.String(), a.Followers().String())
		require.Equal(t, following.String(), a.Following().String())
		require.Equal(t, liked.String(), a.Liked().String())
		require.Equal(t, shares.String(), a.Shares().String())
		require.Equal(t, sharedInbox.String(), a.SharedInbox().String())

		collections := a.Collections()
		require.Len(t, collections, 1)
		require.Equal(t, "https://example1.com/users/alice/collections/favourites",
			collections["favourites"])
	})

	t.Run("Actor of the given type", func(t *testing.T) {
		a := NewActor(actorID, TypeApplication)

		require.True(t, a.Type().Is(TypeApplication))
		require.Equal(t, actorID.String(), a.ID().String())
	})

	t.Run("Empty actor", func(t *testing.T) {
		a := NewService(actorID)

		id := a.ID()
		require.NotNil(t, id)
		require.Equal(t, actorID.String(), id.String())
		require.True(t, a.Type().Is(TypeService))

		require.NotNil(t, a.Context())
		require.Nil(t, a.PublicKey())
		require.Nil(t, a.Inbox())
		require.Nil(t, a.Outbox())
		require.Nil(t, a.Followers())
		require.Nil(t, a.Following())
		require.Nil(t, a.Liked())
		require.Nil(t, a.Shares())
		require.Nil(t, a.SharedInbox())
		require.Empty(t, a.Collections())
	})

	t.Run("SetCollections", func(t *testing.T) {
		a := NewPerson(actorID)
		require.Empty(t, a.Collections())

		a.SetCollections(map[string]string{"photos": "https://example1.com/users/alice/collections/photos"})
		require.Len(t, a.Collections(), 1)
	})
}

const jsonActor = `{
  "@context": [
    "https://www.w3.org/ns/activitystreams",
    "https://w3id.org/security/v1",
    "https://broca-activitypub.org/ns#"
  ],
  "id": "https://example1.com/users/alice",
  "type": "Person",
  "preferredUsername": "alice",
  "publicKey": {
    "id": "https://example1.com/users/alice#main-key",
    "owner": "https://example1.com/users/alice",
    "publicKeyPem": "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhki....."
  },
  "inbox": "https://example1.com/users/alice/inbox",
  "outbox": "https://example1.com/users/alice/outbox",
  "followers": "https://example1.com/users/alice/followers",
  "following": "https://example1.com/users/alice/following",
  "liked": "https://example1.com/users/alice/liked",
  "shares": "https://example1.com/users/alice/shared",
  "endpoints": {
    "sharedInbox": "https://example1.com/inbox"
  },
  "broca:collections": {
    "favourites": "https://example1.com/users/alice/collections/favourites"
  }
}`
