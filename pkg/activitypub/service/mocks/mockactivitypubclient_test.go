/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/client"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

func TestActivityPubClient(t *testing.T) {
	actorIRI, err := url.Parse("https://remote.example.com/users/bob")
	require.NoError(t, err)

	keyIRI, err := url.Parse("https://remote.example.com/users/bob#main-key")
	require.NoError(t, err)

	key := NewKey(keyIRI, actorIRI, "public key PEM")

	apClient := NewActivitPubClient().
		WithPublicKey(key).
		WithActor(vocab.NewPerson(actorIRI, vocab.WithPublicKey(key)))

	t.Run("GetPublicKey", func(t *testing.T) {
		k, err := apClient.GetPublicKey(keyIRI)
		require.NoError(t, err)
		require.Equal(t, keyIRI.String(), k.ID.String())
		require.Equal(t, actorIRI.String(), k.Owner.String())

		unknownIRI, err := url.Parse("https://remote.example.com/users/carol#main-key")
		require.NoError(t, err)

		_, err = apClient.GetPublicKey(unknownIRI)
		require.ErrorIs(t, err, client.ErrNotFound)
	})

	t.Run("GetActor", func(t *testing.T) {
		actor, err := apClient.GetActor(actorIRI)
		require.NoError(t, err)
		require.Equal(t, actorIRI.String(), actor.ID().String())

		unknownIRI, err := url.Parse("https://remote.example.com/users/carol")
		require.NoError(t, err)

		_, err = apClient.GetActor(unknownIRI)
		require.ErrorIs(t, err, client.ErrNotFound)
	})

	t.Run("GetReferences", func(t *testing.T) {
		// With no references set, the given IRI itself is returned.
		it, err := apClient.GetReferences(actorIRI)
		require.NoError(t, err)
		require.Equal(t, 1, it.TotalItems())

		ref, err := it.Next()
		require.NoError(t, err)
		require.Equal(t, actorIRI.String(), ref.String())

		_, err = it.Next()
		require.ErrorIs(t, err, client.ErrNotFound)

		followerIRI, err := url.Parse("https://remote.example.com/users/dan")
		require.NoError(t, err)

		it, err = apClient.WithReferences(actorIRI, followerIRI).GetReferences(actorIRI)
		require.NoError(t, err)
		require.Equal(t, 1, it.TotalItems())

		ref, err = it.Next()
		require.NoError(t, err)
		require.Equal(t, followerIRI.String(), ref.String())
	})

	t.Run("WithError", func(t *testing.T) {
		errExpected := errors.New("injected error")

		apClient := NewActivitPubClient().WithError(errExpected)

		_, err := apClient.GetPublicKey(keyIRI)
		require.ErrorIs(t, err, errExpected)

		_, err = apClient.GetActor(actorIRI)
		require.ErrorIs(t, err, errExpected)

		_, err = apClient.GetReferences(actorIRI)
		require.ErrorIs(t, err, errExpected)
	})
}
