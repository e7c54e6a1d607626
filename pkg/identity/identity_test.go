/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"crypto/rsa"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/resthandler"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

//nolint:gochecknoglobals
var serviceEndpointURL = mustParse("https://broca.example.com")

func TestProvider_Init(t *testing.T) {
	p := newTestProvider(t)

	require.NoError(t, p.Init())

	systemIRI := p.SystemActorIRI()
	require.Equal(t, "https://broca.example.com/users/service", systemIRI.String())

	actor, err := p.activityStore.GetActor(systemIRI)
	require.NoError(t, err)
	require.True(t, actor.Type().Is(vocab.TypeService))
	require.Equal(t, "service", actor.PreferredUsername())
	require.NotNil(t, actor.PublicKey())
	require.Equal(t, systemIRI.String()+"#main-key", actor.PublicKey().ID.String())

	// A second Init should be a no-op.
	require.NoError(t, p.Init())
}

func TestProvider_CreateActor(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		p := newTestProvider(t)

		actor, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
			vocab.WithName("Alice"),
			vocab.WithSummary("Just Alice"),
		))
		require.NoError(t, err)
		require.NotNil(t, actor)

		require.Equal(t, "https://broca.example.com/users/alice", actor.ID().String())
		require.Equal(t, "Alice", actor.Name())
		require.Equal(t, "Just Alice", actor.Summary())
		require.Equal(t, "https://broca.example.com/users/alice/inbox", actor.Inbox().String())
		require.Equal(t, "https://broca.example.com/users/alice/outbox", actor.Outbox().String())
		require.Equal(t, "https://broca.example.com/users/alice/followers", actor.Followers().String())
		require.Equal(t, "https://broca.example.com/users/alice/following", actor.Following().String())
		require.Equal(t, "https://broca.example.com/users/alice/liked", actor.Liked().String())
		require.Equal(t, "https://broca.example.com/users/alice/shared", actor.Shares().String())

		// The advertised endpoint must agree with the registered route.
		require.Equal(t,
			"https://broca.example.com"+strings.ReplaceAll(resthandler.SharedPath, "{username}", "alice"),
			actor.Shares().String())

		require.NotNil(t, actor.PublicKey())
		require.Contains(t, actor.PublicKey().PublicKeyPem, "BEGIN PUBLIC KEY")

		stored, err := p.activityStore.GetActor(actor.ID().URL())
		require.NoError(t, err)
		require.Equal(t, actor.ID().String(), stored.ID().String())

		keyPair, err := p.keyStore.Get(actor.ID().URL())
		require.NoError(t, err)
		require.Equal(t, actor.PublicKey().ID.String(), keyPair.KeyID)
		require.Contains(t, keyPair.PrivateKeyPem, "BEGIN RSA PRIVATE KEY")
	})

	t.Run("Invalid username -> error", func(t *testing.T) {
		p := newTestProvider(t)

		_, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("Not A Valid Username!"),
		))
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Duplicate actor -> error", func(t *testing.T) {
		p := newTestProvider(t)

		_, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.NoError(t, err)

		_, err = p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
		require.Contains(t, err.Error(), "already exists")
	})

	t.Run("Key generation error", func(t *testing.T) {
		p := newTestProvider(t)

		errExpected := errors.New("injected key generation error")

		p.generateKey = func(int) (*rsa.PrivateKey, error) {
			return nil, errExpected
		}

		_, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestProvider_UpdateActor(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		p := newTestProvider(t)

		actor, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
			vocab.WithName("Alice"),
		))
		require.NoError(t, err)

		require.NoError(t, p.UpdateActor(vocab.NewActor(actor.ID().URL(), vocab.TypePerson,
			vocab.WithName("Alice B."),
			vocab.WithSummary("Updated summary"),
		)))

		updated, err := p.activityStore.GetActor(actor.ID().URL())
		require.NoError(t, err)
		require.Equal(t, "Alice B.", updated.Name())
		require.Equal(t, "Updated summary", updated.Summary())

		// Immutable properties are preserved.
		require.Equal(t, "alice", updated.PreferredUsername())
		require.Equal(t, actor.Inbox().String(), updated.Inbox().String())
		require.Equal(t, actor.PublicKey().ID.String(), updated.PublicKey().ID.String())
		require.NotNil(t, updated.Updated())
	})

	t.Run("No ID -> error", func(t *testing.T) {
		p := newTestProvider(t)

		err := p.UpdateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Not found -> error", func(t *testing.T) {
		p := newTestProvider(t)

		err := p.UpdateActor(vocab.NewActor(mustParse("https://broca.example.com/users/nobody"),
			vocab.TypePerson))
		require.Error(t, err)
		require.True(t, errors.Is(err, brocaerrors.ErrNotFound))
	})
}

func TestProvider_DeleteActor(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		p := newTestProvider(t)

		actor, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.NoError(t, err)

		require.NoError(t, p.DeleteActor(actor.ID().URL()))

		_, err = p.activityStore.GetActor(actor.ID().URL())
		require.Error(t, err)

		_, err = p.keyStore.Get(actor.ID().URL())
		require.Error(t, err)
		require.True(t, errors.Is(err, brocaerrors.ErrNotFound))
	})

	t.Run("System actor -> error", func(t *testing.T) {
		p := newTestProvider(t)

		require.NoError(t, p.Init())

		err := p.DeleteActor(p.SystemActorIRI())
		require.Error(t, err)
		require.True(t, brocaerrors.IsBadRequest(err))
	})

	t.Run("Not found -> error", func(t *testing.T) {
		p := newTestProvider(t)

		err := p.DeleteActor(mustParse("https://broca.example.com/users/nobody"))
		require.Error(t, err)
		require.True(t, errors.Is(err, brocaerrors.ErrNotFound))
	})
}

func TestProvider_SigningKey(t *testing.T) {
	t.Run("Actor key", func(t *testing.T) {
		p := newTestProvider(t)

		actor, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
			vocab.WithPreferredUsername("alice"),
		))
		require.NoError(t, err)

		privateKey, keyID, err := p.SigningKey(actor.ID().URL())
		require.NoError(t, err)
		require.NotNil(t, privateKey)
		require.IsType(t, &rsa.PrivateKey{}, privateKey)
		require.Equal(t, actor.PublicKey().ID.String(), keyID.String())
	})

	t.Run("Nil actor -> system actor key", func(t *testing.T) {
		p := newTestProvider(t)

		require.NoError(t, p.Init())

		privateKey, keyID, err := p.SigningKey(nil)
		require.NoError(t, err)
		require.NotNil(t, privateKey)
		require.Equal(t, p.SystemActorIRI().String()+"#main-key", keyID.String())
	})

	t.Run("Key pair not found -> error", func(t *testing.T) {
		p := newTestProvider(t)

		_, _, err := p.SigningKey(mustParse("https://broca.example.com/users/nobody"))
		require.Error(t, err)
		require.True(t, errors.Is(err, brocaerrors.ErrNotFound))
	})
}

func TestProvider_PrivateKeyPem(t *testing.T) {
	p := newTestProvider(t)

	actor, err := p.CreateActor(vocab.NewActor(nil, vocab.TypePerson,
		vocab.WithPreferredUsername("alice"),
	))
	require.NoError(t, err)

	pemStr, err := p.PrivateKeyPem(actor.ID().URL())
	require.NoError(t, err)
	require.Contains(t, pemStr, "BEGIN RSA PRIVATE KEY")

	_, err = p.PrivateKeyPem(mustParse("https://broca.example.com/users/nobody"))
	require.Error(t, err)
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	keyStore, err := NewKeyStore(mem.NewProvider())
	require.NoError(t, err)

	p := New(
		&Config{
			ServiceEndpointURL: serviceEndpointURL,
			SystemUsername:     "service",
		},
		memstore.New("broca"), keyStore,
	)

	// Small keys keep the tests fast.
	p.KeySize = 1024

	return p
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}

	return u
}
