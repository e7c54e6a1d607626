/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity manages the local actors hosted by this server, including their
// RSA key pairs which are used to sign outgoing requests.
package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

const (
	defaultKeySize = 2048

	mainKeyFragment = "#main-key"
)

var logger = log.New("identity")

// usernameExpr is the set of valid actor usernames. A username is used as a URL path segment.
var usernameExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// Config holds configuration parameters for the identity provider.
type Config struct {
	// ServiceEndpointURL is the base HTTP(s) endpoint of this server.
	ServiceEndpointURL *url.URL
	// SystemUsername is the username of the system actor.
	SystemUsername string
	// KeySize is the size (in bits) of generated RSA keys.
	KeySize int
}

// Provider creates, updates, and deletes local actors and resolves their signing keys.
type Provider struct {
	*Config

	activityStore store.Store
	keyStore      *KeyStore
	generateKey   func(bits int) (*rsa.PrivateKey, error)
}

// New returns a new identity provider.
func New(cfg *Config, activityStore store.Store, keyStore *KeyStore) *Provider {
	if cfg.KeySize == 0 {
		cfg.KeySize = defaultKeySize
	}

	return &Provider{
		Config:        cfg,
		activityStore: activityStore,
		keyStore:      keyStore,
		generateKey: func(bits int) (*rsa.PrivateKey, error) {
			return rsa.GenerateKey(rand.Reader, bits)
		},
	}
}

// Init creates the system actor if it does not already exist. This must be invoked on
// startup before any request is served.
func (p *Provider) Init() error {
	systemIRI := p.actorIRI(p.SystemUsername)

	_, err := p.activityStore.GetActor(systemIRI)
	if err == nil {
		logger.Debug("System actor already exists", logfields.WithActorIRI(systemIRI))

		return nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("get system actor [%s]: %w", systemIRI, err)
	}

	logger.Info("Creating system actor", logfields.WithActorIRI(systemIRI))

	_, err = p.createActor(p.SystemUsername, vocab.TypeService, "", "")

	return err
}

// SystemActorIRI returns the IRI of the system actor.
func (p *Provider) SystemActorIRI() *url.URL {
	return p.actorIRI(p.SystemUsername)
}

// CreateActor creates a new local actor from the requested actor document. The
// username is taken from the preferredUsername property. A key pair is generated for
// the actor and the actor's endpoints are populated.
func (p *Provider) CreateActor(requested *vocab.ActorType) (*vocab.ActorType, error) {
	username := requested.PreferredUsername()

	if !usernameExpr.MatchString(username) {
		return nil, brocaerrors.NewBadRequestf("invalid username [%s]: must match %s", username, usernameExpr)
	}

	actorIRI := p.actorIRI(username)

	_, err := p.activityStore.GetActor(actorIRI)
	if err == nil {
		return nil, brocaerrors.NewBadRequestf("actor [%s] already exists", actorIRI)
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get actor [%s]: %w", actorIRI, err)
	}

	actorType := vocab.TypePerson

	if requested.Type().IsActor() {
		actorType = requested.Type().Types()[0]
	}

	return p.createActor(username, actorType, requested.Name(), requested.Summary())
}

func (p *Provider) createActor(username string, actorType vocab.Type, name, summary string) (*vocab.ActorType, error) {
	actorIRI := p.actorIRI(username)

	keyPair, err := p.newKeyPair(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("generate key pair for [%s]: %w", actorIRI, err)
	}

	now := time.Now()

	actor := vocab.NewActor(actorIRI, actorType,
		vocab.WithName(name),
		vocab.WithSummary(summary),
		vocab.WithPreferredUsername(username),
		vocab.WithPublishedTime(&now),
		vocab.WithInbox(mustParseURL(actorIRI.String()+"/inbox")),
		vocab.WithOutbox(mustParseURL(actorIRI.String()+"/outbox")),
		vocab.WithFollowers(mustParseURL(actorIRI.String()+"/followers")),
		vocab.WithFollowing(mustParseURL(actorIRI.String()+"/following")),
		vocab.WithLiked(mustParseURL(actorIRI.String()+"/liked")),
		vocab.WithShares(mustParseURL(actorIRI.String()+"/shared")),
		vocab.WithPublicKey(vocab.NewPublicKey(
			vocab.WithID(mustParseURL(keyPair.KeyID)),
			vocab.WithOwner(actorIRI),
			vocab.WithPublicKeyPem(keyPair.PublicKeyPem),
		)),
	)

	if err := p.keyStore.Put(actorIRI, keyPair); err != nil {
		return nil, fmt.Errorf("store key pair for [%s]: %w", actorIRI, err)
	}

	if err := p.activityStore.PutActor(actor); err != nil {
		return nil, fmt.Errorf("store actor [%s]: %w", actorIRI, err)
	}

	logger.Debug("Created actor", logfields.WithActorIRI(actorIRI), logfields.WithType(string(actorType)))

	return actor, nil
}

// UpdateActor updates the mutable properties of an existing actor (name, summary,
// and URL). The actor's ID, type, username, endpoints, and keys are preserved.
func (p *Provider) UpdateActor(updated *vocab.ActorType) error {
	if updated.ID() == nil || updated.ID().URL() == nil {
		return brocaerrors.NewBadRequest(errors.New("no ID specified in actor"))
	}

	actorIRI := updated.ID().URL()

	existing, err := p.activityStore.GetActor(actorIRI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("actor [%s]: %w", actorIRI, brocaerrors.ErrNotFound)
		}

		return fmt.Errorf("get actor [%s]: %w", actorIRI, err)
	}

	now := time.Now()

	opts := []vocab.Opt{
		vocab.WithName(updated.Name()),
		vocab.WithSummary(updated.Summary()),
		vocab.WithURL(updated.URL()...),
		vocab.WithPreferredUsername(existing.PreferredUsername()),
		vocab.WithPublishedTime(existing.Published()),
		vocab.WithUpdatedTime(&now),
		vocab.WithInbox(existing.Inbox()),
		vocab.WithOutbox(existing.Outbox()),
		vocab.WithFollowers(existing.Followers()),
		vocab.WithFollowing(existing.Following()),
		vocab.WithLiked(existing.Liked()),
		vocab.WithShares(existing.Shares()),
		vocab.WithPublicKey(existing.PublicKey()),
	}

	if existing.SharedInbox() != nil {
		opts = append(opts, vocab.WithSharedInbox(existing.SharedInbox()))
	}

	actor := vocab.NewActor(actorIRI, existing.Type().Types()[0], opts...)

	if err := p.activityStore.PutActor(actor); err != nil {
		return fmt.Errorf("store actor [%s]: %w", actorIRI, err)
	}

	logger.Debug("Updated actor", logfields.WithActorIRI(actorIRI))

	return nil
}

// DeleteActor deletes a local actor and its key pair. The system actor may not be deleted.
func (p *Provider) DeleteActor(actorIRI *url.URL) error {
	if actorIRI.String() == p.actorIRI(p.SystemUsername).String() {
		return brocaerrors.NewBadRequestf("the system actor [%s] may not be deleted", actorIRI)
	}

	if err := p.activityStore.DeleteActor(actorIRI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("actor [%s]: %w", actorIRI, brocaerrors.ErrNotFound)
		}

		return fmt.Errorf("delete actor [%s]: %w", actorIRI, err)
	}

	if err := p.keyStore.Delete(actorIRI); err != nil {
		logger.Warn("Error deleting key pair for actor", logfields.WithActorIRI(actorIRI),
			log.WithError(err))
	}

	logger.Debug("Deleted actor", logfields.WithActorIRI(actorIRI))

	return nil
}

// SigningKey returns the private key and public key ID of the given local actor. If
// actorIRI is nil then the system actor's key is returned.
func (p *Provider) SigningKey(actorIRI *url.URL) (crypto.PrivateKey, *url.URL, error) {
	if actorIRI == nil {
		actorIRI = p.actorIRI(p.SystemUsername)
	}

	keyPair, err := p.keyStore.Get(actorIRI)
	if err != nil {
		return nil, nil, fmt.Errorf("get key pair for [%s]: %w", actorIRI, err)
	}

	privateKey, err := privateKeyFromPEM([]byte(keyPair.PrivateKeyPem))
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key for [%s]: %w", actorIRI, err)
	}

	keyID, err := url.Parse(keyPair.KeyID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse key ID for [%s]: %w", actorIRI, err)
	}

	return privateKey, keyID, nil
}

// PrivateKeyPem returns the PEM-encoded private key of the given local actor.
func (p *Provider) PrivateKeyPem(actorIRI *url.URL) (string, error) {
	keyPair, err := p.keyStore.Get(actorIRI)
	if err != nil {
		return "", fmt.Errorf("get key pair for [%s]: %w", actorIRI, err)
	}

	return keyPair.PrivateKeyPem, nil
}

func (p *Provider) newKeyPair(actorIRI *url.URL) (*KeyPair, error) {
	privateKey, err := p.generateKey(p.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	return &KeyPair{
		KeyID: actorIRI.String() + mainKeyFragment,
		PublicKeyPem: string(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: publicKeyBytes,
		})),
		PrivateKeyPem: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
		})),
	}, nil
}

func (p *Provider) actorIRI(username string) *url.URL {
	return mustParseURL(fmt.Sprintf("%s/users/%s", p.ServiceEndpointURL, username))
}

func privateKeyFromPEM(privateKeyPem []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPem)
	if block == nil {
		return nil, errors.New("invalid private key PEM")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8Key, errPKCS8 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if errPKCS8 != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}

		return pkcs8Key, nil
	}

	return key, nil
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}

	return u
}
