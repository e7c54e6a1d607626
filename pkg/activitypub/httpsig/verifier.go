/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-fed/httpsig"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

const digestAlgorithm = "SHA-256"

type publicKeyRetriever interface {
	GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error)
}

type actorRetriever interface {
	publicKeyRetriever

	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

// Verifier verifies signatures of HTTP requests.
type Verifier struct {
	actorRetriever actorRetriever
}

// NewVerifier returns a new HTTP signature verifier.
func NewVerifier(actorRetriever actorRetriever) *Verifier {
	return &Verifier{
		actorRetriever: actorRetriever,
	}
}

// VerifyRequest verifies the following:
// - HTTP signature on the request.
// - The Digest header matches the request body (if the request has a body).
// - The key ID in the Signature header is owned by the signing actor.
//
// Returns:
// - true if the signature was successfully verified, otherwise false.
// - The IRI of the actor that signed the request, if the signature was successfully verified.
// - An error if the signature could not be verified due to a server error.
func (v *Verifier) VerifyRequest(req *http.Request) (bool, *url.URL, error) {
	logger.Debug("Verifying request", logfields.WithRequestHeaders(req.Header))

	// The Go HTTP server promotes the Host header to req.Host and removes it from the
	// header map. Restore it so that it is available for signature verification.
	if req.Header.Get(hostHeader) == "" && req.Host != "" {
		req.Header.Set(hostHeader, req.Host)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		logger.Info("Invalid or missing Signature header in request",
			logfields.WithRequestURL(req.URL), log.WithError(err))

		return false, nil, nil
	}

	keyID := verifier.KeyId()

	keyIRI, err := url.Parse(keyID)
	if err != nil {
		logger.Info("Invalid public key ID in request", logfields.WithKeyID(keyID),
			logfields.WithRequestURL(req.URL), log.WithError(err))

		return false, nil, nil
	}

	logger.Debug("Resolving public key", logfields.WithKeyID(keyID))

	publicKey, err := v.actorRetriever.GetPublicKey(keyIRI)
	if err != nil {
		return false, nil, fmt.Errorf("get public key [%s]: %w", keyIRI, err)
	}

	pubKey, err := publicKeyFromPEM([]byte(publicKey.PublicKeyPem))
	if err != nil {
		logger.Info("Invalid public key PEM for key ID in request", logfields.WithKeyID(keyID),
			logfields.WithRequestURL(req.URL), log.WithError(err))

		return false, nil, nil
	}

	ok, err := v.verifyDigest(req)
	if err != nil {
		return false, nil, fmt.Errorf("verify digest: %w", err)
	}

	if !ok {
		return false, nil, nil
	}

	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		logger.Info("Signature verification failed for request", logfields.WithRequestURL(req.URL),
			log.WithError(err))

		return false, nil, nil
	}

	logger.Debug("Retrieving actor for public key owner", logfields.WithKeyOwnerIRI(publicKey.Owner))

	// Ensure that the public key ID matches the key ID of the specified owner. Otherwise, it could
	// be an attempt to impersonate an actor.
	actor, err := v.actorRetriever.GetActor(publicKey.Owner.URL())
	if err != nil {
		return false, nil, fmt.Errorf("get actor [%s]: %w", publicKey.Owner, err)
	}

	if actor.PublicKey() == nil {
		logger.Info("Nil public key on actor in request", logfields.WithActorIRI(actor.ID()),
			logfields.WithRequestURL(req.URL))

		return false, nil, nil
	}

	if actor.PublicKey().ID.String() != keyIRI.String() {
		logger.Info("Public key of actor does not match the public key ID in the request",
			logfields.WithActorIRI(actor.ID()), logfields.WithKeyIRI(actor.PublicKey().ID),
			logfields.WithKeyID(keyID), logfields.WithRequestURL(req.URL))

		return false, nil, nil
	}

	logger.Debug("Successfully verified signature in header", logfields.WithActorIRI(actor.ID()))

	return true, actor.ID().URL(), nil
}

// verifyDigest ensures that the Digest header matches the hash of the request body,
// bit-exact as received. Requests without a body do not require a Digest header.
func (v *Verifier) verifyDigest(req *http.Request) (bool, error) {
	var body []byte

	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return false, brocaerrors.NewTransient(fmt.Errorf("read request body: %w", err))
		}

		req.Body = io.NopCloser(bytes.NewReader(b))

		body = b
	}

	digest := req.Header.Get(digestHeader)

	if digest == "" {
		if len(body) == 0 {
			return true, nil
		}

		logger.Info("Missing Digest header in request with body", logfields.WithRequestURL(req.URL))

		return false, nil
	}

	const kvLength = 2

	parts := strings.SplitN(digest, "=", kvLength)
	if len(parts) != kvLength || !strings.EqualFold(parts[0], digestAlgorithm) {
		logger.Info("Unsupported algorithm in Digest header in request",
			logfields.WithRequestURL(req.URL))

		return false, nil
	}

	hash := sha256.Sum256(body)

	if parts[1] != base64.StdEncoding.EncodeToString(hash[:]) {
		logger.Info("Digest header in request does not match the request body",
			logfields.WithRequestURL(req.URL))

		return false, nil
	}

	return true, nil
}

func publicKeyFromPEM(pubKeyPem []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pubKeyPem)
	if block == nil {
		return nil, errors.New("invalid public key PEM")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaKey, errPKCS1 := x509.ParsePKCS1PublicKey(block.Bytes)
		if errPKCS1 != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}

		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}

	return rsaKey, nil
}
