/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
)

var logger = log.New("activitypub_client")

const (
	// AcceptHeader is the name of the Accept header.
	AcceptHeader = "Accept"
	// ContentTypeHeader is the name of the Content-Type header.
	ContentTypeHeader = "Content-Type"
	// ActivityStreamsContentType is the content type used for ActivityPub requests.
	ActivityStreamsContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// Signer signs an HTTP request and adds the signature to the header of the request.
type Signer interface {
	SignRequest(pKey crypto.PrivateKey, pubKeyID string, r *http.Request, body []byte) error
}

// SigningKeyResolver resolves the signing key pair for a local actor. A nil actor
// IRI resolves to the key of the system actor.
type SigningKeyResolver interface {
	SigningKey(actorIRI *url.URL) (crypto.PrivateKey, *url.URL, error)
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport implements a client-side transport that Gets and Posts requests using HTTP signatures.
type Transport struct {
	client     httpClient
	getSigner  Signer
	postSigner Signer
	keys       SigningKeyResolver
}

// New returns a new transport.
func New(client httpClient, keys SigningKeyResolver, getSigner, postSigner Signer) *Transport {
	return &Transport{
		client:     client,
		keys:       keys,
		getSigner:  getSigner,
		postSigner: postSigner,
	}
}

// Request contains the destination URL and headers, along with the local actor
// on whose behalf the request is signed.
type Request struct {
	URL    *url.URL
	Header http.Header

	signingActor *url.URL
}

// Opt is a request option.
type Opt func(r *Request)

// WithHeader sets a header on the request.
func WithHeader(name string, values ...string) Opt {
	return func(r *Request) {
		r.Header[name] = values
	}
}

// WithSigningActor sets the local actor on whose behalf the request is signed.
// If not set then the request is signed by the system actor.
func WithSigningActor(actorIRI *url.URL) Opt {
	return func(r *Request) {
		r.signingActor = actorIRI
	}
}

// NewRequest returns a new request.
func NewRequest(toURL *url.URL, opts ...Opt) *Request {
	r := &Request{
		URL:    toURL,
		Header: make(http.Header),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Default returns a default transport that uses the default HTTP client and no HTTP signatures.
// This transport should only be used by tests.
func Default() *Transport {
	return &Transport{
		client:     http.DefaultClient,
		keys:       &noOpKeyResolver{},
		getSigner:  &NoOpSigner{},
		postSigner: &NoOpSigner{},
	}
}

// Post posts an HTTP request. The HTTP request is first signed and the signature is added to the request header.
func (t *Transport) Post(ctx context.Context, r *Request, payload []byte) (*http.Response, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request to %s: %w", r.URL, err)
	}

	req.Header = r.Header

	pKey, pubKeyID, err := t.keys.SigningKey(r.signingActor)
	if err != nil {
		return nil, fmt.Errorf("resolve signing key: %w", err)
	}

	err = t.postSigner.SignRequest(pKey, pubKeyID.String(), req, payload)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Signed HTTP POST", logfields.WithRequestURL(r.URL),
		logfields.WithRequestHeaders(req.Header))

	return t.client.Do(req)
}

// Get sends an HTTP GET. The HTTP request is first signed and the signature is added to the request header.
func (t *Transport) Get(ctx context.Context, r *Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", r.URL, err)
	}

	req.Header = r.Header

	pKey, pubKeyID, err := t.keys.SigningKey(r.signingActor)
	if err != nil {
		return nil, fmt.Errorf("resolve signing key: %w", err)
	}

	err = t.getSigner.SignRequest(pKey, pubKeyID.String(), req, nil)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Signed HTTP GET", logfields.WithRequestURL(r.URL),
		logfields.WithRequestHeaders(req.Header))

	return t.client.Do(req)
}

// NoOpSigner is a signer that does nothing. This signer should only be used by tests.
type NoOpSigner struct{}

// DefaultSigner returns a default, no-op signer. This signer should only be used by tests.
func DefaultSigner() *NoOpSigner {
	return &NoOpSigner{}
}

// SignRequest does nothing.
func (s *NoOpSigner) SignRequest(crypto.PrivateKey, string, *http.Request, []byte) error {
	return nil
}

type noOpKeyResolver struct{}

func (r *noOpKeyResolver) SigningKey(*url.URL) (crypto.PrivateKey, *url.URL, error) {
	return nil, &url.URL{}, nil
}
