/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package resthandler provides the HTTP endpoints of the ActivityPub service: actor
// profiles, inbox/outbox reads, outbox posts, relation collections, objects and their
// reverse references, custom collections, WebFinger, and media blobs.
package resthandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/httpserver/auth"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

const (
	// ActorPath is the endpoint of an actor's profile.
	ActorPath = "/users/{username}"
	// InboxPath is the endpoint of an actor's inbox.
	InboxPath = "/users/{username}/inbox"
	// OutboxPath is the endpoint of an actor's outbox.
	OutboxPath = "/users/{username}/outbox"
	// FollowersPath is the endpoint of an actor's followers collection.
	FollowersPath = "/users/{username}/followers"
	// FollowingPath is the endpoint of an actor's following collection.
	FollowingPath = "/users/{username}/following"
	// LikedPath is the endpoint of the activities that an actor has liked.
	LikedPath = "/users/{username}/liked"
	// SharedPath is the endpoint of the activities that an actor has announced.
	SharedPath = "/users/{username}/shared"
	// ObjectPath is the endpoint of a single object.
	ObjectPath = "/users/{username}/objects/{id}"
	// RepliesPath is the endpoint of an object's replies collection.
	RepliesPath = "/users/{username}/objects/{id}/replies"
	// LikesPath is the endpoint of an object's likes collection.
	LikesPath = "/users/{username}/objects/{id}/likes"
	// SharesPath is the endpoint of an object's shares collection.
	SharesPath = "/users/{username}/objects/{id}/shares"
	// CollectionsPath is the endpoint of an actor's custom-collection catalog.
	CollectionsPath = "/users/{username}/collections"
	// CollectionPath is the endpoint of a single custom collection.
	CollectionPath = "/users/{username}/collections/{id}"
	// MediaPath is the endpoint of a media blob.
	MediaPath = "/users/{username}/media/{id}"
	// WebFingerPath is the WebFinger endpoint. It is always registered at the server
	// root, regardless of the configured base path.
	WebFingerPath = "/.well-known/webfinger"
)

const (
	usernameParam = "username"
	idParam       = "id"

	// PageParam is the query parameter that selects a page of a collection.
	PageParam = "page"
	// LimitParam is the query parameter that overrides the default page size.
	LimitParam = "limit"

	// ActivityJSONType is the content type of ActivityPub responses.
	ActivityJSONType = "application/activity+json"

	defaultPageSize = 20
	maxPageSize     = 100

	notFoundResponse            = "Not Found.\n"
	unauthorizedResponse        = "Unauthorized.\n"
	badRequestResponse          = "Bad Request.\n"
	internalServerErrorResponse = "Internal Server Error.\n"
)

const loggerModule = "activitypub_resthandler"

var logger = log.New(loggerModule)

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (bool, *url.URL, error)
}

// Config holds the configuration parameters for the REST handlers.
type Config struct {
	// BasePath is the route prefix under which all handlers (except WebFinger) are
	// registered, e.g. "/ap".
	BasePath string

	// ServiceEndpointURL is the externally visible base URL of this server, including
	// the base path.
	ServiceEndpointURL *url.URL

	// PageSize is the default number of items returned in a collection page.
	PageSize int

	// MaxPageSize caps the 'limit' query parameter.
	MaxPageSize int

	// AdminToken is the administrative bearer token. Requests that carry it have
	// unrestricted read access. If empty then no request is treated as administrative.
	AdminToken string

	// AuthTokensDef contains the bearer-token definitions that gate read/write access
	// per endpoint expression.
	AuthTokensDef []*auth.TokenDef

	// AuthTokens maps token IDs (used in AuthTokensDef) to their values.
	AuthTokens map[string]string
}

type handler struct {
	*Config

	endpoint      string
	method        string
	activityStore spi.Store
	verifier      signatureVerifier
	tokenVerifier *auth.TokenVerifier
	adminVerifier *auth.AdminVerifier
	handleRequest common.HTTPRequestHandler
	marshal       func(v interface{}) ([]byte, error)
	writeResponse func(w http.ResponseWriter, status int, body []byte)
	logger        *log.Log
}

func newHandler(endpoint, method string, cfg *Config, activityStore spi.Store,
	handleRequest common.HTTPRequestHandler, verifier signatureVerifier) *handler {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}

	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = maxPageSize
	}

	ep := fmt.Sprintf("%s%s", cfg.BasePath, endpoint)

	logger := log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(ep)))

	return &handler{
		Config:        cfg,
		endpoint:      ep,
		method:        method,
		activityStore: activityStore,
		verifier:      verifier,
		tokenVerifier: auth.NewTokenVerifier(
			auth.Config{AuthTokensDef: cfg.AuthTokensDef, AuthTokens: cfg.AuthTokens}, ep, method),
		adminVerifier: auth.NewAdminVerifier(cfg.AdminToken),
		handleRequest: handleRequest,
		marshal:       json.Marshal,
		writeResponse: func(w http.ResponseWriter, status int, body []byte) {
			w.Header().Set("Content-Type", ActivityJSONType)

			w.WriteHeader(status)

			if len(body) > 0 {
				if _, err := w.Write(body); err != nil {
					logger.Warn("Unable to write response", log.WithError(err))
				}
			}
		},
		logger: logger,
	}
}

// Path returns the base path of the target URL for this handler.
func (h *handler) Path() string {
	return h.endpoint
}

// Method returns the HTTP method of the endpoint.
func (h *handler) Method() string {
	return h.method
}

// Handler returns the handler function that should be registered with an HTTP server.
func (h *handler) Handler() common.HTTPRequestHandler {
	return h.handleRequest
}

// isAdmin returns true if the request carries the administrative bearer token.
func (h *handler) isAdmin(req *http.Request) bool {
	return h.adminVerifier.Verify(req)
}

// authorize authorizes the request. The administrative token grants access
// unconditionally. Otherwise the bearer tokens configured for this endpoint are
// checked (access is open if none are configured for the endpoint). As a last
// resort the HTTP signature is verified (if a verifier is set), in which case the
// IRI of the signing actor is returned.
func (h *handler) authorize(req *http.Request) (bool, *url.URL, error) {
	if h.isAdmin(req) {
		return true, h.ServiceEndpointURL, nil
	}

	if h.tokenVerifier.Verify(req) {
		return true, nil, nil
	}

	if h.verifier == nil {
		return false, nil, nil
	}

	ok, actorIRI, err := h.verifier.VerifyRequest(req)
	if err != nil {
		return false, nil, fmt.Errorf("verify HTTP signature: %w", err)
	}

	if !ok {
		return false, nil, nil
	}

	return true, actorIRI, nil
}

// ownerIRI returns the IRI of the local actor addressed by the {username} path variable.
func (h *handler) ownerIRI(req *http.Request) (*url.URL, error) {
	username := mux.Vars(req)[usernameParam]
	if username == "" {
		return nil, fmt.Errorf("username not specified in URL")
	}

	return url.Parse(fmt.Sprintf("%s/users/%s", h.ServiceEndpointURL, username))
}

// isPaging returns true if the request asks for a page of the collection.
func (h *handler) isPaging(req *http.Request) bool {
	return req.URL.Query().Get(PageParam) != ""
}

// getPageNum returns the requested page number.
func (h *handler) getPageNum(req *http.Request) (int, error) {
	pageNum, err := strconv.Atoi(req.URL.Query().Get(PageParam))
	if err != nil || pageNum < 0 {
		return 0, fmt.Errorf("invalid value for parameter [%s]", PageParam)
	}

	return pageNum, nil
}

// getLimit returns the requested page size, capped at the configured maximum.
func (h *handler) getLimit(req *http.Request) (int, error) {
	param := req.URL.Query().Get(LimitParam)
	if param == "" {
		return h.PageSize, nil
	}

	limit, err := strconv.Atoi(param)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid value for parameter [%s]", LimitParam)
	}

	if limit > h.MaxPageSize {
		limit = h.MaxPageSize
	}

	return limit, nil
}

// pageURL returns the URL of the given page of the collection rooted at id.
func (h *handler) pageURL(id *url.URL, pageNum, limit int) *url.URL {
	pageURL, err := url.Parse(fmt.Sprintf("%s?%s=%d&%s=%d", id, PageParam, pageNum, LimitParam, limit))
	if err != nil {
		// The inputs are an already-parsed URL and integers.
		panic(err)
	}

	return pageURL
}

// prevNextURLs returns the 'prev' and 'next' page URLs for the given page, or nil
// where the page does not exist.
func (h *handler) prevNextURLs(id *url.URL, pageNum, limit, totalItems int) (*url.URL, *url.URL) {
	var prev, next *url.URL

	if pageNum > 0 {
		prev = h.pageURL(id, pageNum-1, limit)
	}

	if (pageNum+1)*limit < totalItems {
		next = h.pageURL(id, pageNum+1, limit)
	}

	return prev, next
}
