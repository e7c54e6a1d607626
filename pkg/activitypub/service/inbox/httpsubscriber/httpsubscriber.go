/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsubscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	wmhttp "github.com/ThreeDotsLabs/watermill-http/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/mux"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/httpserver/auth"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	"github.com/broca-activitypub/broca/pkg/pubsub"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

const (
	// ActorIRIKey is the metadata key for the IRI of the actor whose HTTP signature was verified.
	ActorIRIKey = "actor-iri"

	// InboxOwnerKey is the metadata key for the IRI of the local actor that owns the target inbox.
	InboxOwnerKey = "inbox-owner"

	// AdminAuthorizedKey is the metadata key indicating that the request was authorized with the
	// administrative bearer token.
	AdminAuthorizedKey = "admin-authorized"

	usernameVar = "username"

	defaultBufferSize = 100

	loggerModule = "activitypub_service"
)

// Config holds the HTTP subscriber configuration parameters.
type Config struct {
	// ServiceEndpoint is the route pattern of the inbox endpoint, e.g. /users/{username}/inbox.
	ServiceEndpoint string
	// ServiceEndpointURL is the base URL of this server.
	ServiceEndpointURL *url.URL
	// SystemUsername is the username of the system actor. The administrative bearer token is
	// only accepted on the system actor's inbox.
	SystemUsername string
	// AdminToken is the administrative bearer token. If empty then admin authorization is disabled.
	AdminToken string
	// AuthorizedAdminActors contains the IRIs of remote actors whose signed requests to the
	// system actor's inbox are treated as administrative.
	AuthorizedAdminActors []string
	// RequireHTTPSignatures indicates whether requests that are not admin-authorized must carry
	// a valid HTTP signature.
	RequireHTTPSignatures bool
	BufferSize            int
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (bool, *url.URL, error)
}

type actorStore interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

// Subscriber implements a subscriber for Watermill that handles HTTP requests posted to actor inboxes.
type Subscriber struct {
	*lifecycle.Lifecycle
	*Config

	pubChan          chan *message.Message
	msgChan          chan *message.Message
	stopped          chan struct{}
	done             chan struct{}
	unmarshalMessage wmhttp.UnmarshalMessageFunc
	verifier         signatureVerifier
	adminVerifier    *auth.AdminVerifier
	actorStore       actorStore
	logger           *log.Log
}

// New returns a new HTTP subscriber.
func New(cfg *Config, s actorStore, sigVerifier signatureVerifier) *Subscriber {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}

	h := &Subscriber{
		Config:           cfg,
		unmarshalMessage: wmhttp.DefaultUnmarshalMessageFunc,
		verifier:         sigVerifier,
		actorStore:       s,
		pubChan:          make(chan *message.Message, cfg.BufferSize),
		msgChan:          make(chan *message.Message, cfg.BufferSize),
		stopped:          make(chan struct{}),
		done:             make(chan struct{}),
		adminVerifier:    auth.NewAdminVerifier(cfg.AdminToken),
		logger:           log.New(loggerModule, log.WithFields(logfields.WithServiceName(cfg.ServiceEndpoint))),
	}

	h.Lifecycle = lifecycle.New("httpsubscriber-"+cfg.ServiceEndpoint,
		lifecycle.WithStop(h.stop),
		lifecycle.WithStart(func() {
			go h.publisher()
		}),
	)

	// Start the service immediately.
	h.Start()

	return h
}

// Subscribe returns the channel over which incoming messages are sent.
func (s *Subscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return s.msgChan, nil
}

// Close stops the subscriber.
func (s *Subscriber) Close() error {
	s.Stop()

	return nil
}

// Path returns the base path of the target endpoint for this subscriber.
func (s *Subscriber) Path() string {
	return s.ServiceEndpoint
}

// Method returns the HTTP method, which is always POST.
func (s *Subscriber) Method() string {
	return http.MethodPost
}

// Handler returns the handler that should be invoked when an HTTP request is posted to the target endpoint.
// This handler must be registered with an HTTP server.
func (s *Subscriber) Handler() common.HTTPRequestHandler {
	return s.handleMessage
}

func (s *Subscriber) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := mux.Vars(r)[usernameVar]

	ownerIRI, err := s.resolveInboxOwner(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debugc(ctx, "Inbox owner not found", logfields.WithUsername(username))

			w.WriteHeader(http.StatusNotFound)
		} else {
			s.logger.Errorc(ctx, "Error resolving inbox owner", logfields.WithUsername(username),
				log.WithError(err))

			w.WriteHeader(http.StatusInternalServerError)
		}

		return
	}

	var actorIRI *url.URL

	adminAuthorized := username == s.SystemUsername && s.adminVerifier.Verify(r)

	if !adminAuthorized && s.RequireHTTPSignatures {
		verified, actor, err := s.verifier.VerifyRequest(r)
		if err != nil {
			s.logger.Errorc(ctx, "Error verifying HTTP signature", log.WithError(err), logfields.WithSenderURL(r.URL))

			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		if !verified {
			s.logger.Infoc(ctx, "Invalid HTTP signature", logfields.WithSenderURL(r.URL))

			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		actorIRI = actor

		if username == s.SystemUsername && s.isAuthorizedAdmin(actorIRI) {
			adminAuthorized = true
		}
	}

	msg, err := s.unmarshalMessage("", r)
	if err != nil {
		s.logger.Warnc(ctx, "Error reading message", log.WithError(err), logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	if !json.Valid(msg.Payload) {
		s.logger.Debugc(ctx, "Message payload is not valid JSON", logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	msg.Metadata[InboxOwnerKey] = ownerIRI.String()

	if adminAuthorized {
		msg.Metadata[AdminAuthorizedKey] = "true"
	}

	if actorIRI != nil {
		msg.Metadata[ActorIRIKey] = actorIRI.String()
	}

	s.logger.Debugc(ctx, "Handling message", logfields.WithMessageID(msg.UUID),
		logfields.WithActorIRI(actorIRI), logfields.WithSenderURL(r.URL))

	pubsub.InjectContext(ctx, msg)

	err = s.publish(msg)
	if err != nil {
		s.logger.Infoc(ctx, "Message wasn't sent", logfields.WithMessageID(msg.UUID), log.WithError(err), logfields.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	s.respond(msg, w, r)
}

func (s *Subscriber) isAuthorizedAdmin(actorIRI *url.URL) bool {
	if actorIRI == nil {
		return false
	}

	for _, iri := range s.AuthorizedAdminActors {
		if iri == actorIRI.String() {
			return true
		}
	}

	return false
}

func (s *Subscriber) resolveInboxOwner(username string) (*url.URL, error) {
	ownerIRI, err := url.Parse(fmt.Sprintf("%s/users/%s", s.ServiceEndpointURL, username))
	if err != nil {
		return nil, fmt.Errorf("parse inbox owner IRI: %w", err)
	}

	if _, err := s.actorStore.GetActor(ownerIRI); err != nil {
		return nil, fmt.Errorf("get actor [%s]: %w", ownerIRI, err)
	}

	return ownerIRI, nil
}

func (s *Subscriber) publish(msg *message.Message) error {
	if s.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	s.pubChan <- msg

	s.logger.Debug("Message was posted to publisher", logfields.WithMessageID(msg.UUID))

	return nil
}

func (s *Subscriber) publisher() {
	s.logger.Info("Starting publisher.")

	for {
		select {
		case msg := <-s.pubChan:
			s.msgChan <- msg

			s.logger.Debug("Message was delivered to subscriber", logfields.WithMessageID(msg.UUID))

		case <-s.stopped:
			s.logger.Info("Stopping publisher.")

			close(s.done)

			return
		}
	}
}

func (s *Subscriber) respond(msg *message.Message, w http.ResponseWriter, r *http.Request) {
	select {
	case <-msg.Acked():
		s.logger.Debug("Ack received for message", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusAccepted)

	case <-msg.Nacked():
		s.logger.Warn("Nack received for message", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusInternalServerError)

	case <-r.Context().Done():
		s.logger.Info("Timed out waiting for ack or nack for message",
			logfields.WithMessageID(msg.UUID), log.WithError(r.Context().Err()))

		w.WriteHeader(http.StatusInternalServerError)

	case <-s.stopped:
		s.logger.Info("Message was not handled since service was stopped", logfields.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (s *Subscriber) stop() {
	s.logger.Info("Stopping HTTP subscriber")

	close(s.stopped)

	// Wait for the publisher to stop so that we don't close the message channel
	// while we're trying to publish a message to it (which would result in a panic).
	<-s.done

	close(s.msgChan)

	s.logger.Info("... HTTP subscriber stopped.")
}
