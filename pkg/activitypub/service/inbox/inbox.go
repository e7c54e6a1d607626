/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/inbox/httpsubscriber"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	"github.com/broca-activitypub/broca/pkg/pubsub"
	"github.com/broca-activitypub/broca/pkg/pubsub/wmlogger"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

const (
	defaultTopic = "broca.activities.inbox"

	loggerModule = "activitypub_service"
)

type pubSub interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	Close() error
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (bool, *url.URL, error)
}

type attachmentProcessor interface {
	ProcessAttachments(ctx context.Context, ownerIRI *url.URL, activity *vocab.ActivityType) error
}

// Config holds configuration parameters for the Inbox.
type Config struct {
	// ServiceEndpoint is the route pattern of the inbox endpoint, e.g. /users/{username}/inbox.
	ServiceEndpoint string
	// ServiceEndpointURL is the base URL of this server.
	ServiceEndpointURL *url.URL
	// SystemUsername is the username of the system actor.
	SystemUsername string
	// AdminToken is the administrative bearer token which may be used to post to the system
	// actor's inbox without an HTTP signature.
	AdminToken string
	// AuthorizedAdminActors contains the IRIs of remote actors whose signed posts to the
	// system actor's inbox are treated as administrative.
	AuthorizedAdminActors []string
	// RequireHTTPSignatures indicates whether inbox posts must carry a valid HTTP signature.
	RequireHTTPSignatures bool
	Topic                 string
	BufferSize            int
}

// Inbox implements the ActivityPub inbox for all actors hosted by this server. Activities posted
// to an actor's inbox endpoint are published to a queue and handled asynchronously, although the
// HTTP response is not sent until the activity has been persisted.
type Inbox struct {
	*Config
	*lifecycle.Lifecycle

	router              *message.Router
	httpSubscriber      *httpsubscriber.Subscriber
	msgChannel          <-chan *message.Message
	activityHandler     service.ActivityHandler
	adminHandler        service.ActivityHandler
	activityStore       store.Store
	attachmentProcessor attachmentProcessor
	jsonUnmarshal       func(data []byte, v interface{}) error
	logger              *log.Log
}

// New returns a new ActivityPub inbox. The adminHandler is invoked (instead of activityHandler)
// for activities that were authorized with the administrative bearer token. The attachment
// processor may be nil, in which case attachments are left untouched.
func New(cnfg *Config, s store.Store, pubSub pubSub, activityHandler, adminHandler service.ActivityHandler,
	sigVerifier signatureVerifier, attachmentProc attachmentProcessor) (*Inbox, error) {
	cfg := *cnfg

	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}

	h := &Inbox{
		Config:              &cfg,
		activityHandler:     activityHandler,
		adminHandler:        adminHandler,
		activityStore:       s,
		attachmentProcessor: attachmentProc,
		jsonUnmarshal:       json.Unmarshal,
		logger:              log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(cfg.ServiceEndpoint))),
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceEndpoint,
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	msgChan, err := pubSub.Subscribe(context.Background(), cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to topic [%s]: %w", cfg.Topic, err)
	}

	httpSubscriber := httpsubscriber.New(
		&httpsubscriber.Config{
			ServiceEndpoint:       cfg.ServiceEndpoint,
			ServiceEndpointURL:    cfg.ServiceEndpointURL,
			SystemUsername:        cfg.SystemUsername,
			AdminToken:            cfg.AdminToken,
			AuthorizedAdminActors: cfg.AuthorizedAdminActors,
			RequireHTTPSignatures: cfg.RequireHTTPSignatures,
			BufferSize:            cfg.BufferSize,
		},
		s, sigVerifier,
	)

	router, err := message.NewRouter(message.RouterConfig{}, wmlogger.New())
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer, middleware.CorrelationID)

	router.AddPlugin(plugin.SignalsHandler)

	router.AddHandler(
		cfg.ServiceEndpoint, cfg.ServiceEndpoint,
		httpSubscriber, cfg.Topic, pubSub,
		func(msg *message.Message) ([]*message.Message, error) {
			// Simply forward the message.
			return message.Messages{msg}, nil
		},
	)

	h.router = router
	h.httpSubscriber = httpSubscriber
	h.msgChannel = msgChan

	return h, nil
}

// HTTPHandler returns the HTTP handler which is invoked by the HTTP server.
// This handler must be registered with an HTTP server.
func (h *Inbox) HTTPHandler() common.HTTPHandler {
	return h.httpSubscriber
}

func (h *Inbox) start() {
	// Start the router
	go h.route()

	// Start the message listener
	go h.listen()

	// HTTP server needs to be started after router is ready.
	<-h.router.Running()
}

func (h *Inbox) stop() {
	if err := h.router.Close(); err != nil {
		h.logger.Warn("Error closing router", log.WithError(err))
	} else {
		h.logger.Debug("Closed router")
	}
}

func (h *Inbox) route() {
	h.logger.Debug("Starting router")

	if err := h.router.Run(context.Background()); err != nil {
		// This happens on startup so the best thing to do is to panic
		panic(err)
	}

	h.logger.Debug("Router stopped")
}

func (h *Inbox) listen() {
	h.logger.Debug("Starting message listener")

	for msg := range h.msgChannel {
		h.logger.Debug("Got new message", logfields.WithMessageID(msg.UUID), logfields.WithPayload(msg.Payload))

		h.handle(msg)
	}

	h.logger.Debug("Message listener stopped")
}

func (h *Inbox) handle(msg *message.Message) {
	ctx := pubsub.ContextFromMessage(msg)

	activity := &vocab.ActivityType{}

	if err := h.jsonUnmarshal(msg.Payload, activity); err != nil {
		h.logger.Warnc(ctx, "Ignoring activity message that could not be unmarshalled",
			logfields.WithMessageID(msg.UUID), log.WithError(err), logfields.WithPayload(msg.Payload))

		msg.Ack()

		return
	}

	if activity.ID() == nil || activity.ID().String() == "" {
		h.logger.Warnc(ctx, "Ignoring activity with no ID", logfields.WithMessageID(msg.UUID),
			logfields.WithPayload(msg.Payload))

		msg.Ack()

		return
	}

	if len(activity.Type().Types()) == 0 {
		h.logger.Warnc(ctx, "Ignoring activity with no type", logfields.WithActivityID(activity.ID()),
			logfields.WithMessageID(msg.UUID))

		msg.Ack()

		return
	}

	ownerIRI, err := url.Parse(msg.Metadata[httpsubscriber.InboxOwnerKey])
	if err != nil || ownerIRI.String() == "" {
		h.logger.Errorc(ctx, "Invalid inbox owner in message metadata", logfields.WithMessageID(msg.UUID),
			log.WithError(err))

		msg.Nack()

		return
	}

	duplicate, err := h.isDuplicate(ownerIRI, activity.ID().URL())
	if err != nil {
		h.logger.Errorc(ctx, "Error checking for duplicate activity", logfields.WithActivityID(activity.ID()),
			logfields.WithMessageID(msg.UUID), log.WithError(err))

		msg.Nack()

		return
	}

	if duplicate {
		h.logger.Infoc(ctx, "Ignoring duplicate activity", logfields.WithActivityID(activity.ID()),
			logfields.WithMessageID(msg.UUID))

		msg.Ack()

		return
	}

	if h.attachmentProcessor != nil {
		// Attachment processing is best-effort. If an attachment could not be downloaded
		// then the activity is stored with its original attachment URLs.
		if err := h.attachmentProcessor.ProcessAttachments(ctx, ownerIRI, activity); err != nil {
			h.logger.Warnc(ctx, "Error processing attachments for activity",
				logfields.WithActivityID(activity.ID()), log.WithError(err))
		}
	}

	if err := h.activityStore.AddActivity(activity); err != nil {
		h.logger.Errorc(ctx, "Error storing activity", logfields.WithActivityID(activity.ID()),
			log.WithError(err))

		msg.Nack()

		return
	}

	if err := h.activityStore.AddReference(store.Inbox, ownerIRI, activity.ID().URL(),
		store.WithActivityType(activity.Type().Types()[0])); err != nil {
		h.logger.Errorc(ctx, "Error adding inbox reference to activity", logfields.WithActivityID(activity.ID()),
			logfields.WithObjectIRI(ownerIRI), log.WithError(err))

		msg.Nack()

		return
	}

	// The activity has been persisted, so acknowledge the message regardless of whether the
	// side effects could be applied. Side effect failures are logged and the sender still
	// receives a success response, since a retry by the sender would be ignored as a duplicate.
	if err := h.handler(msg).HandleActivity(ownerIRI, activity); err != nil {
		h.logger.Warnc(ctx, "Error handling activity", logfields.WithActivityID(activity.ID()),
			logfields.WithActivityType(activity.Type().String()), log.WithError(err))
	} else {
		h.logger.Debugc(ctx, "Successfully handled activity", logfields.WithActivityID(activity.ID()),
			logfields.WithMessageID(msg.UUID))
	}

	msg.Ack()
}

func (h *Inbox) handler(msg *message.Message) service.ActivityHandler {
	if msg.Metadata[httpsubscriber.AdminAuthorizedKey] == "true" {
		return h.adminHandler
	}

	return h.activityHandler
}

func (h *Inbox) isDuplicate(ownerIRI, activityID *url.URL) (bool, error) {
	it, err := h.activityStore.QueryReferences(store.Inbox,
		store.NewCriteria(store.WithObjectIRI(ownerIRI), store.WithReferenceIRI(activityID)))
	if err != nil {
		return false, fmt.Errorf("query inbox references: %w", err)
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(h.logger, err)
		}
	}()

	if _, err := it.Next(); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("get next inbox reference: %w", err)
	}

	return true, nil
}
