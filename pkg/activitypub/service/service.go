/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package service assembles the ActivityPub subsystems of the server: the inbox
// processing pipeline, the outbox, and the activity delivery engine.
package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/collections"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/activityhandler"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/delivery"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/inbox"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/outbox"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	wmspi "github.com/broca-activitypub/broca/pkg/pubsub/spi"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
	"github.com/broca-activitypub/broca/pkg/store/expiry"
)

const (
	inboxTopic    = "inbox-activities"
	deliveryTopic = "delivery-queue"
)

// PubSub defines the functions for a publisher/subscriber.
type PubSub interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	SubscribeWithOpts(ctx context.Context, topic string, opts ...wmspi.Option) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	Close() error
}

type httpTransport interface {
	Post(ctx context.Context, req *transport.Request, payload []byte) (*http.Response, error)
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

type activityPubClient interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

type collectionManager interface {
	Create(ownerIRI *url.URL, def *collections.Definition) error
	Update(ownerIRI *url.URL, def *collections.Definition) error
	Delete(ownerIRI *url.URL, collectionID string) error
	AddItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error
	RemoveItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error
}

type identityManager interface {
	CreateActor(actor *vocab.ActorType) (*vocab.ActorType, error)
	UpdateActor(actor *vocab.ActorType) error
	DeleteActor(actorIRI *url.URL) error
}

type attachmentProcessor interface {
	ProcessAttachments(ctx context.Context, ownerIRI *url.URL, activity *vocab.ActivityType) error
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (bool, *url.URL, error)
}

type taskManager interface {
	RegisterTask(taskID string, interval time.Duration, task func())
}

type expiryService interface {
	Register(store storage.Store, expiryTagName, storeName string, opts ...expiry.Option)
}

type outboxDeliverer interface {
	Enqueue(sender *url.URL, activity *vocab.ActivityType, route delivery.Route) (int, error)
}

// noOpDeliverer is used when activity delivery is disabled. Activities are stored and
// applied locally but are never delivered to remote inboxes.
type noOpDeliverer struct{}

func (d *noOpDeliverer) Enqueue(*url.URL, *vocab.ActivityType, delivery.Route) (int, error) {
	return 0, nil
}

type metricsProvider interface {
	OutboxPostTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
	OutboxResolveInboxesTime(value time.Duration)
	DeliverTime(value time.Duration)
	DeliveryIncrementRetryCount()
	DeliveryIncrementDeadCount()
	DeliveryQueueDepth(value float64)
}

// Config holds the configuration parameters for the ActivityPub service.
type Config struct {
	// ServiceName is the name of the service (used for logging and queue naming).
	ServiceName string
	// ServiceEndpoint is the route pattern of the inbox endpoint.
	ServiceEndpoint string
	// ServiceEndpointURL is the base HTTP(s) endpoint of this server.
	ServiceEndpointURL *url.URL
	// SystemUsername is the username of the system actor.
	SystemUsername string
	// AdminToken is the administrative bearer token.
	AdminToken string
	// AuthorizedAdminActors contains the IRIs of remote actors whose signed posts to the
	// system actor's inbox are treated as administrative.
	AuthorizedAdminActors []string
	// RequireHTTPSignatures indicates whether inbox posts must carry a valid HTTP signature.
	RequireHTTPSignatures bool
	// AutoAcceptFollowers indicates whether Follow requests are automatically accepted.
	AutoAcceptFollowers bool
	// BufferSize is the size of the activity subscription channel buffers.
	BufferSize int
	// DisableDelivery disables the activity delivery engine. Activities posted to an
	// outbox are stored and applied locally but are not delivered to remote inboxes.
	DisableDelivery bool
	// Delivery holds the configuration of the activity delivery engine.
	Delivery *delivery.Config
}

// Providers holds the dependencies of the ActivityPub service.
type Providers struct {
	ActivityStore   store.Store
	StorageProvider storage.Provider
	PubSub          PubSub
	Transport       httpTransport
	APClient        activityPubClient
	Collections     collectionManager
	Identity        identityManager
	Attachments     attachmentProcessor
	SigVerifier     signatureVerifier
	TaskMgr         taskManager
	ExpiryService   expiryService
	Metrics         metricsProvider
}

// Service implements an ActivityPub service which has an inbox, an outbox, and
// handlers that apply the side effects of the various ActivityPub activities.
type Service struct {
	*lifecycle.Lifecycle

	inbox         *inbox.Inbox
	outbox        *outbox.Outbox
	deliverer     *delivery.Engine
	inboxHandler  service.ActivityHandler
	outboxHandler service.ActivityHandler
	adminHandler  service.ActivityHandler
}

// New returns a new ActivityPub service.
func New(cfg *Config, p *Providers, handlerOpts ...service.HandlerOpt) (*Service, error) {
	var deliverer *delivery.Engine

	if !cfg.DisableDelivery {
		deliveryCfg := cfg.Delivery
		if deliveryCfg == nil {
			deliveryCfg = &delivery.Config{}
		}

		if deliveryCfg.ServiceName == "" {
			deliveryCfg.ServiceName = cfg.ServiceName
		}

		if deliveryCfg.Topic == "" {
			deliveryCfg.Topic = deliveryTopic
		}

		var err error

		deliverer, err = delivery.New(deliveryCfg, p.ActivityStore, p.StorageProvider, p.Transport,
			p.APClient, p.PubSub, p.TaskMgr, p.ExpiryService, p.Metrics)
		if err != nil {
			return nil, fmt.Errorf("create delivery engine: %w", err)
		}
	}

	handlerCfg := &activityhandler.Config{
		ServiceName:         cfg.ServiceName,
		ServiceEndpointURL:  cfg.ServiceEndpointURL,
		BufferSize:          cfg.BufferSize,
		AutoAcceptFollowers: cfg.AutoAcceptFollowers,
	}

	outboxHandler := activityhandler.NewOutbox(handlerCfg, p.ActivityStore, p.Collections)

	var enqueuer outboxDeliverer = deliverer

	if deliverer == nil {
		enqueuer = &noOpDeliverer{}
	}

	ob := outbox.New(
		&outbox.Config{
			ServiceName:        cfg.ServiceName,
			ServiceEndpointURL: cfg.ServiceEndpointURL,
		},
		p.ActivityStore, outboxHandler, enqueuer, p.Metrics,
	)

	inboxHandler := activityhandler.NewInbox(handlerCfg, p.ActivityStore, ob, p.APClient,
		p.Collections, handlerOpts...)

	adminHandler := activityhandler.NewAdmin(handlerCfg, p.ActivityStore, inboxHandler,
		p.Identity, p.Collections)

	ib, err := inbox.New(
		&inbox.Config{
			ServiceEndpoint:       cfg.ServiceEndpoint,
			ServiceEndpointURL:    cfg.ServiceEndpointURL,
			SystemUsername:        cfg.SystemUsername,
			AdminToken:            cfg.AdminToken,
			AuthorizedAdminActors: cfg.AuthorizedAdminActors,
			RequireHTTPSignatures: cfg.RequireHTTPSignatures,
			Topic:                 inboxTopic,
			BufferSize:            cfg.BufferSize,
		},
		p.ActivityStore, p.PubSub, inboxHandler, adminHandler, p.SigVerifier, p.Attachments,
	)
	if err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	s := &Service{
		inbox:         ib,
		outbox:        ob,
		deliverer:     deliverer,
		inboxHandler:  inboxHandler,
		outboxHandler: outboxHandler,
		adminHandler:  adminHandler,
	}

	s.Lifecycle = lifecycle.New(cfg.ServiceName,
		lifecycle.WithStart(s.start),
		lifecycle.WithStop(s.stop),
	)

	return s, nil
}

func (s *Service) start() {
	s.outboxHandler.Start()
	s.inboxHandler.Start()
	s.adminHandler.Start()

	if s.deliverer != nil {
		s.deliverer.Start()
	}

	s.outbox.Start()
	s.inbox.Start()
}

func (s *Service) stop() {
	s.inbox.Stop()
	s.outbox.Stop()

	if s.deliverer != nil {
		s.deliverer.Stop()
	}

	s.adminHandler.Stop()
	s.inboxHandler.Stop()
	s.outboxHandler.Stop()
}

// Outbox returns the outbox, which allows clients to post activities.
func (s *Service) Outbox() service.Outbox {
	return s.outbox
}

// InboxHTTPHandler returns the HTTP handler for the inbox endpoint, which must be
// registered with an HTTP server.
func (s *Service) InboxHTTPHandler() common.HTTPHandler {
	return s.inbox.HTTPHandler()
}

// Subscribe allows a client to receive activities that were processed by the inbox.
func (s *Service) Subscribe() <-chan *vocab.ActivityType {
	return s.inboxHandler.Subscribe()
}
