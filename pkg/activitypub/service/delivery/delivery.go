/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package delivery implements the activity delivery engine. Activities posted to an
// outbox are enqueued as durable queue items, one per destination inbox. A periodic
// task claims items that are due for an attempt and dispatches them to a pool of
// senders, which post the activities to the destination inboxes using signed HTTP
// requests. Failed deliveries are retried with an increasing backoff until the
// maximum number of attempts is reached.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	wmspi "github.com/broca-activitypub/broca/pkg/pubsub/spi"
	"github.com/broca-activitypub/broca/pkg/store/expiry"
)

const (
	taskID = "activity-delivery"

	defaultTopic                  = "broca.activities.outbox"
	defaultBatchSize              = 100
	defaultProcessingInterval     = 5 * time.Second
	defaultConcurrency            = 10
	defaultMaxAttempts            = 5
	defaultLeaseTimeout           = 2 * time.Minute
	defaultRequestTimeout         = 30 * time.Second
	defaultRetention              = 7 * 24 * time.Hour
	defaultConcurrentHTTPRequests = 10
	defaultCacheSize              = 100
	defaultCacheExpiration        = time.Minute
)

// retrySchedule holds the delay before each retry of a failed delivery. The first
// failure is retried after one minute, the second after five minutes, and so on.
// Failures beyond the length of the schedule use the last entry.
var retrySchedule = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
}

type routingMode int

const (
	routeToRecipients routingMode = iota
	routeToActor
	routeToFollowers
)

// Route determines how the destination inboxes for an activity are resolved.
type Route struct {
	mode  routingMode
	actor *url.URL
}

// ToRecipients routes an activity to the actors named in its recipient fields. A
// reference to the sender's followers collection is expanded to the sender's followers.
func ToRecipients() Route {
	return Route{mode: routeToRecipients}
}

// ToActor routes an activity to the inbox of the given actor.
func ToActor(actorIRI *url.URL) Route {
	return Route{mode: routeToActor, actor: actorIRI}
}

// ToFollowers routes an activity to the followers of the sending actor.
func ToFollowers() Route {
	return Route{mode: routeToFollowers}
}

// Config holds the configuration parameters for the delivery engine.
type Config struct {
	ServiceName           string
	Topic                 string
	BatchSize             int
	ProcessingInterval    time.Duration
	Concurrency           int
	MaxAttempts           int
	LeaseTimeout          time.Duration
	RequestTimeout        time.Duration
	Retention             time.Duration
	MaxConcurrentRequests int
	CacheSize             int
	CacheExpiration       time.Duration
}

type pubSub interface {
	SubscribeWithOpts(ctx context.Context, topic string, opts ...wmspi.Option) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
}

type httpTransport interface {
	Post(ctx context.Context, req *transport.Request, payload []byte) (*http.Response, error)
}

type activityPubClient interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

type taskManager interface {
	RegisterTask(taskID string, interval time.Duration, task func())
}

type expiryService interface {
	Register(store storage.Store, expiryTagName, storeName string, opts ...expiry.Option)
}

type metricsProvider interface {
	OutboxResolveInboxesTime(value time.Duration)
	DeliverTime(value time.Duration)
	DeliveryIncrementRetryCount()
	DeliveryIncrementDeadCount()
	DeliveryQueueDepth(value float64)
}

type actorEndpoints struct {
	inbox       *url.URL
	sharedInbox *url.URL
}

// Engine implements the activity delivery engine.
type Engine struct {
	*Config
	*lifecycle.Lifecycle

	queue         *queueStore
	activityStore store.Store
	client        activityPubClient
	transport     httpTransport
	pubSub        pubSub
	msgChan       <-chan *message.Message
	endpointCache gcache.Cache
	metrics       metricsProvider
	logger        *log.Log
	jsonMarshal   func(v interface{}) ([]byte, error)
	jsonUnmarshal func(data []byte, v interface{}) error
}

// New returns a new delivery engine. The engine registers a task with the given task
// manager that periodically claims queue items that are due for a delivery attempt,
// and registers its queue store with the given expiry service so that items in a
// terminal status are removed after the retention period.
func New(cfg *Config, activityStore store.Store, storageProvider storage.Provider, t httpTransport,
	apClient activityPubClient, pubSub pubSub, taskMgr taskManager, expirySvc expiryService,
	metrics metricsProvider) (*Engine, error) {
	config := populateConfigDefaults(cfg)

	queue, err := newQueueStore(storageProvider, config.Retention)
	if err != nil {
		return nil, fmt.Errorf("create queue store: %w", err)
	}

	msgChan, err := pubSub.SubscribeWithOpts(context.Background(), config.Topic, wmspi.WithPool(config.Concurrency))
	if err != nil {
		return nil, fmt.Errorf("subscribe to topic [%s]: %w", config.Topic, err)
	}

	h := &Engine{
		Config:        &config,
		queue:         queue,
		activityStore: activityStore,
		client:        apClient,
		transport:     t,
		pubSub:        pubSub,
		msgChan:       msgChan,
		metrics:       metrics,
		logger:        log.New("activitypub_delivery", log.WithFields(logfields.WithServiceName(config.ServiceName))),
		jsonMarshal:   json.Marshal,
		jsonUnmarshal: json.Unmarshal,
	}

	h.endpointCache = gcache.New(config.CacheSize).ARC().
		Expiration(config.CacheExpiration).
		LoaderFunc(h.loadEndpoints).Build()

	h.Lifecycle = lifecycle.New("activity-delivery",
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	expirySvc.Register(queue.store, expiryTagName, queueStoreName)

	taskMgr.RegisterTask(taskID, config.ProcessingInterval, h.sweep)

	return h, nil
}

func (h *Engine) start() {
	go h.listen()
}

func (h *Engine) stop() {
	h.logger.Info("Stopped activity delivery engine")
}

// Enqueue resolves the destination inboxes for the given activity using the given
// route and stores one pending queue item per inbox. Deliveries to the same shared
// inbox are grouped into a single item. The number of queued deliveries is returned.
func (h *Engine) Enqueue(sender *url.URL, activity *vocab.ActivityType, route Route) (int, error) {
	if h.State() != spi.StateStarted {
		return 0, lifecycle.ErrNotStarted
	}

	inboxes, err := h.resolveInboxes(sender, activity, route)
	if err != nil {
		return 0, fmt.Errorf("resolve inboxes for activity [%s]: %w", activity.ID(), err)
	}

	if len(inboxes) == 0 {
		h.logger.Debug("No deliverable inboxes for activity", logfields.WithActivityID(activity.ID()))

		return 0, nil
	}

	// Blind recipients must not leave the server.
	activity.StripBlindRecipients()

	activityBytes, err := h.jsonMarshal(activity)
	if err != nil {
		return 0, fmt.Errorf("marshal activity [%s]: %w", activity.ID(), err)
	}

	now := time.Now()

	items := make([]*QueueItem, len(inboxes))

	for i, inbox := range inboxes {
		items[i] = &QueueItem{
			ID:             watermill.NewULID(),
			Activity:       activityBytes,
			TargetInbox:    inbox.String(),
			SenderIRI:      sender.String(),
			SenderUsername: path.Base(sender.Path),
			Status:         StatusPending,
			MaxAttempts:    h.MaxAttempts,
			CreatedAt:      now,
			NextAttemptAt:  now,
		}
	}

	if err := h.queue.putAll(items); err != nil {
		return 0, fmt.Errorf("enqueue deliveries for activity [%s]: %w", activity.ID(), err)
	}

	h.logger.Debug("Enqueued activity for delivery", logfields.WithActivityID(activity.ID()),
		logfields.WithTotal(len(items)))

	return len(items), nil
}

// sweep returns expired processing leases to the queue, claims pending items that are
// due for an attempt, and dispatches the claimed items to the sender pool. It runs on
// only one server instance in the cluster at any given time, so a queue item is never
// claimed twice.
func (h *Engine) sweep() {
	if h.State() != spi.StateStarted {
		return
	}

	now := time.Now()

	if _, err := h.queue.recoverExpiredLeases(now); err != nil {
		h.logger.Error("Error recovering expired delivery leases", log.WithError(err))
	}

	items, numPending, err := h.queue.claimDue(now, h.BatchSize, now.Add(h.LeaseTimeout))
	if err != nil {
		h.logger.Error("Error claiming due deliveries", log.WithError(err))

		return
	}

	h.metrics.DeliveryQueueDepth(float64(numPending))

	for _, item := range items {
		if err := h.publishDelivery(item); err != nil {
			// The item remains in processing status and is reclaimed after its lease expires.
			h.logger.Error("Error dispatching delivery", logfields.WithQueueItemID(item.ID),
				log.WithError(err))
		}
	}
}

func (h *Engine) publishDelivery(item *QueueItem) error {
	itemBytes, err := h.jsonMarshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item [%s]: %w", item.ID, err)
	}

	return h.pubSub.Publish(h.Topic, message.NewMessage(watermill.NewUUID(), itemBytes))
}

func (h *Engine) listen() {
	for msg := range h.msgChan {
		h.logger.Debug("Handling delivery message", logfields.WithMessageID(msg.UUID))

		h.handle(msg)
	}
}

func (h *Engine) handle(msg *message.Message) {
	// The queue tracks the outcome of each attempt, so the message is always acknowledged.
	// A redelivery by the message broker would compete with the queue's retry schedule.
	defer msg.Ack()

	item := &QueueItem{}

	if err := h.jsonUnmarshal(msg.Payload, item); err != nil {
		h.logger.Error("Error unmarshalling queue item", logfields.WithMessageID(msg.UUID),
			log.WithError(err))

		return
	}

	if err := h.deliver(item); err != nil {
		h.handleFailure(item, err)
	} else {
		h.handleSuccess(item)
	}
}

func (h *Engine) deliver(item *QueueItem) error {
	startTime := time.Now()

	defer func() {
		h.metrics.DeliverTime(time.Since(startTime))
	}()

	toInbox, err := url.Parse(item.TargetInbox)
	if err != nil {
		return fmt.Errorf("parse target inbox URL [%s]: %w", item.TargetInbox, err)
	}

	senderIRI, err := url.Parse(item.SenderIRI)
	if err != nil {
		return fmt.Errorf("parse sender IRI [%s]: %w", item.SenderIRI, err)
	}

	req := transport.NewRequest(toInbox,
		transport.WithHeader(transport.ContentTypeHeader, transport.ActivityStreamsContentType),
		transport.WithHeader(transport.AcceptHeader, transport.ActivityStreamsContentType),
		transport.WithSigningActor(senderIRI),
	)

	ctx, cancel := context.WithTimeout(context.Background(), h.RequestTimeout)
	defer cancel()

	resp, err := h.transport.Post(ctx, req, item.Activity)
	if err != nil {
		return fmt.Errorf("post activity to %s: %w", toInbox, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logfields.CloseResponseBodyError(h.logger, err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("server %s responded with status %d", toInbox.Host, resp.StatusCode)
	}

	return nil
}

func (h *Engine) handleSuccess(item *QueueItem) {
	item.Status = StatusDelivered
	item.LeaseExpiry = time.Time{}
	item.LastError = ""

	if err := h.queue.put(item); err != nil {
		// The item remains in processing status and is retried after its lease expires.
		h.logger.Warn("Error updating delivered queue item", logfields.WithQueueItemID(item.ID),
			log.WithError(err))

		return
	}

	h.logger.Debug("Delivered activity", logfields.WithQueueItemID(item.ID),
		logfields.WithInboxURLString(item.TargetInbox), logfields.WithAttempts(item.AttemptCount))
}

// handleFailure records a failed delivery attempt. The item either becomes pending
// again with the next attempt scheduled according to the retry schedule, or dead once
// all attempts are exhausted.
func (h *Engine) handleFailure(item *QueueItem, cause error) {
	item.Status = StatusFailed
	item.AttemptCount++
	item.LastError = cause.Error()
	item.LeaseExpiry = time.Time{}

	if item.AttemptCount >= item.MaxAttempts {
		item.Status = StatusDead

		h.metrics.DeliveryIncrementDeadCount()

		h.logger.Warn("Delivery attempts exhausted. Activity will not be delivered to this inbox.",
			logfields.WithQueueItemID(item.ID), logfields.WithInboxURLString(item.TargetInbox),
			logfields.WithAttempts(item.AttemptCount), log.WithError(cause))
	} else {
		delay := backoff(item.AttemptCount)

		item.Status = StatusPending
		item.NextAttemptAt = time.Now().Add(delay)

		h.metrics.DeliveryIncrementRetryCount()

		h.logger.Info("Delivery failed and will be retried",
			logfields.WithQueueItemID(item.ID), logfields.WithInboxURLString(item.TargetInbox),
			logfields.WithAttempts(item.AttemptCount), logfields.WithBackoff(delay),
			log.WithError(cause))
	}

	if err := h.queue.put(item); err != nil {
		h.logger.Warn("Error updating failed queue item", logfields.WithQueueItemID(item.ID),
			log.WithError(err))
	}
}

func (h *Engine) resolveInboxes(sender *url.URL, activity *vocab.ActivityType, route Route) ([]*url.URL, error) {
	startTime := time.Now()

	defer func() {
		h.metrics.OutboxResolveInboxesTime(time.Since(startTime))
	}()

	switch route.mode {
	case routeToActor:
		endpoints, err := h.endpointsFor(route.actor)
		if err != nil {
			h.logger.Warn("Error resolving inbox of actor. Delivery will be skipped.",
				logfields.WithActorIRI(route.actor), log.WithError(err))

			return nil, nil
		}

		return []*url.URL{endpoints.inbox}, nil

	case routeToFollowers:
		followers, err := h.followersOf(sender)
		if err != nil {
			return nil, err
		}

		return h.resolveActorInboxes(followers), nil

	default:
		recipients, err := h.expandRecipients(sender, activity)
		if err != nil {
			return nil, err
		}

		return h.resolveActorInboxes(recipients), nil
	}
}

// expandRecipients returns the recipients of the given activity, excluding the public
// IRI and the sender. A reference to the sender's followers collection is expanded to
// the sender's followers.
func (h *Engine) expandRecipients(sender *url.URL, activity *vocab.ActivityType) ([]*url.URL, error) {
	followersIRI := sender.String() + "/followers"

	var recipients []*url.URL

	for _, r := range activity.Recipients() {
		switch r.String() {
		case vocab.PublicIRI, sender.String():
		case followersIRI:
			followers, err := h.followersOf(sender)
			if err != nil {
				return nil, err
			}

			recipients = append(recipients, followers...)
		default:
			recipients = append(recipients, r)
		}
	}

	return recipients, nil
}

func (h *Engine) followersOf(actorIRI *url.URL) ([]*url.URL, error) {
	it, err := h.activityStore.QueryReferences(store.Follower, store.NewCriteria(store.WithObjectIRI(actorIRI)))
	if err != nil {
		return nil, fmt.Errorf("query followers of [%s]: %w", actorIRI, err)
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(h.logger, err)
		}
	}()

	followers, err := storeutil.ReadReferences(it, 0)
	if err != nil {
		return nil, fmt.Errorf("read followers of [%s]: %w", actorIRI, err)
	}

	return followers, nil
}

// resolveActorInboxes resolves the inbox of each of the given actors, preferring the
// shared inbox when the actor advertises one so that deliveries to the same server are
// grouped. Actors whose inbox cannot be resolved are logged and skipped.
func (h *Engine) resolveActorInboxes(actorIRIs []*url.URL) []*url.URL {
	var inboxes []*url.URL

	var mutex sync.Mutex

	var wg sync.WaitGroup

	resolveChan := make(chan *url.URL, len(actorIRIs))

	for _, actorIRI := range actorIRIs {
		resolveChan <- actorIRI
	}

	close(resolveChan)

	numResolvers := h.MaxConcurrentRequests
	if numResolvers > len(actorIRIs) {
		numResolvers = len(actorIRIs)
	}

	for i := 0; i < numResolvers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for actorIRI := range resolveChan {
				endpoints, err := h.endpointsFor(actorIRI)
				if err != nil {
					h.logger.Warn("Error resolving inbox of actor. Delivery to this actor will be skipped.",
						logfields.WithActorIRI(actorIRI), log.WithError(err))

					continue
				}

				inbox := endpoints.inbox
				if endpoints.sharedInbox != nil {
					inbox = endpoints.sharedInbox
				}

				mutex.Lock()
				inboxes = append(inboxes, inbox)
				mutex.Unlock()
			}
		}()
	}

	wg.Wait()

	return deduplicate(inboxes)
}

func (h *Engine) endpointsFor(actorIRI *url.URL) (*actorEndpoints, error) {
	result, err := h.endpointCache.Get(actorIRI.String())
	if err != nil {
		return nil, err
	}

	return result.(*actorEndpoints), nil
}

func (h *Engine) loadEndpoints(key interface{}) (interface{}, error) {
	actorIRI, err := url.Parse(key.(string))
	if err != nil {
		return nil, fmt.Errorf("parse actor IRI: %w", err)
	}

	actor, err := h.client.GetActor(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("get actor [%s]: %w", actorIRI, err)
	}

	if actor.Inbox() == nil {
		return nil, fmt.Errorf("actor [%s] has no inbox", actorIRI)
	}

	return &actorEndpoints{
		inbox:       actor.Inbox(),
		sharedInbox: actor.SharedInbox(),
	}, nil
}

// backoff returns the delay before the next attempt after the given number of failed
// attempts.
func backoff(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		return retrySchedule[0]
	}

	if failedAttempts > len(retrySchedule) {
		return retrySchedule[len(retrySchedule)-1]
	}

	return retrySchedule[failedAttempts-1]
}

func deduplicate(urls []*url.URL) []*url.URL {
	m := make(map[string]struct{})

	var result []*url.URL

	for _, u := range urls {
		if _, ok := m[u.String()]; ok {
			continue
		}

		m[u.String()] = struct{}{}

		result = append(result, u)
	}

	return result
}

func populateConfigDefaults(conf *Config) Config {
	config := *conf

	if config.Topic == "" {
		config.Topic = defaultTopic
	}

	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}

	if config.ProcessingInterval == 0 {
		config.ProcessingInterval = defaultProcessingInterval
	}

	if config.Concurrency == 0 {
		config.Concurrency = defaultConcurrency
	}

	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaultMaxAttempts
	}

	if config.LeaseTimeout == 0 {
		config.LeaseTimeout = defaultLeaseTimeout
	}

	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaultRequestTimeout
	}

	if config.Retention == 0 {
		config.Retention = defaultRetention
	}

	if config.MaxConcurrentRequests == 0 {
		config.MaxConcurrentRequests = defaultConcurrentHTTPRequests
	}

	if config.CacheSize == 0 {
		config.CacheSize = defaultCacheSize
	}

	if config.CacheExpiration == 0 {
		config.CacheExpiration = defaultCacheExpiration
	}

	return config
}
