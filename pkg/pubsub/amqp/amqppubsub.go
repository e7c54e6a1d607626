/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	samqp "github.com/rabbitmq/amqp091-go"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	"github.com/broca-activitypub/broca/pkg/pubsub/spi"
	"github.com/broca-activitypub/broca/pkg/pubsub/wmlogger"
)

const loggerModule = "pubsub"

var logger = log.New(loggerModule)

const (
	defaultMaxConnectRetries          = 25
	defaultMaxConnectInterval         = 5 * time.Second
	defaultMaxConnectElapsedTime      = 3 * time.Minute
	defaultMaxConnectionSubscriptions = 1000
	defaultPublisherChannelPoolSize   = 25
	defaultMaxRedeliveryAttempts      = 10
	defaultRedeliveryMultiplier       = 1.5
	defaultRedeliveryInitialInterval  = 2 * time.Second
	defaultMaxRedeliveryInterval      = 30 * time.Second

	exchange           = "broca"
	redeliveryExchange = "broca.redelivery"
	redeliveryQueue    = "broca.redelivery"
	waitExchange       = "broca.wait"
	waitQueue          = "broca.wait"

	metadataRedeliveryCount  = "broca-redelivery-count"
	metadataQueue            = "broca-queue"
	metadataExpiration       = "expiration"
	metadataDeath            = "x-death"
	metadataFirstDeathQueue  = "x-first-death-queue"
	metadataFirstDeathReason = "x-first-death-reason"

	expiredReason = "expired"
)

// Config holds the configuration parameters for the AMQP publisher/subscriber.
type Config struct {
	URI                        string
	MaxConnectRetries          uint64
	MaxConnectionSubscriptions int
	PublisherChannelPoolSize   int
	PublisherConfirmDelivery   bool
	MaxRedeliveryAttempts      int
	RedeliveryMultiplier       float64
	RedeliveryInitialInterval  time.Duration
	MaxRedeliveryInterval      time.Duration
}

type closeable interface {
	Close() error
}

type subscriber interface {
	closeable
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

type initializingSubscriber interface {
	subscriber
	SubscribeInitialize(topic string) error
}

type publisher interface {
	closeable
	Publish(topic string, messages ...*message.Message) error
}

type connection interface {
	closeable
	IsConnected() bool
	wrapped() *amqp.ConnectionWrapper
}

type connMgr interface {
	getConnection(shared bool) (connection, error)
	isConnected() bool
	close() error
}

type (
	connectionFactory = func() (connection, error)
	subscriberFactory = func() (initializingSubscriber, error)
	publisherFactory  = func() (publisher, error)
)

// PubSub implements a publisher/subscriber backed by an AMQP message broker. Messages are
// published to queues bound to a common exchange. A message that is rejected by a subscriber
// is dead-lettered to the redelivery queue, from which it is redelivered to the original
// queue after an increasing backoff. Messages awaiting redelivery sit in the wait queue
// (which has no subscribers) with a per-message expiration, and are routed back to the
// redelivery queue by the broker when they expire.
type PubSub struct {
	*lifecycle.Lifecycle
	Config

	amqpConfig           amqp.Config
	amqpRedeliveryConfig amqp.Config
	amqpWaitConfig       amqp.Config

	connMgr                    connMgr
	createSubscriber           subscriberFactory
	createRedeliverySubscriber subscriberFactory
	createWaitSubscriber       subscriberFactory
	createPublisher            publisherFactory
	createWaitPublisher        publisherFactory
	publisher                  publisher
	waitPublisher              publisher
	redeliverySubscriber       subscriber
	waitSubscriber             initializingSubscriber
	subscribers                []closeable
	pools                      []*pooledSubscriber
	mutex                      sync.Mutex
}

// New returns a new AMQP publisher/subscriber. This function panics if a connection to the
// message broker cannot be established within the configured maximum number of retries.
func New(cfg Config) *PubSub {
	p := &PubSub{
		Config: resolveConfig(cfg),
	}

	p.amqpConfig = newQueueConfig(p.Config)
	p.amqpRedeliveryConfig = newRedeliveryQueueConfig(p.Config)
	p.amqpWaitConfig = newWaitQueueConfig(p.Config)

	p.Lifecycle = lifecycle.New("amqp-pubsub",
		lifecycle.WithStart(p.start),
		lifecycle.WithStop(p.stop),
	)

	p.connMgr = newConnectionMgr(p.MaxConnectionSubscriptions,
		func() (connection, error) {
			return newConnection(p.URI)
		},
	)

	p.createSubscriber = func() (initializingSubscriber, error) {
		return newSubscriberWithConnection(p.amqpConfig, p.connMgr)
	}

	p.createRedeliverySubscriber = func() (initializingSubscriber, error) {
		return newSubscriberWithConnection(p.amqpRedeliveryConfig, p.connMgr)
	}

	p.createWaitSubscriber = func() (initializingSubscriber, error) {
		return newSubscriberWithConnection(p.amqpWaitConfig, p.connMgr)
	}

	p.createPublisher = func() (publisher, error) {
		return newPublisherPool(p.connMgr, p.MaxConnectionSubscriptions, &p.amqpConfig, newPublisherWithConnection)
	}

	p.createWaitPublisher = func() (publisher, error) {
		return newPublisherPool(p.connMgr, p.MaxConnectionSubscriptions, &p.amqpWaitConfig, newPublisherWithConnection)
	}

	p.Start()

	return p
}

// Subscribe subscribes to the given topic and returns the channel to which messages are posted.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.SubscribeWithOpts(ctx, topic)
}

// SubscribeWithOpts subscribes to the given topic and returns the channel to which messages
// are posted. If the pool option is specified then multiple subscriptions are created on the
// same queue and messages are distributed among them.
func (p *PubSub) SubscribeWithOpts(ctx context.Context, topic string, opts ...spi.Option) (<-chan *message.Message, error) {
	if p.State() != lifecycle.StateStarted {
		return nil, lifecycle.ErrNotStarted
	}

	options := &spi.Options{}

	for _, opt := range opts {
		opt(options)
	}

	if options.PoolSize == 0 {
		s, err := p.newSubscriber()
		if err != nil {
			return nil, err
		}

		return s.Subscribe(ctx, topic)
	}

	ps, err := newPooledSubscriber(ctx, options.PoolSize, p, topic)
	if err != nil {
		return nil, fmt.Errorf("create pooled subscriber: %w", err)
	}

	ps.start()

	p.mutex.Lock()
	p.pools = append(p.pools, ps)
	p.mutex.Unlock()

	return ps.msgChan, nil
}

// Publish publishes the given messages to the given topic. An error is returned if the
// messages could not be delivered to the broker, in which case the operation may be retried.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	if p.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	if err := p.publisher.Publish(topic, messages...); err != nil {
		return brocaerrors.NewTransient(err)
	}

	return nil
}

// PublishWithOpts publishes the given message to the given topic. If the delivery delay
// option is specified then the message is posted to the wait queue with an expiration, and
// is delivered to the target queue after the delay has elapsed.
func (p *PubSub) PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error {
	if p.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	options := &spi.Options{}

	for _, opt := range opts {
		opt(options)
	}

	if options.DeliveryDelay == 0 {
		if err := p.publisher.Publish(topic, msg); err != nil {
			return brocaerrors.NewTransient(err)
		}

		return nil
	}

	err := p.waitPublisher.Publish(waitQueue,
		newMessage(msg, withQueue(topic), withExpiration(options.DeliveryDelay)))
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("publish message to wait queue: %w", err))
	}

	logger.Debug("Posted message to wait queue", logfields.WithMessageID(msg.UUID),
		logfields.WithTopic(topic), logfields.WithDeliveryDelay(options.DeliveryDelay))

	return nil
}

// IsConnected returns true if the connections to the message broker are established.
func (p *PubSub) IsConnected() bool {
	return p.State() == lifecycle.StateStarted && p.connMgr.isConnected()
}

// Close closes all publishers, subscribers, and connections.
func (p *PubSub) Close() error {
	p.Stop()

	return nil
}

func (p *PubSub) start() {
	logger.Info("Connecting to message broker", logfields.WithAddress(extractEndpoint(p.URI)))

	err := backoff.RetryNotify(
		p.connect,
		backoff.WithMaxRetries(newConnectBackOff(), p.MaxConnectRetries),
		func(err error, duration time.Duration) {
			logger.Info("Error connecting to message broker. Retrying...",
				logfields.WithAddress(extractEndpoint(p.URI)), logfields.WithBackoff(duration),
				log.WithError(err))
		},
	)
	if err != nil {
		panic(fmt.Errorf("unable to connect to message broker after %d attempts: %w",
			p.MaxConnectRetries, err))
	}

	logger.Info("Successfully connected to message broker", logfields.WithAddress(extractEndpoint(p.URI)))

	redeliveryChan, err := p.redeliverySubscriber.Subscribe(context.Background(), redeliveryQueue)
	if err != nil {
		panic(fmt.Errorf("subscribe to queue [%s]: %w", redeliveryQueue, err))
	}

	// Initialize the wait queue so that expired messages are routed to the redelivery
	// queue. No consumer ever subscribes to the wait queue.
	if err := p.waitSubscriber.SubscribeInitialize(waitQueue); err != nil {
		panic(fmt.Errorf("initialize queue [%s]: %w", waitQueue, err))
	}

	go p.processRedeliveryQueue(redeliveryChan)
}

func (p *PubSub) connect() error {
	pub, err := p.createPublisher()
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	waitPub, err := p.createWaitPublisher()
	if err != nil {
		return fmt.Errorf("create wait queue publisher: %w", err)
	}

	redeliverySubscriber, err := p.createRedeliverySubscriber()
	if err != nil {
		return fmt.Errorf("create redelivery queue subscriber: %w", err)
	}

	waitSubscriber, err := p.createWaitSubscriber()
	if err != nil {
		return fmt.Errorf("create wait queue subscriber: %w", err)
	}

	p.publisher = pub
	p.waitPublisher = waitPub
	p.redeliverySubscriber = redeliverySubscriber
	p.waitSubscriber = waitSubscriber

	return nil
}

func (p *PubSub) stop() {
	logger.Info("Closing message broker publishers and subscribers...")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, ps := range p.pools {
		ps.stop()
	}

	closeQuietly(p.publisher)
	closeQuietly(p.waitPublisher)

	for _, s := range p.subscribers {
		closeQuietly(s)
	}

	closeQuietly(p.redeliverySubscriber)
	closeQuietly(p.waitSubscriber)

	if p.connMgr != nil {
		if err := p.connMgr.close(); err != nil {
			logger.Warn("Error closing connections", log.WithError(err))
		}
	}

	logger.Info("... closed message broker publishers and subscribers.")
}

func (p *PubSub) newSubscriber() (initializingSubscriber, error) {
	s, err := p.createSubscriber()
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	p.mutex.Lock()
	p.subscribers = append(p.subscribers, s)
	p.mutex.Unlock()

	return s, nil
}

func (p *PubSub) processRedeliveryQueue(msgChan <-chan *message.Message) {
	for msg := range msgChan {
		p.handleRedelivery(msg)
	}

	logger.Debug("Redelivery queue listener has stopped")
}

func (p *PubSub) handleRedelivery(msg *message.Message) {
	redelivered, err := p.redeliver(msg)

	switch {
	case err != nil:
		logger.Error("Error redelivering message", logfields.WithMessageID(msg.UUID), log.WithError(err))

		msg.Nack()
	case !redelivered:
		logger.Warn("Message could not be delivered after the maximum number of redelivery attempts and will be dropped",
			logfields.WithMessageID(msg.UUID), logfields.WithMaxRetries(p.MaxRedeliveryAttempts))

		msg.Ack()
	default:
		msg.Ack()
	}
}

// redeliver redelivers the given dead-lettered message. If this is the first time that
// delivery of the message has failed, or if the message has expired in the wait queue,
// then the message is published immediately to the original queue. Otherwise the message is
// posted to the wait queue with an expiration that grows with each failed delivery attempt.
func (p *PubSub) redeliver(msg *message.Message) (bool, error) {
	queue, err := getQueue(msg)
	if err != nil {
		return false, fmt.Errorf("get queue for message [%s]: %w", msg.UUID, err)
	}

	attempts, err := getRedeliveryAttempts(msg)
	if err != nil {
		return false, fmt.Errorf("get redelivery attempts for message [%s]: %w", msg.UUID, err)
	}

	if msg.Metadata[metadataFirstDeathReason] == expiredReason {
		logger.Debug("Message has expired in the wait queue. Redelivering to the original queue.",
			logfields.WithMessageID(msg.UUID), logfields.WithTopic(queue), logfields.WithTotal(attempts+1))

		if err := p.publisher.Publish(queue, newMessage(msg, withRedeliveryAttempts(attempts+1))); err != nil {
			return false, fmt.Errorf("publish message [%s] to queue [%s]: %w", msg.UUID, queue, err)
		}

		return true, nil
	}

	if attempts == 0 {
		logger.Debug("Message was rejected for the first time. Redelivering immediately.",
			logfields.WithMessageID(msg.UUID), logfields.WithTopic(queue))

		if err := p.publisher.Publish(queue, newMessage(msg, withRedeliveryAttempts(1))); err != nil {
			return false, fmt.Errorf("publish message [%s] to queue [%s]: %w", msg.UUID, queue, err)
		}

		return true, nil
	}

	if attempts >= p.MaxRedeliveryAttempts {
		return false, nil
	}

	interval := p.getRedeliveryInterval(attempts)

	logger.Debug("Message was rejected. Posting to the wait queue for redelivery after a backoff.",
		logfields.WithMessageID(msg.UUID), logfields.WithTopic(queue), logfields.WithTotal(attempts),
		logfields.WithDeliveryDelay(interval))

	err = p.waitPublisher.Publish(waitQueue, newMessage(msg, withQueue(queue), withExpiration(interval)))
	if err != nil {
		return false, fmt.Errorf("publish message [%s] to queue [%s]: %w", msg.UUID, waitQueue, err)
	}

	return true, nil
}

func (p *PubSub) getRedeliveryInterval(attempts int) time.Duration {
	interval := p.RedeliveryInitialInterval

	for i := 1; i < attempts; i++ {
		interval = time.Duration(float64(interval) * p.RedeliveryMultiplier)
	}

	if interval > p.MaxRedeliveryInterval {
		interval = p.MaxRedeliveryInterval
	}

	return interval
}

type amqpConnection struct {
	*amqp.ConnectionWrapper
}

func (c *amqpConnection) wrapped() *amqp.ConnectionWrapper {
	return c.ConnectionWrapper
}

func newConnection(uri string) (connection, error) {
	conn, err := amqp.NewConnection(
		amqp.ConnectionConfig{
			AmqpURI: uri,
		},
		wmlogger.New(),
	)
	if err != nil {
		return nil, fmt.Errorf("create AMQP connection: %w", err)
	}

	return &amqpConnection{ConnectionWrapper: conn}, nil
}

func newSubscriberWithConnection(cfg amqp.Config, connMgr connMgr) (initializingSubscriber, error) {
	conn, err := connMgr.getConnection(true)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	s, err := amqp.NewSubscriberWithConnection(cfg, wmlogger.New(), conn.wrapped())
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	return s, nil
}

func newPublisherWithConnection(cfg *amqp.Config, conn connection) (publisher, error) {
	pub, err := amqp.NewPublisherWithConnection(*cfg, wmlogger.New(), conn.wrapped())
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	return pub, nil
}

// connectionManager creates and tracks connections to the AMQP broker. A shared connection
// is reused until the maximum number of channels per connection is reached, after which a
// new connection is created. Subscribers use shared connections (one channel per
// subscription) while each publisher gets a dedicated connection for its channel pool.
type connectionManager struct {
	createConnection connectionFactory
	maxChannels      int
	mutex            sync.Mutex
	connections      []connection
	shared           connection
	sharedChannels   int
}

func newConnectionMgr(maxChannelsPerConnection int, factory connectionFactory) *connectionManager {
	return &connectionManager{
		maxChannels:      maxChannelsPerConnection,
		createConnection: factory,
	}
}

func (m *connectionManager) getConnection(shared bool) (connection, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !shared {
		conn, err := m.createConnection()
		if err != nil {
			return nil, err
		}

		m.connections = append(m.connections, conn)

		return conn, nil
	}

	if m.shared == nil || m.sharedChannels >= m.maxChannels {
		logger.Debug("Creating new shared AMQP connection", logfields.WithTotal(len(m.connections)+1))

		conn, err := m.createConnection()
		if err != nil {
			return nil, err
		}

		m.connections = append(m.connections, conn)
		m.shared = conn
		m.sharedChannels = 0
	}

	m.sharedChannels++

	return m.shared, nil
}

func (m *connectionManager) isConnected() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, conn := range m.connections {
		if !conn.IsConnected() {
			return false
		}
	}

	return true
}

func (m *connectionManager) close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var lastErr error

	for _, conn := range m.connections {
		if err := conn.Close(); err != nil {
			lastErr = err
		}
	}

	m.connections = nil
	m.shared = nil
	m.sharedChannels = 0

	return lastErr
}

type messageOpt func(msg *message.Message)

func withQueue(queue string) messageOpt {
	return func(msg *message.Message) {
		msg.Metadata[metadataQueue] = queue
	}
}

func withExpiration(expiry time.Duration) messageOpt {
	return func(msg *message.Message) {
		msg.Metadata[metadataExpiration] = expiry.String()
	}
}

func withRedeliveryAttempts(attempts int) messageOpt {
	return func(msg *message.Message) {
		msg.Metadata[metadataRedeliveryCount] = strconv.Itoa(attempts)
	}
}

// newMessage returns a copy of the given message with the given options applied. The death
// history of the message is removed, otherwise the broker would not record a new death when
// the message expires in the wait queue.
func newMessage(msg *message.Message, opts ...messageOpt) *message.Message {
	newMsg := msg.Copy()

	delete(newMsg.Metadata, metadataDeath)
	delete(newMsg.Metadata, metadataFirstDeathQueue)
	delete(newMsg.Metadata, metadataFirstDeathReason)
	delete(newMsg.Metadata, metadataExpiration)

	for _, opt := range opts {
		opt(newMsg)
	}

	return newMsg
}

func getQueue(msg *message.Message) (string, error) {
	queue, ok := msg.Metadata[metadataQueue]
	if ok {
		return queue, nil
	}

	queue, ok = msg.Metadata[metadataFirstDeathQueue]
	if !ok {
		return "", fmt.Errorf("metadata not found: %s", metadataFirstDeathQueue)
	}

	return queue, nil
}

func getRedeliveryAttempts(msg *message.Message) (int, error) {
	value, ok := msg.Metadata[metadataRedeliveryCount]
	if !ok {
		return 0, nil
	}

	attempts, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for metadata [%s]: %w", metadataRedeliveryCount, err)
	}

	return attempts, nil
}

func resolveConfig(cfg Config) Config {
	if cfg.MaxConnectRetries == 0 {
		cfg.MaxConnectRetries = defaultMaxConnectRetries
	}

	if cfg.MaxConnectionSubscriptions == 0 {
		cfg.MaxConnectionSubscriptions = defaultMaxConnectionSubscriptions
	}

	if cfg.PublisherChannelPoolSize == 0 {
		cfg.PublisherChannelPoolSize = defaultPublisherChannelPoolSize
	}

	if cfg.MaxRedeliveryAttempts == 0 {
		cfg.MaxRedeliveryAttempts = defaultMaxRedeliveryAttempts
	}

	if cfg.RedeliveryMultiplier == 0 {
		cfg.RedeliveryMultiplier = defaultRedeliveryMultiplier
	}

	if cfg.RedeliveryInitialInterval == 0 {
		cfg.RedeliveryInitialInterval = defaultRedeliveryInitialInterval
	}

	if cfg.MaxRedeliveryInterval == 0 {
		cfg.MaxRedeliveryInterval = defaultMaxRedeliveryInterval
	}

	return cfg
}

func newDefaultQueueConfig(cfg Config) amqp.Config {
	return amqp.Config{
		Connection: amqp.ConnectionConfig{
			AmqpURI: cfg.URI,
		},
		Marshaler: DefaultMarshaler{},
		Exchange:  newExchangeConfig(exchange, "topic"),
		Queue:     newAMQPQueueConfig(nil),
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(topic string) string { return topic },
			ChannelPoolSize:    cfg.PublisherChannelPoolSize,
			ConfirmDelivery:    cfg.PublisherConfirmDelivery,
		},
		Consume: amqp.ConsumeConfig{
			NoRequeueOnNack: true,
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

func newQueueConfig(cfg Config) amqp.Config {
	c := newDefaultQueueConfig(cfg)

	// Rejected messages are sent to the redelivery exchange.
	c.Queue = newAMQPQueueConfig(samqp.Table{
		"x-dead-letter-exchange": redeliveryExchange,
	})

	return c
}

func newRedeliveryQueueConfig(cfg Config) amqp.Config {
	c := newDefaultQueueConfig(cfg)

	c.Exchange = newExchangeConfig(redeliveryExchange, "fanout")
	c.Publish.ChannelPoolSize = 0
	c.Publish.ConfirmDelivery = false

	return c
}

func newWaitQueueConfig(cfg Config) amqp.Config {
	c := newDefaultQueueConfig(cfg)

	// Messages that expire in the wait queue are sent to the redelivery exchange.
	c.Exchange = newExchangeConfig(waitExchange, "fanout")
	c.Queue = newAMQPQueueConfig(samqp.Table{
		"x-dead-letter-exchange": redeliveryExchange,
	})
	c.Publish.ChannelPoolSize = 0
	c.Publish.ConfirmDelivery = false

	return c
}

func newExchangeConfig(name, exchangeType string) amqp.ExchangeConfig {
	return amqp.ExchangeConfig{
		GenerateName: func(string) string { return name },
		Type:         exchangeType,
		Durable:      true,
	}
}

func newAMQPQueueConfig(args samqp.Table) amqp.QueueConfig {
	return amqp.QueueConfig{
		GenerateName: amqp.GenerateQueueNameTopicName,
		Durable:      true,
		Arguments:    args,
	}
}

func newConnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = defaultMaxConnectInterval
	b.MaxElapsedTime = defaultMaxConnectElapsedTime

	return b
}

func closeQuietly(c closeable) {
	if c == nil {
		return
	}

	if err := c.Close(); err != nil {
		logger.Warn("Error closing resource", log.WithError(err))
	}
}

func extractEndpoint(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}

	return u.Host + u.Path
}
