/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/httpserver"
	. "github.com/broca-activitypub/broca/pkg/observability/metrics"
)

var logger = log.New("prometheus-metrics-provider")

var (
	createOnce sync.Once //nolint:gochecknoglobals
	instance   Metrics   //nolint:gochecknoglobals
)

// PromProvider implements a Prometheus metrics provider with an optional
// HTTP server that exposes the metrics endpoint.
type PromProvider struct {
	httpServer *httpserver.Server
}

// NewPrometheusProvider creates a new instance of a Prometheus metrics provider.
func NewPrometheusProvider(httpServer *httpserver.Server) Provider {
	return &PromProvider{httpServer: httpServer}
}

// Create starts the metrics HTTP server (if one was provided).
func (pp *PromProvider) Create() error {
	if pp.httpServer == nil {
		return nil
	}

	if err := pp.httpServer.Start(); err != nil {
		return fmt.Errorf("start metrics HTTP server: %w", err)
	}

	return nil
}

// Metrics returns the metrics instance.
func (pp *PromProvider) Metrics() Metrics {
	return GetMetrics()
}

// Destroy stops the metrics HTTP server (if one was provided).
func (pp *PromProvider) Destroy() error {
	if pp.httpServer == nil {
		return nil
	}

	return pp.httpServer.Stop(context.Background())
}

// GetMetrics returns the singleton metrics instance. The instance is created
// (and its metrics registered with the default Prometheus registry) on first use.
func GetMetrics() Metrics {
	createOnce.Do(func() {
		instance = NewMetrics()
	})

	return instance
}

// PromMetrics manages the metrics for Broca.
type PromMetrics struct {
	apOutboxPostTime           prometheus.Histogram
	apOutboxResolveInboxesTime prometheus.Histogram
	apInboxHandlerTimes        map[string]prometheus.Histogram
	apOutboxActivityCounts     map[string]prometheus.Counter

	deliveryDeliverTime prometheus.Histogram
	deliveryRetryCount  prometheus.Counter
	deliveryDeadCount   prometheus.Counter
	deliveryQueueDepth  prometheus.Gauge

	dbPutTimes     map[string]prometheus.Histogram
	dbGetTimes     map[string]prometheus.Histogram
	dbGetTagsTimes map[string]prometheus.Histogram
	dbGetBulkTimes map[string]prometheus.Histogram
	dbQueryTimes   map[string]prometheus.Histogram
	dbDeleteTimes  map[string]prometheus.Histogram
	dbBatchTimes   map[string]prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with the default Prometheus registry.
func NewMetrics() Metrics {
	activityTypes := []string{
		"Create", "Update", "Delete", "Follow", "Undo",
		"Accept", "Like", "Announce", "Add", "Remove",
	}
	dbTypes := []string{"MongoDB", "Mem"}

	pm := &PromMetrics{
		apOutboxPostTime:           newOutboxPostTime(),
		apOutboxResolveInboxesTime: newOutboxResolveInboxesTime(),
		apInboxHandlerTimes:        newInboxHandlerTimes(activityTypes),
		apOutboxActivityCounts:     newOutboxActivityCounts(activityTypes),
		deliveryDeliverTime:        newDeliveryDeliverTime(),
		deliveryRetryCount:         newDeliveryRetryCount(),
		deliveryDeadCount:          newDeliveryDeadCount(),
		deliveryQueueDepth:         newDeliveryQueueDepth(),
		dbPutTimes:                 newDBPutTime(dbTypes),
		dbGetTimes:                 newDBGetTime(dbTypes),
		dbGetTagsTimes:             newDBGetTagsTime(dbTypes),
		dbGetBulkTimes:             newDBGetBulkTime(dbTypes),
		dbQueryTimes:               newDBQueryTime(dbTypes),
		dbDeleteTimes:              newDBDeleteTime(dbTypes),
		dbBatchTimes:               newDBBatchTime(dbTypes),
	}

	registerMetrics(pm)

	return pm
}

func registerMetrics(pm *PromMetrics) {
	prometheus.MustRegister(
		pm.apOutboxPostTime, pm.apOutboxResolveInboxesTime,
		pm.deliveryDeliverTime, pm.deliveryRetryCount,
		pm.deliveryDeadCount, pm.deliveryQueueDepth,
	)

	for _, c := range pm.apInboxHandlerTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.apOutboxActivityCounts {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbPutTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbGetTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbGetTagsTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbGetBulkTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbQueryTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbDeleteTimes {
		prometheus.MustRegister(c)
	}

	for _, c := range pm.dbBatchTimes {
		prometheus.MustRegister(c)
	}
}

// OutboxPostTime records the time it takes to post a message to the outbox.
func (pm *PromMetrics) OutboxPostTime(value time.Duration) {
	pm.apOutboxPostTime.Observe(value.Seconds())

	logger.Debug("OutboxPost time", logfields.WithDuration(value))
}

// OutboxResolveInboxesTime records the time it takes to resolve inboxes for an outbox post.
func (pm *PromMetrics) OutboxResolveInboxesTime(value time.Duration) {
	pm.apOutboxResolveInboxesTime.Observe(value.Seconds())

	logger.Debug("OutboxResolveInboxes time", logfields.WithDuration(value))
}

// InboxHandlerTime records the time it takes to handle an activity posted to the inbox.
func (pm *PromMetrics) InboxHandlerTime(activityType string, value time.Duration) {
	if c, ok := pm.apInboxHandlerTimes[activityType]; ok {
		c.Observe(value.Seconds())
	}

	logger.Debug("InboxHandler time", logfields.WithActivityType(activityType),
		logfields.WithDuration(value))
}

// OutboxIncrementActivityCount increments the number of activities of the given type posted to the outbox.
func (pm *PromMetrics) OutboxIncrementActivityCount(activityType string) {
	if c, ok := pm.apOutboxActivityCounts[activityType]; ok {
		c.Inc()
	}
}

// DeliverTime records the time it takes to deliver an activity to a remote inbox.
func (pm *PromMetrics) DeliverTime(value time.Duration) {
	pm.deliveryDeliverTime.Observe(value.Seconds())

	logger.Debug("Deliver time", logfields.WithDuration(value))
}

// DeliveryIncrementRetryCount increments the number of deliveries scheduled for retry.
func (pm *PromMetrics) DeliveryIncrementRetryCount() {
	pm.deliveryRetryCount.Inc()
}

// DeliveryIncrementDeadCount increments the number of deliveries that exhausted their attempts.
func (pm *PromMetrics) DeliveryIncrementDeadCount() {
	pm.deliveryDeadCount.Inc()
}

// DeliveryQueueDepth records the number of queued deliveries that are due for processing.
func (pm *PromMetrics) DeliveryQueueDepth(value float64) {
	pm.deliveryQueueDepth.Set(value)
}

// DBPutTime records the time it takes to store data in db.
func (pm *PromMetrics) DBPutTime(dbType string, value time.Duration) {
	if c, ok := pm.dbPutTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBGetTime records the time it takes to get data in db.
func (pm *PromMetrics) DBGetTime(dbType string, value time.Duration) {
	if c, ok := pm.dbGetTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBGetTagsTime records the time it takes to get tags in db.
func (pm *PromMetrics) DBGetTagsTime(dbType string, value time.Duration) {
	if c, ok := pm.dbGetTagsTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBGetBulkTime records the time it takes to get bulk in db.
func (pm *PromMetrics) DBGetBulkTime(dbType string, value time.Duration) {
	if c, ok := pm.dbGetBulkTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBQueryTime records the time it takes to query in db.
func (pm *PromMetrics) DBQueryTime(dbType string, value time.Duration) {
	if c, ok := pm.dbQueryTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBDeleteTime records the time it takes to delete in db.
func (pm *PromMetrics) DBDeleteTime(dbType string, value time.Duration) {
	if c, ok := pm.dbDeleteTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

// DBBatchTime records the time it takes to batch in db.
func (pm *PromMetrics) DBBatchTime(dbType string, value time.Duration) {
	if c, ok := pm.dbBatchTimes[dbType]; ok {
		c.Observe(value.Seconds())
	}
}

func newCounter(subsystem, name, help string, labels prometheus.Labels) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newGauge(subsystem, name, help string, labels prometheus.Labels) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newHistogram(subsystem, name, help string, labels prometheus.Labels) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newOutboxPostTime() prometheus.Histogram {
	return newHistogram(
		ActivityPub, ApPostTimeMetric,
		"The time (in seconds) that it takes to post a message to the outbox.",
		nil,
	)
}

func newOutboxResolveInboxesTime() prometheus.Histogram {
	return newHistogram(
		ActivityPub, ApResolveInboxesTimeMetric,
		"The time (in seconds) that it takes to resolve the inboxes of the destinations when posting to the outbox.",
		nil,
	)
}

func newInboxHandlerTimes(activityTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, activityType := range activityTypes {
		counters[activityType] = newHistogram(
			ActivityPub, ApInboxHandlerTimeMetric,
			"The time (in seconds) that it takes to handle an activity posted to the inbox.",
			prometheus.Labels{"type": activityType},
		)
	}

	return counters
}

func newOutboxActivityCounts(activityTypes []string) map[string]prometheus.Counter {
	counters := make(map[string]prometheus.Counter)

	for _, activityType := range activityTypes {
		counters[activityType] = newCounter(
			ActivityPub, ApOutboxActivityCounterMetric,
			"The number of activities posted to the outbox.",
			prometheus.Labels{"type": activityType},
		)
	}

	return counters
}

func newDeliveryDeliverTime() prometheus.Histogram {
	return newHistogram(
		Delivery, DeliveryDeliverTimeMetric,
		"The time (in seconds) that it takes to deliver an activity to a remote inbox.",
		nil,
	)
}

func newDeliveryRetryCount() prometheus.Counter {
	return newCounter(
		Delivery, DeliveryRetryCounterMetric,
		"The number of deliveries that were scheduled for retry.",
		nil,
	)
}

func newDeliveryDeadCount() prometheus.Counter {
	return newCounter(
		Delivery, DeliveryDeadCounterMetric,
		"The number of deliveries that exhausted their attempts and were marked dead.",
		nil,
	)
}

func newDeliveryQueueDepth() prometheus.Gauge {
	return newGauge(
		Delivery, DeliveryQueueDepthMetric,
		"The number of queued deliveries that are due for processing.",
		nil,
	)
}

func newDBPutTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBPutTimeMetric,
			"The time (in seconds) it takes the DB to store data.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBGetTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBGetTimeMetric,
			"The time (in seconds) it takes the DB to get data.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBGetTagsTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBGetTagsTimeMetric,
			"The time (in seconds) it takes the DB to get tags.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBGetBulkTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBGetBulkTimeMetric,
			"The time (in seconds) it takes the DB to get bulk.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBQueryTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBQueryTimeMetric,
			"The time (in seconds) it takes the DB to query.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBDeleteTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBDeleteTimeMetric,
			"The time (in seconds) it takes the DB to delete.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}

func newDBBatchTime(dbTypes []string) map[string]prometheus.Histogram {
	counters := make(map[string]prometheus.Histogram)

	for _, dbType := range dbTypes {
		counters[dbType] = newHistogram(
			DB, DBBatchTimeMetric,
			"The time (in seconds) it takes the DB to batch.",
			prometheus.Labels{"type": dbType},
		)
	}

	return counters
}
