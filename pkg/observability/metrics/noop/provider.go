/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noop

import (
	"time"

	"github.com/broca-activitypub/broca/pkg/observability/metrics"
)

// Provider implements a no-op metrics provider.
type Provider struct{}

// NewProvider creates a new instance of a no-op metrics provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Create does nothing.
func (pp *Provider) Create() error {
	return nil
}

// Destroy does nothing.
func (pp *Provider) Destroy() error {
	return nil
}

// Metrics returns supported metrics.
func (pp *Provider) Metrics() metrics.Metrics {
	return &NoOpMetrics{}
}

// NoOpMetrics provides a default no-op implementation of the Metrics interface.
type NoOpMetrics struct{}

// InboxHandlerTime records the time it takes to handle an activity posted to the inbox.
func (nm NoOpMetrics) InboxHandlerTime(activityType string, value time.Duration) {}

// OutboxPostTime records the time it takes to post a message to the outbox.
func (nm NoOpMetrics) OutboxPostTime(value time.Duration) {}

// OutboxResolveInboxesTime records the time it takes to resolve inboxes for an outbox post.
func (nm NoOpMetrics) OutboxResolveInboxesTime(value time.Duration) {}

// OutboxIncrementActivityCount increments the number of activities of the given type posted to the outbox.
func (nm NoOpMetrics) OutboxIncrementActivityCount(activityType string) {}

// DeliverTime records the time it takes to deliver an activity to a remote inbox.
func (nm NoOpMetrics) DeliverTime(value time.Duration) {}

// DeliveryIncrementRetryCount increments the number of deliveries scheduled for retry.
func (nm NoOpMetrics) DeliveryIncrementRetryCount() {}

// DeliveryIncrementDeadCount increments the number of deliveries that exhausted their attempts.
func (nm NoOpMetrics) DeliveryIncrementDeadCount() {}

// DeliveryQueueDepth records the number of queued deliveries that are due for processing.
func (nm NoOpMetrics) DeliveryQueueDepth(value float64) {}

// DBPutTime records the time it takes to store data in db.
func (nm NoOpMetrics) DBPutTime(dbType string, duration time.Duration) {}

// DBGetTime records the time it takes to get data in db.
func (nm NoOpMetrics) DBGetTime(dbType string, duration time.Duration) {}

// DBGetTagsTime records the time it takes to get tags in db.
func (nm NoOpMetrics) DBGetTagsTime(dbType string, duration time.Duration) {}

// DBGetBulkTime records the time it takes to get bulk in db.
func (nm NoOpMetrics) DBGetBulkTime(dbType string, duration time.Duration) {}

// DBQueryTime records the time it takes to query in db.
func (nm NoOpMetrics) DBQueryTime(dbType string, duration time.Duration) {}

// DBDeleteTime records the time it takes to delete in db.
func (nm NoOpMetrics) DBDeleteTime(dbType string, duration time.Duration) {}

// DBBatchTime records the time it takes to batch in db.
func (nm NoOpMetrics) DBBatchTime(dbType string, duration time.Duration) {}
