/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"
)

// Constants used by the metrics providers.
const (
	// Namespace Organization namespace.
	Namespace = "broca"

	// ActivityPub ActivityPub.
	ActivityPub                   = "activitypub"
	ApPostTimeMetric              = "outbox_post_seconds"
	ApResolveInboxesTimeMetric    = "outbox_resolve_inboxes_seconds"
	ApInboxHandlerTimeMetric      = "inbox_handler_seconds"
	ApOutboxActivityCounterMetric = "outbox_count"

	// Delivery Activity delivery engine.
	Delivery                   = "delivery"
	DeliveryDeliverTimeMetric  = "deliver_seconds"
	DeliveryRetryCounterMetric = "retry_count"
	DeliveryDeadCounterMetric  = "dead_count"
	DeliveryQueueDepthMetric   = "queue_depth"

	// DB DB.
	DB                  = "db"
	DBPutTimeMetric     = "put_seconds"
	DBGetTimeMetric     = "get_seconds"
	DBGetTagsTimeMetric = "get_tags_seconds"
	DBGetBulkTimeMetric = "get_bulk_seconds"
	DBQueryTimeMetric   = "query_seconds"
	DBDeleteTimeMetric  = "delete_seconds"
	DBBatchTimeMetric   = "batch_seconds"
)

// Provider is an interface for metrics provider.
type Provider interface {
	// Create creates a metrics provider instance
	Create() error
	// Destroy destroys the metrics provider instance
	Destroy() error
	// Metrics providers metrics
	Metrics() Metrics
}

// Metrics is an interface for the metrics to be supported by the provider.
type Metrics interface {
	InboxHandlerTime(activityType string, value time.Duration)
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
	DeliverTime(value time.Duration)
	DeliveryIncrementRetryCount()
	DeliveryIncrementDeadCount()
	DeliveryQueueDepth(value float64)
	DBPutTime(dbType string, duration time.Duration)
	DBGetTime(dbType string, duration time.Duration)
	DBGetTagsTime(dbType string, duration time.Duration)
	DBGetBulkTime(dbType string, duration time.Duration)
	DBQueryTime(dbType string, duration time.Duration)
	DBDeleteTime(dbType string, duration time.Duration)
	DBBatchTime(dbType string, duration time.Duration)
}
