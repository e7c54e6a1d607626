/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"sync"
	"time"
)

// MetricsProvider is a mock metrics provider.
type MetricsProvider struct {
	mutex      sync.RWMutex
	retryCount int
	deadCount  int
	queueDepth float64
}

// NewMetricsProvider returns a mock metrics provider.
func NewMetricsProvider() *MetricsProvider {
	return &MetricsProvider{}
}

// InboxHandlerTime records the time it takes to handle an activity posted to an inbox.
func (m *MetricsProvider) InboxHandlerTime(string, time.Duration) {
}

// OutboxPostTime records the time it takes to post an activity to an outbox.
func (m *MetricsProvider) OutboxPostTime(time.Duration) {
}

// OutboxResolveInboxesTime records the time it takes to resolve the inboxes of recipients.
func (m *MetricsProvider) OutboxResolveInboxesTime(time.Duration) {
}

// OutboxIncrementActivityCount increments the count of posted activities.
func (m *MetricsProvider) OutboxIncrementActivityCount(string) {
}

// DeliverTime records the time it takes to deliver an activity to an inbox.
func (m *MetricsProvider) DeliverTime(time.Duration) {
}

// DeliveryIncrementRetryCount increments the count of delivery retries.
func (m *MetricsProvider) DeliveryIncrementRetryCount() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.retryCount++
}

// DeliveryIncrementDeadCount increments the count of dead queue items.
func (m *MetricsProvider) DeliveryIncrementDeadCount() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.deadCount++
}

// DeliveryQueueDepth records the number of pending queue items.
func (m *MetricsProvider) DeliveryQueueDepth(value float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.queueDepth = value
}

// RetryCount returns the recorded count of delivery retries.
func (m *MetricsProvider) RetryCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.retryCount
}

// DeadCount returns the recorded count of dead queue items.
func (m *MetricsProvider) DeadCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.deadCount
}

// QueueDepth returns the recorded queue depth.
func (m *MetricsProvider) QueueDepth() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.queueDepth
}

// DBPutTime records the time it takes to store data in the database.
func (m *MetricsProvider) DBPutTime(string, time.Duration) {
}

// DBGetTime records the time it takes to get data from the database.
func (m *MetricsProvider) DBGetTime(string, time.Duration) {
}

// DBGetTagsTime records the time it takes to get tags from the database.
func (m *MetricsProvider) DBGetTagsTime(string, time.Duration) {
}

// DBGetBulkTime records the time it takes to get bulk data from the database.
func (m *MetricsProvider) DBGetBulkTime(string, time.Duration) {
}

// DBQueryTime records the time it takes to query the database.
func (m *MetricsProvider) DBQueryTime(string, time.Duration) {
}

// DBDeleteTime records the time it takes to delete data from the database.
func (m *MetricsProvider) DBDeleteTime(string, time.Duration) {
}

// DBBatchTime records the time it takes to perform a batch operation in the database.
func (m *MetricsProvider) DBBatchTime(string, time.Duration) {
}
