/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/store"
)

const (
	queueStoreName = "activity-queue"
	statusTagName  = "Status"
	expiryTagName  = "ExpiryTime"
)

// Status is the delivery status of a queued activity.
type Status string

const (
	// StatusPending indicates that the item is waiting to be delivered.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates that the item has been claimed by a worker and a
	// delivery attempt is in progress. The claim expires at the item's lease expiry.
	StatusProcessing Status = "PROCESSING"
	// StatusDelivered indicates that the destination server accepted the activity.
	StatusDelivered Status = "DELIVERED"
	// StatusFailed indicates that a delivery attempt failed. This status is immediately
	// resolved to either StatusPending (when attempts remain) or StatusDead, so it is
	// never observed in the store.
	StatusFailed Status = "FAILED"
	// StatusDead indicates that all delivery attempts have been exhausted. Dead items
	// are never retried.
	StatusDead Status = "DEAD"
)

// QueueItem is a single delivery of an activity to one destination inbox.
type QueueItem struct {
	ID             string          `json:"id"`
	Activity       json.RawMessage `json:"activity"`
	TargetInbox    string          `json:"targetInbox"`
	SenderIRI      string          `json:"senderIri"`
	SenderUsername string          `json:"senderUsername"`
	Status         Status          `json:"status"`
	AttemptCount   int             `json:"attemptCount"`
	MaxAttempts    int             `json:"maxAttempts"`
	CreatedAt      time.Time       `json:"createdAt"`
	NextAttemptAt  time.Time       `json:"nextAttemptAt"`
	LeaseExpiry    time.Time       `json:"leaseExpiry,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
}

type queueStore struct {
	store     storage.Store
	retention time.Duration
	logger    *log.Log
}

func newQueueStore(provider storage.Provider, retention time.Duration) (*queueStore, error) {
	s, err := store.Open(provider, queueStoreName,
		store.NewTagGroup(statusTagName),
		store.NewTagGroup(expiryTagName),
	)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	return &queueStore{
		store:     s,
		retention: retention,
		logger:    log.New("activitypub_delivery", log.WithFields(logfields.WithStoreName(queueStoreName))),
	}, nil
}

// put stores the given item, replacing any existing item with the same ID. Items in a
// terminal status are tagged with an expiry time so that they are removed from the
// store after the retention period.
func (s *queueStore) put(item *QueueItem) error {
	itemBytes, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item [%s]: %w", item.ID, err)
	}

	err = s.store.Put(item.ID, itemBytes, s.tagsFor(item)...)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store queue item [%s]: %w", item.ID, err))
	}

	return nil
}

// putAll stores the given items in a single batch operation.
func (s *queueStore) putAll(items []*QueueItem) error {
	operations := make([]storage.Operation, len(items))

	for i, item := range items {
		itemBytes, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal queue item [%s]: %w", item.ID, err)
		}

		operations[i] = storage.Operation{
			Key:   item.ID,
			Value: itemBytes,
			Tags:  s.tagsFor(item),
		}
	}

	err := s.store.Batch(operations)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store queue items: %w", err))
	}

	return nil
}

func (s *queueStore) tagsFor(item *QueueItem) []storage.Tag {
	tags := []storage.Tag{
		{
			Name:  statusTagName,
			Value: string(item.Status),
		},
	}

	if item.Status == StatusDelivered || item.Status == StatusDead {
		tags = append(tags, storage.Tag{
			Name:  expiryTagName,
			Value: fmt.Sprintf("%d", time.Now().Add(s.retention).Unix()),
		})
	}

	return tags
}

// queryByStatus returns all items with the given status. Only a single tag is used in
// the query expression so that the store works with any storage provider.
func (s *queueStore) queryByStatus(status Status) ([]*QueueItem, error) {
	it, err := s.store.Query(fmt.Sprintf("%s:%s", statusTagName, status))
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("query queue store: %w", err))
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(s.logger, err)
		}
	}()

	var items []*QueueItem

	for {
		more, err := it.Next()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get next queue item: %w", err))
		}

		if !more {
			break
		}

		value, err := it.Value()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get queue item value: %w", err))
		}

		item := &QueueItem{}

		if err := json.Unmarshal(value, item); err != nil {
			return nil, fmt.Errorf("unmarshal queue item: %w", err)
		}

		items = append(items, item)
	}

	return items, nil
}

// claimDue transitions up to batchSize pending items that are due for an attempt into
// processing status and returns them, along with the total number of pending items.
// The lease on each claimed item expires at the given lease expiry, after which the
// item may be reclaimed.
func (s *queueStore) claimDue(now time.Time, batchSize int, leaseExpiry time.Time) ([]*QueueItem, int, error) {
	pending, err := s.queryByStatus(StatusPending)
	if err != nil {
		return nil, 0, fmt.Errorf("query pending items: %w", err)
	}

	var due []*QueueItem

	for _, item := range pending {
		if !item.NextAttemptAt.After(now) {
			due = append(due, item)
		}
	}

	// Oldest deliveries are attempted first. The ID (a ULID) breaks ties since it is
	// ordered by creation time.
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].ID < due[j].ID
		}

		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})

	if len(due) > batchSize {
		due = due[:batchSize]
	}

	if len(due) == 0 {
		return nil, len(pending), nil
	}

	for _, item := range due {
		item.Status = StatusProcessing
		item.LeaseExpiry = leaseExpiry
	}

	if err := s.putAll(due); err != nil {
		return nil, len(pending), fmt.Errorf("claim items: %w", err)
	}

	return due, len(pending), nil
}

// recoverExpiredLeases returns items whose processing lease has expired back to pending
// status so that they are retried. The attempt count is not incremented since the
// outcome of the interrupted attempt is unknown.
func (s *queueStore) recoverExpiredLeases(now time.Time) (int, error) {
	processing, err := s.queryByStatus(StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("query processing items: %w", err)
	}

	var expired []*QueueItem

	for _, item := range processing {
		if !item.LeaseExpiry.After(now) {
			item.Status = StatusPending
			item.LeaseExpiry = time.Time{}

			expired = append(expired, item)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	if err := s.putAll(expired); err != nil {
		return 0, fmt.Errorf("recover expired leases: %w", err)
	}

	for _, item := range expired {
		s.logger.Info("Returned expired delivery lease to the queue",
			logfields.WithQueueItemID(item.ID), logfields.WithInboxURLString(item.TargetInbox),
			logfields.WithAttempts(item.AttemptCount))
	}

	return len(expired), nil
}
