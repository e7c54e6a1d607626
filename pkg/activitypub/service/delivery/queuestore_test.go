/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"fmt"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"
)

func TestQueueStore_PutAndQuery(t *testing.T) {
	s, err := newQueueStore(mem.NewProvider(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, s)

	now := time.Now()

	item := newTestItem("0001", now)

	require.NoError(t, s.put(item))

	pending, err := s.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, item.ID, pending[0].ID)
	require.Equal(t, item.TargetInbox, pending[0].TargetInbox)
	require.Equal(t, item.SenderIRI, pending[0].SenderIRI)
	require.Equal(t, item.SenderUsername, pending[0].SenderUsername)
	require.Equal(t, item.MaxAttempts, pending[0].MaxAttempts)
	require.Equal(t, string(item.Activity), string(pending[0].Activity))

	item.Status = StatusDelivered

	require.NoError(t, s.put(item))

	pending, err = s.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)

	delivered, err := s.queryByStatus(StatusDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
}

func TestQueueStore_PutAll(t *testing.T) {
	s, err := newQueueStore(mem.NewProvider(), time.Hour)
	require.NoError(t, err)

	now := time.Now()

	items := []*QueueItem{
		newTestItem("0001", now),
		newTestItem("0002", now),
		newTestItem("0003", now),
	}

	require.NoError(t, s.putAll(items))

	pending, err := s.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
}

func TestQueueStore_ClaimDue(t *testing.T) {
	s, err := newQueueStore(mem.NewProvider(), time.Hour)
	require.NoError(t, err)

	now := time.Now()

	itemA := newTestItem("000A", now)
	itemA.NextAttemptAt = now.Add(-time.Minute)

	itemB := newTestItem("000B", now)
	itemB.NextAttemptAt = now.Add(-2 * time.Minute)

	itemC := newTestItem("000C", now)
	itemC.NextAttemptAt = now.Add(time.Hour)

	itemD := newTestItem("000D", now)
	itemD.NextAttemptAt = now.Add(-30 * time.Second)

	require.NoError(t, s.putAll([]*QueueItem{itemA, itemB, itemC, itemD}))

	leaseExpiry := now.Add(2 * time.Minute)

	claimed, numPending, err := s.claimDue(now, 2, leaseExpiry)
	require.NoError(t, err)
	require.Equal(t, 4, numPending)
	require.Len(t, claimed, 2)

	// The oldest due items are claimed first.
	require.Equal(t, itemB.ID, claimed[0].ID)
	require.Equal(t, itemA.ID, claimed[1].ID)

	for _, item := range claimed {
		require.Equal(t, StatusProcessing, item.Status)
		require.True(t, item.LeaseExpiry.Equal(leaseExpiry))
	}

	processing, err := s.queryByStatus(StatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 2)

	// A second claim picks up the remaining due item but not the one scheduled
	// for the future.
	claimed, numPending, err = s.claimDue(now, 10, leaseExpiry)
	require.NoError(t, err)
	require.Equal(t, 2, numPending)
	require.Len(t, claimed, 1)
	require.Equal(t, itemD.ID, claimed[0].ID)

	claimed, numPending, err = s.claimDue(now, 10, leaseExpiry)
	require.NoError(t, err)
	require.Equal(t, 1, numPending)
	require.Empty(t, claimed)
}

func TestQueueStore_RecoverExpiredLeases(t *testing.T) {
	s, err := newQueueStore(mem.NewProvider(), time.Hour)
	require.NoError(t, err)

	now := time.Now()

	expired := newTestItem("0001", now)
	expired.Status = StatusProcessing
	expired.AttemptCount = 2
	expired.LeaseExpiry = now.Add(-time.Second)

	active := newTestItem("0002", now)
	active.Status = StatusProcessing
	active.LeaseExpiry = now.Add(2 * time.Minute)

	require.NoError(t, s.putAll([]*QueueItem{expired, active}))

	numRecovered, err := s.recoverExpiredLeases(now)
	require.NoError(t, err)
	require.Equal(t, 1, numRecovered)

	pending, err := s.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, expired.ID, pending[0].ID)

	// The attempt count is not incremented by lease recovery.
	require.Equal(t, 2, pending[0].AttemptCount)
	require.True(t, pending[0].LeaseExpiry.IsZero())

	processing, err := s.queryByStatus(StatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	require.Equal(t, active.ID, processing[0].ID)
}

func newTestItem(id string, now time.Time) *QueueItem {
	return &QueueItem{
		ID:             id,
		Activity:       []byte(`{"type":"Create"}`),
		TargetInbox:    fmt.Sprintf("https://remote1.example.com/users/%s/inbox", id),
		SenderIRI:      "https://broca1.example.com/users/alice",
		SenderUsername: "alice",
		Status:         StatusPending,
		MaxAttempts:    5,
		CreatedAt:      now,
		NextAttemptAt:  now,
	}
}
