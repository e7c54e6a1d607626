/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/mocks"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/aptestutil"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
	"github.com/broca-activitypub/broca/pkg/store/expiry"
)

var (
	aliceIRI  = testutil.MustParseURL("https://broca1.example.com/users/alice")
	bobIRI    = testutil.MustParseURL("https://remote1.example.com/users/bob")
	carolIRI  = testutil.MustParseURL("https://remote1.example.com/users/carol")
	daveIRI   = testutil.MustParseURL("https://remote2.example.com/users/dave")
	publicIRI = testutil.MustParseURL(vocab.PublicIRI)
)

func TestNew(t *testing.T) {
	activityStore := memstore.New("service1")

	t.Run("Success", func(t *testing.T) {
		taskMgr := mocks.NewTaskManager("delivery1")

		e, err := New(&Config{ServiceName: "service1"}, activityStore, mem.NewProvider(),
			transport.Default(), mocks.NewActivitPubClient(), mocks.NewPubSub(), taskMgr,
			expiry.NewService(taskMgr, time.Minute), mocks.NewMetricsProvider())
		require.NoError(t, err)
		require.NotNil(t, e)

		require.Equal(t, defaultTopic, e.Topic)
		require.Equal(t, defaultBatchSize, e.BatchSize)
		require.Equal(t, defaultMaxAttempts, e.MaxAttempts)
		require.Equal(t, defaultLeaseTimeout, e.LeaseTimeout)
		require.Equal(t, defaultRetention, e.Retention)

		e.Start()

		require.Equal(t, spi.StateStarted, e.State())

		e.Stop()

		require.Equal(t, spi.StateStopped, e.State())
	})

	t.Run("PubSub subscribe error", func(t *testing.T) {
		errExpected := errors.New("injected PubSub error")

		taskMgr := mocks.NewTaskManager("delivery1")

		e, err := New(&Config{ServiceName: "service1"}, activityStore, mem.NewProvider(),
			transport.Default(), mocks.NewActivitPubClient(), mocks.NewPubSub().WithError(errExpected),
			taskMgr, expiry.NewService(taskMgr, time.Minute), mocks.NewMetricsProvider())
		require.Error(t, err)
		require.True(t, errors.Is(err, errExpected))
		require.Nil(t, e)
	})
}

func TestEngine_Enqueue(t *testing.T) {
	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(bobIRI)),
		vocab.WithID(testutil.MustParseURL("https://broca1.example.com/activities/activity1")),
		vocab.WithActor(aliceIRI),
		vocab.WithTo(bobIRI),
	)

	t.Run("Not started -> error", func(t *testing.T) {
		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), mocks.NewActivitPubClient(),
			mocks.NewPubSub())

		_, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
		require.Error(t, err)
		require.True(t, errors.Is(err, lifecycle.ErrNotStarted))
	})

	t.Run("To actor -> personal inbox", func(t *testing.T) {
		apClient := mocks.NewActivitPubClient().WithActor(aptestutil.NewMockPerson(bobIRI))

		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
		require.NoError(t, err)
		require.Equal(t, 1, numQueued)

		items, err := e.queue.queryByStatus(StatusPending)
		require.NoError(t, err)
		require.Len(t, items, 1)

		item := items[0]

		require.Equal(t, bobIRI.String()+"/inbox", item.TargetInbox)
		require.Equal(t, aliceIRI.String(), item.SenderIRI)
		require.Equal(t, "alice", item.SenderUsername)
		require.Equal(t, StatusPending, item.Status)
		require.Equal(t, 0, item.AttemptCount)
		require.Equal(t, defaultMaxAttempts, item.MaxAttempts)
		require.False(t, item.NextAttemptAt.After(time.Now()))
	})

	t.Run("To actor that cannot be resolved -> no deliveries", func(t *testing.T) {
		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), mocks.NewActivitPubClient(),
			mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
		require.NoError(t, err)
		require.Equal(t, 0, numQueued)
	})

	t.Run("To recipients -> shared inbox grouping", func(t *testing.T) {
		sharedInboxIRI := testutil.MustParseURL("https://remote1.example.com/inbox")

		apClient := mocks.NewActivitPubClient().
			WithActor(vocab.NewPerson(bobIRI,
				vocab.WithInbox(testutil.NewMockID(bobIRI, "/inbox")),
				vocab.WithSharedInbox(sharedInboxIRI),
			)).
			WithActor(vocab.NewPerson(carolIRI,
				vocab.WithInbox(testutil.NewMockID(carolIRI, "/inbox")),
				vocab.WithSharedInbox(sharedInboxIRI),
			)).
			WithActor(aptestutil.NewMockPerson(daveIRI))

		create := vocab.NewCreateActivity(
			vocab.NewObjectProperty(vocab.WithObject(aptestutil.NewMockNoteObject(
				testutil.MustParseURL("https://broca1.example.com/users/alice/objects/object1"), "Hello"))),
			vocab.WithID(testutil.MustParseURL("https://broca1.example.com/activities/activity2")),
			vocab.WithActor(aliceIRI),
			vocab.WithTo(publicIRI, bobIRI, carolIRI, daveIRI),
		)

		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, create, ToRecipients())
		require.NoError(t, err)
		require.Equal(t, 2, numQueued)

		items, err := e.queue.queryByStatus(StatusPending)
		require.NoError(t, err)
		require.Len(t, items, 2)

		inboxes := []string{items[0].TargetInbox, items[1].TargetInbox}
		require.Contains(t, inboxes, sharedInboxIRI.String())
		require.Contains(t, inboxes, daveIRI.String()+"/inbox")
	})

	t.Run("Followers collection reference is expanded", func(t *testing.T) {
		activityStore := memstore.New("service1")

		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, bobIRI))
		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, daveIRI))

		apClient := mocks.NewActivitPubClient().
			WithActor(aptestutil.NewMockPerson(bobIRI)).
			WithActor(aptestutil.NewMockPerson(daveIRI))

		create := vocab.NewCreateActivity(
			vocab.NewObjectProperty(vocab.WithObject(aptestutil.NewMockNoteObject(
				testutil.MustParseURL("https://broca1.example.com/users/alice/objects/object2"), "Hello"))),
			vocab.WithID(testutil.MustParseURL("https://broca1.example.com/activities/activity3")),
			vocab.WithActor(aliceIRI),
			vocab.WithTo(publicIRI),
			vocab.WithCC(testutil.MustParseURL(aliceIRI.String()+"/followers")),
		)

		e, _ := newTestEngine(t, &Config{}, activityStore, apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, create, ToRecipients())
		require.NoError(t, err)
		require.Equal(t, 2, numQueued)
	})

	t.Run("To followers", func(t *testing.T) {
		activityStore := memstore.New("service1")

		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, bobIRI))
		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, carolIRI))

		apClient := mocks.NewActivitPubClient().
			WithActor(aptestutil.NewMockPerson(bobIRI)).
			WithActor(aptestutil.NewMockPerson(carolIRI))

		e, _ := newTestEngine(t, &Config{}, activityStore, apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, follow, ToFollowers())
		require.NoError(t, err)
		require.Equal(t, 2, numQueued)
	})

	t.Run("Unresolvable follower is skipped", func(t *testing.T) {
		activityStore := memstore.New("service1")

		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, bobIRI))
		require.NoError(t, activityStore.AddReference(store.Follower, aliceIRI, carolIRI))

		apClient := mocks.NewActivitPubClient().WithActor(aptestutil.NewMockPerson(bobIRI))

		e, _ := newTestEngine(t, &Config{}, activityStore, apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, follow, ToFollowers())
		require.NoError(t, err)
		require.Equal(t, 1, numQueued)
	})

	t.Run("Blind recipients are stripped from the queued activity", func(t *testing.T) {
		activityBytes := []byte(fmt.Sprintf(`{
  "@context": "https://www.w3.org/ns/activitystreams",
  "id": "https://broca1.example.com/activities/activity4",
  "type": "Create",
  "actor": "%s",
  "to": ["%s"],
  "bto": ["%s"],
  "object": {
    "id": "https://broca1.example.com/users/alice/objects/object3",
    "type": "Note",
    "content": "Hello"
  }
}`, aliceIRI, publicIRI, bobIRI))

		activity := &vocab.ActivityType{}
		require.NoError(t, json.Unmarshal(activityBytes, activity))

		apClient := mocks.NewActivitPubClient().WithActor(aptestutil.NewMockPerson(bobIRI))

		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), apClient, mocks.NewPubSub())

		e.Start()
		defer e.Stop()

		numQueued, err := e.Enqueue(aliceIRI, activity, ToRecipients())
		require.NoError(t, err)
		require.Equal(t, 1, numQueued)

		items, err := e.queue.queryByStatus(StatusPending)
		require.NoError(t, err)
		require.Len(t, items, 1)

		require.NotContains(t, string(items[0].Activity), "bto")
	})

	t.Run("Marshal error", func(t *testing.T) {
		errExpected := errors.New("injected marshal error")

		apClient := mocks.NewActivitPubClient().WithActor(aptestutil.NewMockPerson(bobIRI))

		e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), apClient, mocks.NewPubSub())

		e.jsonMarshal = func(interface{}) ([]byte, error) { return nil, errExpected }

		e.Start()
		defer e.Stop()

		_, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
		require.Error(t, err)
		require.True(t, errors.Is(err, errExpected))
	})
}

func TestEngine_DeliverySuccess(t *testing.T) {
	var mutex sync.Mutex

	var receivedPayloads [][]byte

	var receivedContentTypes []string

	inboxServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mutex.Lock()
		receivedPayloads = append(receivedPayloads, payload)
		receivedContentTypes = append(receivedContentTypes, r.Header.Get(transport.ContentTypeHeader))
		mutex.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer inboxServer.Close()

	inboxIRI := testutil.MustParseURL(inboxServer.URL + "/inbox")

	apClient := mocks.NewActivitPubClient().WithActor(vocab.NewPerson(bobIRI, vocab.WithInbox(inboxIRI)))

	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(bobIRI)),
		vocab.WithID(testutil.MustParseURL("https://broca1.example.com/activities/activity5")),
		vocab.WithActor(aliceIRI),
		vocab.WithTo(bobIRI),
	)

	e, metrics := newTestEngine(t, &Config{}, memstore.New("service1"), apClient, mocks.NewPubSub())

	e.Start()
	defer e.Stop()

	numQueued, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
	require.NoError(t, err)
	require.Equal(t, 1, numQueued)

	e.sweep()

	time.Sleep(500 * time.Millisecond)

	delivered, err := e.queue.queryByStatus(StatusDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	require.Equal(t, 0, delivered[0].AttemptCount)
	require.Empty(t, delivered[0].LastError)

	pending, err := e.queue.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)

	mutex.Lock()
	defer mutex.Unlock()

	require.Len(t, receivedPayloads, 1)
	require.Equal(t, transport.ActivityStreamsContentType, receivedContentTypes[0])

	receivedActivity := &vocab.ActivityType{}
	require.NoError(t, json.Unmarshal(receivedPayloads[0], receivedActivity))
	require.Equal(t, follow.ID().String(), receivedActivity.ID().String())

	require.Equal(t, 0, metrics.RetryCount())
	require.Equal(t, 0, metrics.DeadCount())
}

func TestEngine_DeliveryRetryAndDead(t *testing.T) {
	inboxServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer inboxServer.Close()

	inboxIRI := testutil.MustParseURL(inboxServer.URL + "/inbox")

	apClient := mocks.NewActivitPubClient().WithActor(vocab.NewPerson(bobIRI, vocab.WithInbox(inboxIRI)))

	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(bobIRI)),
		vocab.WithID(testutil.MustParseURL("https://broca1.example.com/activities/activity6")),
		vocab.WithActor(aliceIRI),
		vocab.WithTo(bobIRI),
	)

	e, metrics := newTestEngine(t, &Config{MaxAttempts: 2}, memstore.New("service1"), apClient,
		mocks.NewPubSub())

	e.Start()
	defer e.Stop()

	numQueued, err := e.Enqueue(aliceIRI, follow, ToActor(bobIRI))
	require.NoError(t, err)
	require.Equal(t, 1, numQueued)

	e.sweep()

	time.Sleep(500 * time.Millisecond)

	// The first failure should schedule a retry one minute out.
	pending, err := e.queue.queryByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.Contains(t, pending[0].LastError, "responded with status 500")
	require.True(t, pending[0].NextAttemptAt.After(time.Now().Add(50*time.Second)))
	require.Equal(t, 1, metrics.RetryCount())

	// Make the item due immediately and sweep again. The second failure exhausts
	// the attempts.
	pending[0].NextAttemptAt = time.Now().Add(-time.Second)
	require.NoError(t, e.queue.put(pending[0]))

	e.sweep()

	time.Sleep(500 * time.Millisecond)

	dead, err := e.queue.queryByStatus(StatusDead)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 2, dead[0].AttemptCount)
	require.Equal(t, 1, metrics.DeadCount())

	// Dead items are never claimed again.
	e.sweep()

	time.Sleep(100 * time.Millisecond)

	dead, err = e.queue.queryByStatus(StatusDead)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 2, dead[0].AttemptCount)
}

func TestEngine_LeaseRecovery(t *testing.T) {
	inboxServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer inboxServer.Close()

	e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), mocks.NewActivitPubClient(),
		mocks.NewPubSub())

	e.Start()
	defer e.Stop()

	now := time.Now()

	// Simulate an item that was claimed by a worker that died.
	item := &QueueItem{
		ID:            watermill.NewULID(),
		Activity:      []byte(`{"type":"Follow"}`),
		TargetInbox:   inboxServer.URL + "/inbox",
		SenderIRI:     aliceIRI.String(),
		Status:        StatusProcessing,
		MaxAttempts:   defaultMaxAttempts,
		CreatedAt:     now.Add(-time.Hour),
		NextAttemptAt: now.Add(-time.Hour),
		LeaseExpiry:   now.Add(-time.Minute),
	}

	require.NoError(t, e.queue.put(item))

	e.sweep()

	time.Sleep(500 * time.Millisecond)

	// The expired lease should have been recovered and the item delivered without
	// incrementing the attempt count.
	delivered, err := e.queue.queryByStatus(StatusDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	require.Equal(t, 0, delivered[0].AttemptCount)
}

func TestEngine_HandleBadMessage(t *testing.T) {
	e, _ := newTestEngine(t, &Config{}, memstore.New("service1"), mocks.NewActivitPubClient(),
		mocks.NewPubSub())

	e.Start()
	defer e.Stop()

	require.NotPanics(t, func() {
		e.handle(message.NewMessage(watermill.NewUUID(), []byte("invalid JSON")))
	})
}

func TestBackoff(t *testing.T) {
	require.Equal(t, time.Minute, backoff(0))
	require.Equal(t, time.Minute, backoff(1))
	require.Equal(t, 5*time.Minute, backoff(2))
	require.Equal(t, 15*time.Minute, backoff(3))
	require.Equal(t, time.Hour, backoff(4))
	require.Equal(t, 4*time.Hour, backoff(5))
	require.Equal(t, 4*time.Hour, backoff(6))
}

func newTestEngine(t *testing.T, cfg *Config, activityStore store.Store,
	apClient *mocks.ActivityPubClient, pubSub *mocks.MockPubSub) (*Engine, *mocks.MetricsProvider) {
	t.Helper()

	if cfg.ServiceName == "" {
		cfg.ServiceName = "service1"
	}

	metrics := mocks.NewMetricsProvider()

	taskMgr := mocks.NewTaskManager("delivery1")

	e, err := New(cfg, activityStore, mem.NewProvider(), transport.Default(), apClient, pubSub,
		taskMgr, expiry.NewService(taskMgr, time.Minute), metrics)
	require.NoError(t, err)
	require.NotNil(t, e)

	return e, metrics
}
