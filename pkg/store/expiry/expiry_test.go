/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package expiry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mock"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/internal/testutil/mongodbtestutil"
)

const testExpiryTag = "expiryTime"

func TestNewService(t *testing.T) {
	taskMgr := &taskMgrStub{}

	s := NewService(taskMgr, 10*time.Second)
	require.NotNil(t, s)

	require.Equal(t, taskID, taskMgr.taskID)
	require.Equal(t, 10*time.Second, taskMgr.interval)
	require.NotNil(t, taskMgr.task)
}

func TestDeleteExpiredData(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		store := newFakeStore("key1", "key2")

		s.Register(store, testExpiryTag, "test-store")

		taskMgr.task()

		require.Equal(t, []string{"key1", "key2"}, store.deletedKeys())
	})

	t.Run("success with expiry handler", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		store := newFakeStore("key1", "key2")
		handler := &expiryHandlerStub{}

		s.Register(store, testExpiryTag, "test-store", WithExpiryHandler(handler))

		taskMgr.task()

		require.Equal(t, []string{"key1", "key2"}, handler.keys)
		require.Equal(t, []string{"key1", "key2"}, store.deletedKeys())
	})

	t.Run("expiry handler error -> data not deleted", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		store := newFakeStore("key1")
		handler := &expiryHandlerStub{err: errors.New("injected handler error")}

		s.Register(store, testExpiryTag, "test-store", WithExpiryHandler(handler))

		taskMgr.task()

		require.Empty(t, store.deletedKeys())
	})

	t.Run("no expired data", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		store := newFakeStore()

		s.Register(store, testExpiryTag, "test-store")

		taskMgr.task()

		require.Empty(t, store.deletedKeys())
	})

	t.Run("query error -> ignored", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		s.Register(&mock.Store{ErrQuery: errors.New("injected query error")}, testExpiryTag, "test-store")

		require.NotPanics(t, taskMgr.task)
	})

	t.Run("iterator next error -> ignored", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		s.Register(&mock.Store{
			QueryReturn: &mock.Iterator{ErrNext: errors.New("injected next error")},
		}, testExpiryTag, "test-store")

		require.NotPanics(t, taskMgr.task)
	})

	t.Run("iterator key error -> ignored", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		s.Register(&mock.Store{
			QueryReturn: &mock.Iterator{NextReturn: true, ErrKey: errors.New("injected key error")},
		}, testExpiryTag, "test-store")

		require.NotPanics(t, taskMgr.task)
	})

	t.Run("batch error -> ignored", func(t *testing.T) {
		taskMgr := &taskMgrStub{}

		s := NewService(taskMgr, time.Second)

		store := newFakeStore("key1")
		store.errBatch = errors.New("injected batch error")

		s.Register(store, testExpiryTag, "test-store")

		require.NotPanics(t, taskMgr.task)
		require.Empty(t, store.deletedKeys())
	})
}

func TestDeleteExpiredDataMongoDB(t *testing.T) {
	mongoDBConnString, stopMongo := mongodbtestutil.StartMongoDB(t)
	defer stopMongo()

	provider, err := mongodb.NewProvider(mongoDBConnString)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, provider.Close())
	}()

	store, err := provider.OpenStore("expiry-test-store")
	require.NoError(t, err)

	require.NoError(t, provider.SetStoreConfig("expiry-test-store",
		storage.StoreConfiguration{TagNames: []string{testExpiryTag}}))

	expiredTime := time.Now().Add(-time.Minute).Unix()
	liveTime := time.Now().Add(time.Hour).Unix()

	require.NoError(t, store.Put("expired-key", []byte("value1"),
		storage.Tag{Name: testExpiryTag, Value: fmt.Sprintf("%d", expiredTime)}))
	require.NoError(t, store.Put("live-key", []byte("value2"),
		storage.Tag{Name: testExpiryTag, Value: fmt.Sprintf("%d", liveTime)}))

	taskMgr := &taskMgrStub{}

	s := NewService(taskMgr, time.Second)
	s.Register(store, testExpiryTag, "expiry-test-store")

	taskMgr.task()

	_, err = store.Get("expired-key")
	require.ErrorIs(t, err, storage.ErrDataNotFound)

	value, err := store.Get("live-key")
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), value)
}

type taskMgrStub struct {
	taskID   string
	interval time.Duration
	task     func()
}

func (m *taskMgrStub) RegisterTask(taskID string, interval time.Duration, task func()) {
	m.taskID = taskID
	m.interval = interval
	m.task = task
}

type expiryHandlerStub struct {
	err  error
	keys []string
}

func (h *expiryHandlerStub) HandleExpiredKeys(keys ...string) error {
	if h.err != nil {
		return h.err
	}

	h.keys = keys

	return nil
}

type fakeStore struct {
	storage.Store

	keys     []string
	errBatch error

	mutex   sync.Mutex
	deleted []string
}

func newFakeStore(keys ...string) *fakeStore {
	return &fakeStore{keys: keys}
}

func (s *fakeStore) Query(string, ...storage.QueryOption) (storage.Iterator, error) {
	return &fakeIterator{keys: s.keys}, nil
}

func (s *fakeStore) Batch(operations []storage.Operation) error {
	if s.errBatch != nil {
		return s.errBatch
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, op := range operations {
		s.deleted = append(s.deleted, op.Key)
	}

	return nil
}

func (s *fakeStore) deletedKeys() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.deleted
}

type fakeIterator struct {
	keys []string
	pos  int
}

func (it *fakeIterator) Next() (bool, error) {
	if it.pos >= len(it.keys) {
		return false, nil
	}

	it.pos++

	return true, nil
}

func (it *fakeIterator) Key() (string, error) {
	return it.keys[it.pos-1], nil
}

func (it *fakeIterator) Value() ([]byte, error) {
	return nil, nil
}

func (it *fakeIterator) Tags() ([]storage.Tag, error) {
	return nil, nil
}

func (it *fakeIterator) TotalItems() (int, error) {
	return len(it.keys), nil
}

func (it *fakeIterator) Close() error {
	return nil
}
