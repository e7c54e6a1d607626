/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
)

func TestOpen(t *testing.T) {
	const (
		tag1 = "tag1"
		tag2 = "tag2"
		tag3 = "tag3"
	)

	t.Run("Standard store", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			s, err := Open(mem.NewProvider(), "store1",
				NewTagGroup(tag1, tag2),
				NewTagGroup(tag3),
			)
			require.NoError(t, err)
			require.NotNil(t, s)
		})

		t.Run("SetStoreConfig error", func(t *testing.T) {
			errExpected := errors.New("injected SetStoreConfig error")

			provider := &fakeProvider{
				store:             &fakeStore{},
				errSetStoreConfig: errExpected,
			}

			s, err := Open(provider, "store1",
				NewTagGroup(tag1, tag2),
				NewTagGroup(tag3),
			)
			require.Error(t, err)
			require.Contains(t, err.Error(), errExpected.Error())
			require.Nil(t, s)
		})
	})

	t.Run("MongoDB store", func(t *testing.T) {
		t.Run("No tags -> success", func(t *testing.T) {
			provider := &fakeMongoDBProvider{
				fakeProvider: fakeProvider{store: newFakeMongoDBStore()},
			}

			s, err := Open(provider, "store1")
			require.NoError(t, err)
			require.NotNil(t, s)
		})

		t.Run("With tags -> success", func(t *testing.T) {
			provider := &fakeMongoDBProvider{
				fakeProvider: fakeProvider{store: newFakeMongoDBStore()},
			}

			s, err := Open(provider, "store1",
				NewTagGroup(tag1, tag2),
				NewTagGroup(tag3),
			)
			require.NoError(t, err)
			require.NotNil(t, s)
		})

		t.Run("Non-MongoDB store for MongoDB provider -> panic", func(t *testing.T) {
			provider := &fakeMongoDBProvider{
				fakeProvider: fakeProvider{store: &fakeStore{}},
			}

			require.Panics(t, func() {
				_, err := Open(provider, "store1",
					NewTagGroup(tag1, tag2),
					NewTagGroup(tag3),
				)
				require.NoError(t, err)
			})
		})

		t.Run("CreateIndexes error", func(t *testing.T) {
			errExpected := errors.New("injected CreateCustomIndexes error")

			provider := &fakeMongoDBProvider{
				fakeProvider:     fakeProvider{store: newFakeMongoDBStore()},
				errCreateIndexes: errExpected,
			}

			s, err := Open(provider, "store1",
				NewTagGroup(tag1, tag2),
				NewTagGroup(tag3),
			)
			require.Error(t, err)
			require.Contains(t, err.Error(), errExpected.Error())
			require.Nil(t, s)
		})
	})

	t.Run("OpenStore error", func(t *testing.T) {
		errExpected := errors.New("injected OpenStore error")

		provider := &fakeProvider{errOpenStore: errExpected}

		s, err := Open(provider, "store1",
			NewTagGroup(tag1, tag2),
			NewTagGroup(tag3),
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Nil(t, s)
	})
}

func TestMongoDBPut(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	const key = "key1"

	t.Run("success", func(t *testing.T) {
		require.NoError(t, s.Put(key, []byte(`{}`)))
	})

	t.Run("unmarshal error", func(t *testing.T) {
		require.Error(t, s.Put(key, []byte(`{`)))
	})

	t.Run("PutAsJSON error", func(t *testing.T) {
		errExpected := errors.New("injected PutAsJSON error")

		ms.errPutAsJSON = errExpected
		defer func() { ms.errPutAsJSON = nil }()

		err := s.Put(key, []byte(`{}`))
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestMongoDBGet(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	const key = "key1"

	t.Run("success", func(t *testing.T) {
		ms.rawMap = map[string]interface{}{key: "value1"}

		docBytes, err := s.Get(key)
		require.NoError(t, err)
		require.NotEmpty(t, docBytes)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(docBytes, &doc))
		require.Equal(t, "value1", doc[key])
	})

	t.Run("marshal error", func(t *testing.T) {
		errExpected := errors.New("injected marshal error")

		s.(*mongoDBWrapper).marshal = func(v interface{}) ([]byte, error) {
			return nil, errExpected
		}
		defer func() {
			s.(*mongoDBWrapper).marshal = json.Marshal
		}()

		docBytes, err := s.Get(key)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Empty(t, docBytes)
	})

	t.Run("GetAsRawMap error", func(t *testing.T) {
		errExpected := errors.New("injected GetAsRawMap error")

		ms.errGetAsRawMap = errExpected
		defer func() { ms.errGetAsRawMap = nil }()

		docBytes, err := s.Get(key)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Empty(t, docBytes)
	})
}

func TestMongoDBGetBulk(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	const (
		key1 = "key1"
		key2 = "key2"
	)

	t.Run("success", func(t *testing.T) {
		ms.bulkRawMaps = []map[string]interface{}{
			{key1: "value1"},
			{key2: "value2"},
		}

		docBytes, err := s.GetBulk(key1, key2)
		require.NoError(t, err)
		require.Len(t, docBytes, 2)

		var doc map[string]interface{}

		require.NoError(t, json.Unmarshal(docBytes[0], &doc))
		require.Equal(t, "value1", doc[key1])

		require.NoError(t, json.Unmarshal(docBytes[1], &doc))
		require.Equal(t, "value2", doc[key2])
	})

	t.Run("marshal error", func(t *testing.T) {
		errExpected := errors.New("injected marshal error")

		s.(*mongoDBWrapper).marshal = func(v interface{}) ([]byte, error) {
			return nil, errExpected
		}
		defer func() {
			s.(*mongoDBWrapper).marshal = json.Marshal
		}()

		ms.bulkRawMaps = []map[string]interface{}{
			{key1: "value1"},
			{key2: "value2"},
		}

		docBytes, err := s.GetBulk(key1, key2)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Empty(t, docBytes)
	})

	t.Run("GetBulkAsRawMap error", func(t *testing.T) {
		errExpected := errors.New("injected GetBulkAsRawMap error")

		ms.errGetBulk = errExpected
		defer func() { ms.errGetBulk = nil }()

		docBytes, err := s.GetBulk(key1, key2)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Empty(t, docBytes)
	})
}

func TestMongoDBQuery(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	t.Run("success", func(t *testing.T) {
		ms.queryIterator = &fakeMongoDBIterator{rawMap: map[string]interface{}{"field1": "value1"}}

		it, err := s.Query("field1:value1")
		require.NoError(t, err)
		require.NotNil(t, it)

		ok, err := it.Next()
		require.NoError(t, err)
		require.True(t, ok)

		value, err := it.Value()
		require.NoError(t, err)
		require.NotEmpty(t, value)

		var doc map[string]interface{}

		require.NoError(t, json.Unmarshal(value, &doc))
		require.Equal(t, "value1", doc["field1"])
	})

	t.Run("QueryCustom error", func(t *testing.T) {
		errExpected := errors.New("injected QueryCustom error")

		ms.errQueryCustom = errExpected
		defer func() { ms.errQueryCustom = nil }()

		it, err := s.Query("x:y")
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
		require.Nil(t, it)
	})

	t.Run("Iterator error", func(t *testing.T) {
		errExpected := errors.New("injected iterator error")

		ms.queryIterator = &fakeMongoDBIterator{errValueAsRawMap: errExpected}

		it, err := s.Query("x:y")
		require.NoError(t, err)
		require.NotNil(t, it)

		_, err = it.Value()
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})

	t.Run("Iterator marshal error", func(t *testing.T) {
		errExpected := errors.New("injected marshal error")

		ms.queryIterator = &fakeMongoDBIterator{rawMap: map[string]interface{}{"field1": "value1"}}

		it, err := s.Query("x:y")
		require.NoError(t, err)
		require.NotNil(t, it)

		it.(*mongoDBIteratorWrapper).marshal = func(v interface{}) ([]byte, error) {
			return nil, errExpected
		}

		_, err = it.Value()
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestMongoDBGetTags(t *testing.T) {
	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: newFakeMongoDBStore()}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	require.Panics(t, func() {
		_, err := s.GetTags("key")
		require.NoError(t, err)
	})
}

func TestMongoDBBatch(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	t.Run("success", func(t *testing.T) {
		require.NoError(t, s.Batch([]storage.Operation{
			{Key: "key1", Value: []byte(`{"field1":"value1"}`)},
			{Key: "key2", Value: []byte(`{"field2":"value2"}`), PutOptions: &storage.PutOptions{IsNewKey: true}},
			{Key: "key3"},
		}))
	})

	t.Run("unmarshal error", func(t *testing.T) {
		require.Error(t, s.Batch([]storage.Operation{
			{Key: "key1", Value: []byte(`{`)},
		}))
	})

	t.Run("BulkWrite error", func(t *testing.T) {
		errExpected := errors.New("injected BulkWrite error")

		ms.errBulkWrite = errExpected
		defer func() { ms.errBulkWrite = nil }()

		err := s.Batch([]storage.Operation{
			{Key: "key1", Value: []byte(`{"field1":"value1"}`)},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})
}

func TestMongoDBDeleteFlushClose(t *testing.T) {
	ms := newFakeMongoDBStore()

	s, err := Open(&fakeMongoDBProvider{fakeProvider: fakeProvider{store: ms}}, "store1")
	require.NoError(t, err)
	require.NotNil(t, s)

	require.NoError(t, s.Delete("key1"))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())
}

type fakeProvider struct {
	store             storage.Store
	errOpenStore      error
	errSetStoreConfig error
}

func (p *fakeProvider) OpenStore(string) (storage.Store, error) {
	if p.errOpenStore != nil {
		return nil, p.errOpenStore
	}

	return p.store, nil
}

func (p *fakeProvider) SetStoreConfig(string, storage.StoreConfiguration) error {
	return p.errSetStoreConfig
}

func (p *fakeProvider) GetStoreConfig(string) (storage.StoreConfiguration, error) {
	return storage.StoreConfiguration{}, nil
}

func (p *fakeProvider) GetOpenStores() []storage.Store {
	return nil
}

func (p *fakeProvider) Close() error {
	return nil
}

type fakeMongoDBProvider struct {
	fakeProvider

	errCreateIndexes error
}

func (p *fakeMongoDBProvider) CreateCustomIndexes(string, ...mongo.IndexModel) error {
	return p.errCreateIndexes
}

type fakeStore struct {
	storage.Store
}

func (s *fakeStore) Delete(string) error { return nil }
func (s *fakeStore) Flush() error        { return nil }
func (s *fakeStore) Close() error        { return nil }

type fakeMongoDBStore struct {
	fakeStore

	errPutAsJSON     error
	rawMap           map[string]interface{}
	errGetAsRawMap   error
	bulkRawMaps      []map[string]interface{}
	errGetBulk       error
	queryIterator    mongodb.Iterator
	errQueryCustom   error
	errBulkWrite     error
}

func newFakeMongoDBStore() *fakeMongoDBStore {
	return &fakeMongoDBStore{}
}

func (s *fakeMongoDBStore) PutAsJSON(string, interface{}) error {
	return s.errPutAsJSON
}

func (s *fakeMongoDBStore) BulkWrite([]mongo.WriteModel, ...*mongoopts.BulkWriteOptions) error {
	return s.errBulkWrite
}

func (s *fakeMongoDBStore) GetAsRawMap(string) (map[string]interface{}, error) {
	if s.errGetAsRawMap != nil {
		return nil, s.errGetAsRawMap
	}

	return s.rawMap, nil
}

func (s *fakeMongoDBStore) GetBulkAsRawMap(...string) ([]map[string]interface{}, error) {
	if s.errGetBulk != nil {
		return nil, s.errGetBulk
	}

	return s.bulkRawMaps, nil
}

func (s *fakeMongoDBStore) QueryCustom(interface{}, ...*mongoopts.FindOptions) (mongodb.Iterator, error) {
	if s.errQueryCustom != nil {
		return nil, s.errQueryCustom
	}

	return s.queryIterator, nil
}

func (s *fakeMongoDBStore) CreateMongoDBFindOptions([]storage.QueryOption, bool) *mongoopts.FindOptions {
	return &mongoopts.FindOptions{}
}

type fakeMongoDBIterator struct {
	rawMap           map[string]interface{}
	errValueAsRawMap error
}

func (it *fakeMongoDBIterator) Next() (bool, error) {
	return true, nil
}

func (it *fakeMongoDBIterator) Key() (string, error) {
	return "key1", nil
}

func (it *fakeMongoDBIterator) Value() ([]byte, error) {
	return nil, nil
}

func (it *fakeMongoDBIterator) ValueAsRawMap() (map[string]interface{}, error) {
	if it.errValueAsRawMap != nil {
		return nil, it.errValueAsRawMap
	}

	return it.rawMap, nil
}

func (it *fakeMongoDBIterator) Tags() ([]storage.Tag, error) {
	return nil, nil
}

func (it *fakeMongoDBIterator) TotalItems() (int, error) {
	return 1, nil
}

func (it *fakeMongoDBIterator) Close() error {
	return nil
}
