/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package expiry

import (
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
)

const (
	loggerModule = "expiry-service"
	taskID       = "data-expiry"
)

type expiredDataHandler interface {
	HandleExpiredKeys(keys ...string) error
}

type registeredStore struct {
	store         storage.Store
	expiryTagName string
	name          string
	expiryHandler expiredDataHandler
	logger        *log.Log
}

type taskManager interface {
	RegisterTask(taskID string, interval time.Duration, task func())
}

// Option is an option for a registered store.
type Option func(opts *registeredStore)

// WithExpiryHandler sets an optional handler that is invoked with the keys of expired
// entries before they are deleted.
func WithExpiryHandler(handler expiredDataHandler) Option {
	return func(opts *registeredStore) {
		opts.expiryHandler = handler
	}
}

// Service periodically polls registered stores and removes data past a specified expiration time.
type Service struct {
	registeredStores []registeredStore
	logger           *log.Log
}

// NewService returns a new expiry Service.
// interval is how frequently the service checks for (and deletes) expired data. Shorter intervals will remove
// expired data sooner at the expense of increased resource usage. The task is registered with the given task
// manager, which ensures that it runs on only one server instance in the cluster at any given time.
// You must register each store you want this service to run on using the Register method.
func NewService(taskMgr taskManager, interval time.Duration) *Service {
	s := &Service{
		registeredStores: make([]registeredStore, 0),
		logger:           log.New(loggerModule),
	}

	s.logger.Info("Registering task with task manager",
		logfields.WithTaskID(taskID), logfields.WithInterval(interval))

	taskMgr.RegisterTask(taskID, interval, s.deleteExpiredData)

	return s
}

// Register adds a store to this expiry service.
// store is the store on which to check for expired data.
// expiryTagName is the tag name under which expiry values are stored. The expiry values must be standard
// Unix timestamps.
// storeName is used to identify the store in logs.
func (s *Service) Register(store storage.Store, expiryTagName, storeName string, opts ...Option) {
	newRegisteredStore := registeredStore{
		store:         store,
		expiryTagName: expiryTagName,
		name:          storeName,
		expiryHandler: nil,
		logger:        log.New(loggerModule, log.WithFields(logfields.WithStoreName(storeName))),
	}

	for _, opt := range opts {
		opt(&newRegisteredStore)
	}

	s.registeredStores = append(s.registeredStores, newRegisteredStore)
}

func (s *Service) deleteExpiredData() {
	for _, registeredStore := range s.registeredStores {
		registeredStore.deleteExpiredData()
	}
}

func (r *registeredStore) deleteExpiredData() {
	queryExpression := fmt.Sprintf("%s<=%d", r.expiryTagName, time.Now().Unix())

	r.logger.Debug("Querying for expired data", logfields.WithQuery(queryExpression))

	iterator, err := r.store.Query(queryExpression)
	if err != nil {
		r.logger.Error("Failed to query store for expired data", log.WithError(err))

		return
	}

	defer func() {
		if err := iterator.Close(); err != nil {
			logfields.CloseIteratorError(r.logger, err)
		}
	}()

	var keysToDelete []string

	more, err := iterator.Next()
	if err != nil {
		r.logger.Error("Failed to get next value from iterator", log.WithError(err))

		return
	}

	for more {
		key, errKey := iterator.Key()
		if errKey != nil {
			r.logger.Error("Failed to get key from iterator", log.WithError(errKey))

			return
		}

		keysToDelete = append(keysToDelete, key)

		var errNext error

		more, errNext = iterator.Next()
		if errNext != nil {
			r.logger.Error("Failed to get next value from iterator", log.WithError(errNext))

			return
		}
	}

	if len(keysToDelete) == 0 {
		return
	}

	r.logger.Debug("Found expired data to delete", logfields.WithTotal(len(keysToDelete)))

	if r.expiryHandler != nil {
		if err := r.expiryHandler.HandleExpiredKeys(keysToDelete...); err != nil {
			r.logger.Error("Failed to invoke expiry handler", log.WithError(err))

			return
		}
	}

	operations := make([]storage.Operation, len(keysToDelete))

	for i, key := range keysToDelete {
		operations[i] = storage.Operation{Key: key}
	}

	if err := r.store.Batch(operations); err != nil {
		r.logger.Error("Failed to delete expired data", log.WithError(err))

		return
	}

	r.logger.Debug("Successfully deleted expired data", logfields.WithTotal(len(operations)))
}
