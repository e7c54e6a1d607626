/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

var logger = log.New("activitypub_memstore")

// Store implements an in-memory ActivityPub store.
type Store struct {
	serviceName     string
	activityStore   *activityStore
	objectStore     map[string]*vocab.ObjectType
	referenceStores map[spi.ReferenceType]*referenceStore
	actorStore      map[string]*vocab.ActorType
	mutex           sync.RWMutex
}

// New returns a new in-memory ActivityPub store.
func New(serviceName string) *Store {
	return &Store{
		serviceName:   serviceName,
		activityStore: newActivityStore(),
		objectStore:   make(map[string]*vocab.ObjectType),
		referenceStores: map[spi.ReferenceType]*referenceStore{
			spi.Inbox:        newReferenceStore(),
			spi.Outbox:       newReferenceStore(),
			spi.PublicOutbox: newReferenceStore(),
			spi.Follower:     newReferenceStore(),
			spi.Following:    newReferenceStore(),
			spi.Like:         newReferenceStore(),
			spi.Liked:        newReferenceStore(),
			spi.Share:        newReferenceStore(),
			spi.Reply:        newReferenceStore(),
		},
		actorStore: make(map[string]*vocab.ActorType),
	}
}

// PutActor stores the given actor.
func (s *Store) PutActor(actor *vocab.ActorType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.Debug("Storing actor", logfields.WithServiceName(s.serviceName),
		logfields.WithActorIRI(actor.ID()))

	s.actorStore[actor.ID().String()] = actor

	return nil
}

// GetActor returns the actor for the given IRI. Returns an ErrNotFound error
// if the actor is not in the store.
func (s *Store) GetActor(iri *url.URL) (*vocab.ActorType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	a, ok := s.actorStore[iri.String()]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return a, nil
}

// DeleteActor deletes the given actor. Returns an ErrNotFound error
// if the actor is not in the store.
func (s *Store) DeleteActor(iri *url.URL) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.Debug("Deleting actor", logfields.WithServiceName(s.serviceName),
		logfields.WithActorIRI(iri))

	if _, ok := s.actorStore[iri.String()]; !ok {
		return spi.ErrNotFound
	}

	delete(s.actorStore, iri.String())

	return nil
}

// PutObject stores the given object.
func (s *Store) PutObject(obj *vocab.ObjectType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.Debug("Storing object", logfields.WithServiceName(s.serviceName),
		logfields.WithObjectIRI(obj.ID()))

	s.objectStore[obj.ID().String()] = obj

	return nil
}

// GetObject returns the object for the given IRI. Returns an ErrNotFound error
// if the object is not in the store.
func (s *Store) GetObject(iri *url.URL) (*vocab.ObjectType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	o, ok := s.objectStore[iri.String()]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return o, nil
}

// AddActivity adds the given activity to the activity store. Adding an activity
// with an ID that is already in the store is an idempotent no-op.
func (s *Store) AddActivity(activity *vocab.ActivityType) error {
	logger.Debug("Storing activity", logfields.WithServiceName(s.serviceName),
		logfields.WithActivityType(activity.Type().String()), logfields.WithActivityID(activity.ID()))

	return s.activityStore.add(activity)
}

// GetActivity returns the activity for the given ID from the activity store
// or an ErrNotFound error if it wasn't found.
func (s *Store) GetActivity(activityID *url.URL) (*vocab.ActivityType, error) {
	return s.activityStore.get(activityID.String())
}

// QueryActivities queries the activity store using the provided criteria
// and returns a results iterator.
func (s *Store) QueryActivities(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	logger.Debug("Querying activities", logfields.WithServiceName(s.serviceName),
		logfields.WithQuery(query))

	if query.ReferenceType != "" && query.ObjectIRI != nil {
		return s.queryActivitiesByRef(query.ReferenceType, query, opts...)
	}

	return s.activityStore.query(query, opts...)
}

// AddReference adds the reference of the given type to the given object.
// Adding a reference that already exists is an idempotent no-op.
func (s *Store) AddReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL,
	refMetaDataOpts ...spi.RefMetadataOpt) error {
	logger.Debug("Adding reference", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithObjectIRI(objectIRI),
		logfields.WithReferenceIRI(referenceIRI))

	refStore, err := s.refStore(refType)
	if err != nil {
		return err
	}

	return refStore.add(objectIRI, referenceIRI, storeutil.GetRefMetadata(refMetaDataOpts...))
}

// DeleteReference deletes the reference of the given type from the given object.
func (s *Store) DeleteReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	logger.Debug("Deleting reference", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithObjectIRI(objectIRI),
		logfields.WithReferenceIRI(referenceIRI))

	refStore, err := s.refStore(refType)
	if err != nil {
		return err
	}

	return refStore.delete(objectIRI, referenceIRI)
}

// QueryReferences returns the list of references of the given type according to the given query.
func (s *Store) QueryReferences(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ReferenceIterator, error) {
	logger.Debug("Querying references", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithQuery(query))

	if query.ObjectIRI == nil {
		return nil, fmt.Errorf("object IRI is required")
	}

	refStore, err := s.refStore(refType)
	if err != nil {
		return nil, err
	}

	refs, totalItems := refStore.query(query, opts...)

	return NewReferenceIterator(refs, totalItems), nil
}

func (s *Store) refStore(refType spi.ReferenceType) (*referenceStore, error) {
	refStore, ok := s.referenceStores[refType]
	if !ok {
		return nil, fmt.Errorf("unsupported reference type [%s]", refType)
	}

	return refStore, nil
}

func (s *Store) queryActivitiesByRef(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	it, err := s.QueryReferences(refType, query, opts...)
	if err != nil {
		return nil, err
	}

	options := storeutil.GetQueryOptions(opts...)

	refs, err := storeutil.ReadReferences(it, options.PageSize)
	if err != nil {
		return nil, err
	}

	// The total item count from the activity iterator reflects the total items
	// from the original reference query, regardless of page settings.
	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, err
	}

	activities := make([]*vocab.ActivityType, 0, len(refs))

	for _, ref := range refs {
		a, err := s.activityStore.get(ref.String())
		if err != nil {
			if err == spi.ErrNotFound {
				continue
			}

			return nil, err
		}

		activities = append(activities, a)
	}

	return NewActivityIterator(activities, totalItems), nil
}

type activityStore struct {
	mutex        sync.RWMutex
	activities   []*vocab.ActivityType
	activityByID map[string]*vocab.ActivityType
}

func newActivityStore() *activityStore {
	return &activityStore{
		activityByID: make(map[string]*vocab.ActivityType),
	}
}

func (s *activityStore) add(activity *vocab.ActivityType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.activityByID[activity.ID().String()]; ok {
		// Already stored.
		return nil
	}

	s.activities = append(s.activities, activity)
	s.activityByID[activity.ID().String()] = activity

	return nil
}

func (s *activityStore) get(activityID string) (*vocab.ActivityType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	a, ok := s.activityByID[activityID]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return a, nil
}

func (s *activityStore) query(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	results, totalItems := activityQueryResults(s.activities).filter(query, opts...)

	return NewActivityIterator(results, totalItems), nil
}

type reference struct {
	iri          *url.URL
	activityType vocab.Type
}

type referenceStore struct {
	refsByObject map[string][]*reference
	mutex        sync.RWMutex
}

func newReferenceStore() *referenceStore {
	return &referenceStore{
		refsByObject: make(map[string][]*reference),
	}
}

func (s *referenceStore) add(objectIRI fmt.Stringer, iri *url.URL, metadata *spi.RefMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	objectID := objectIRI.String()

	for _, ref := range s.refsByObject[objectID] {
		if ref.iri.String() == iri.String() {
			// Already added.
			return nil
		}
	}

	s.refsByObject[objectID] = append(s.refsByObject[objectID],
		&reference{iri: iri, activityType: metadata.ActivityType})

	return nil
}

func (s *referenceStore) delete(objectIRI, iri fmt.Stringer) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	refs := s.refsByObject[objectIRI.String()]

	for i, ref := range refs {
		if ref.iri.String() == iri.String() {
			s.refsByObject[objectIRI.String()] = append(refs[0:i], refs[i+1:]...)

			return nil
		}
	}

	return spi.ErrNotFound
}

func (s *referenceStore) query(query *spi.Criteria, opts ...spi.QueryOpt) ([]*url.URL, int) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	options := storeutil.GetQueryOptions(opts...)

	var results []*url.URL

	for _, ref := range s.refsByObject[query.ObjectIRI.String()] {
		if query.ReferenceIRI != nil && ref.iri.String() != query.ReferenceIRI.String() {
			continue
		}

		if len(query.Types) > 0 && !containsType(query.Types, ref.activityType) {
			continue
		}

		results = append(results, ref.iri)
	}

	if options.SortOrder == spi.SortDescending {
		reverseSort(results)
	}

	totalItems := len(results)

	startIdx := getStartIndex(totalItems, options)
	if startIdx == -1 {
		return nil, totalItems
	}

	return results[startIdx:], totalItems
}

type activityQueryFilter struct {
	*spi.Criteria
}

func newQueryFilter(query *spi.Criteria) *activityQueryFilter {
	return &activityQueryFilter{
		Criteria: query,
	}
}

func (q *activityQueryFilter) apply(activities []*vocab.ActivityType) []*vocab.ActivityType {
	var results []*vocab.ActivityType

	for _, a := range activities {
		if len(q.Types) == 0 || a.Type().IsAny(q.Types...) {
			results = append(results, a)
		}
	}

	return results
}

type activityQueryResults []*vocab.ActivityType

func (r activityQueryResults) filter(query *spi.Criteria, opts ...spi.QueryOpt) ([]*vocab.ActivityType, int) {
	results := newQueryFilter(query).apply(r)

	options := storeutil.GetQueryOptions(opts...)

	if options.SortOrder == spi.SortDescending {
		reverseSort(results)
	}

	totalItems := len(results)

	startIdx := getStartIndex(totalItems, options)
	if startIdx == -1 {
		return nil, totalItems
	}

	return results[startIdx:], totalItems
}

// getStartIndex returns the start index of the page given by the query options,
// where page 0 is the first page of results in the requested sort order. A return
// value of -1 indicates that the page is out of range.
func getStartIndex(totalItems int, options *spi.QueryOptions) int {
	if options.PageSize <= 0 || options.PageNumber < 0 {
		return 0
	}

	startIdx := options.PageNumber * options.PageSize
	if startIdx >= totalItems {
		return -1
	}

	return startIdx
}

func containsType(types []vocab.Type, t vocab.Type) bool {
	for _, tt := range types {
		if tt == t {
			return true
		}
	}

	return false
}

func reverseSort[T any](results []T) {
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
}
