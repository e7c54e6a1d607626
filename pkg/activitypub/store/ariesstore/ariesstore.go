/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ariesstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/store"
)

const (
	activityStoreName   = "activity"
	referenceStoreName  = "activitypub-ref"
	actorStoreName      = "actor"
	objectStoreName     = "object"
	activityTag         = "Activity"
	objectIRITagName    = "ObjectIRI"
	refTypeTagName      = "RefType"
	timeAddedTagName    = "TimeAdded"
	activityTypeTagName = "ActivityType"
)

var logger = log.New("activitypub_store")

// Provider implements an ActivityPub store backed by an Aries storage provider.
type Provider struct {
	serviceName             string
	activityStore           ariesstorage.Store
	referenceStore          ariesstorage.Store
	actorStore              ariesstorage.Store
	objectStore             ariesstorage.Store
	multipleTagQueryCapable bool
}

// New returns a new ActivityPub storage provider.
// If multipleTagQueryCapable is set to true then reference queries can be done using both the
// object IRI and activity type tags at the same time. Right now only the MongoDB provider
// supports this setting.
func New(serviceName string, provider ariesstorage.Provider, multipleTagQueryCapable bool) (*Provider, error) {
	stores, err := openStores(provider)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	return &Provider{
		serviceName:             serviceName,
		activityStore:           stores.activities,
		referenceStore:          stores.reference,
		actorStore:              stores.actor,
		objectStore:             stores.object,
		multipleTagQueryCapable: multipleTagQueryCapable,
	}, nil
}

// PutActor stores the given actor.
func (s *Provider) PutActor(actor *vocab.ActorType) error {
	logger.Debug("Storing actor", logfields.WithServiceName(s.serviceName),
		logfields.WithActorIRI(actor.ID()))

	actorBytes, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("marshal actor: %w", err)
	}

	err = s.actorStore.Put(actor.ID().String(), actorBytes)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store actor: %w", err))
	}

	return nil
}

// GetActor returns the actor for the given IRI. Returns an ErrNotFound error if the actor
// is not in the store.
func (s *Provider) GetActor(iri *url.URL) (*vocab.ActorType, error) {
	actorBytes, err := s.actorStore.Get(iri.String())
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return nil, spi.ErrNotFound
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting actor from store: %w", err))
	}

	var actor vocab.ActorType

	err = json.Unmarshal(actorBytes, &actor)
	if err != nil {
		return nil, fmt.Errorf("unmarshal actor bytes: %w", err)
	}

	return &actor, nil
}

// DeleteActor deletes the actor with the given IRI. Returns an ErrNotFound error if the actor
// is not in the store.
func (s *Provider) DeleteActor(iri *url.URL) error {
	logger.Debug("Deleting actor", logfields.WithServiceName(s.serviceName),
		logfields.WithActorIRI(iri))

	if _, err := s.actorStore.Get(iri.String()); err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return spi.ErrNotFound
		}

		return brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting actor from store: %w", err))
	}

	if err := s.actorStore.Delete(iri.String()); err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete actor: %w", err))
	}

	return nil
}

// PutObject stores the given object.
func (s *Provider) PutObject(obj *vocab.ObjectType) error {
	logger.Debug("Storing object", logfields.WithServiceName(s.serviceName),
		logfields.WithObjectIRI(obj.ID()))

	objBytes, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal object: %w", err)
	}

	err = s.objectStore.Put(obj.ID().String(), objBytes)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store object: %w", err))
	}

	return nil
}

// GetObject returns the object for the given IRI. Returns an ErrNotFound error if the object
// is not in the store.
func (s *Provider) GetObject(iri *url.URL) (*vocab.ObjectType, error) {
	objBytes, err := s.objectStore.Get(iri.String())
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return nil, spi.ErrNotFound
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting object from store: %w", err))
	}

	var obj vocab.ObjectType

	err = json.Unmarshal(objBytes, &obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal object bytes: %w", err)
	}

	return &obj, nil
}

// AddActivity adds the given activity to the activity store. The activity is keyed by its ID,
// so adding an activity with an ID that is already in the store is an idempotent no-op.
func (s *Provider) AddActivity(activity *vocab.ActivityType) error {
	logger.Debug("Storing activity", logfields.WithServiceName(s.serviceName),
		logfields.WithActivityType(activity.Type().String()), logfields.WithActivityID(activity.ID()))

	activityBytes, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	err = s.activityStore.Put(activity.ID().String(), activityBytes,
		ariesstorage.Tag{
			Name: activityTag,
		}, ariesstorage.Tag{
			Name:  timeAddedTagName,
			Value: strconv.FormatInt(time.Now().UnixNano(), 10),
		})
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store activity: %w", err))
	}

	return nil
}

// GetActivity returns the activity for the given ID from the activity store
// or an ErrNotFound error if it wasn't found.
func (s *Provider) GetActivity(activityID *url.URL) (*vocab.ActivityType, error) {
	activityBytes, err := s.activityStore.Get(activityID.String())
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return nil, spi.ErrNotFound
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting activity from store: %w", err))
	}

	var activity vocab.ActivityType

	err = json.Unmarshal(activityBytes, &activity)
	if err != nil {
		return nil, fmt.Errorf("unmarshal activity bytes: %w", err)
	}

	return &activity, nil
}

// QueryActivities queries the activity store using the provided criteria
// and returns a results iterator.
func (s *Provider) QueryActivities(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	logger.Debug("Querying activities", logfields.WithServiceName(s.serviceName),
		logfields.WithQuery(query))

	options := storeutil.GetQueryOptions(opts...)

	if query.ReferenceType != "" && query.ObjectIRI != nil {
		return s.queryActivitiesByRef(query.ReferenceType, query, opts...)
	}

	if len(query.Types) == 0 {
		iterator, err := s.activityStore.Query(activityTag,
			ariesstorage.WithSortOrder(&ariesstorage.SortOptions{
				Order:   ariesstorage.SortOrder(options.SortOrder),
				TagName: timeAddedTagName,
			}),
			ariesstorage.WithPageSize(options.PageSize),
			ariesstorage.WithInitialPageNum(options.PageNumber))
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("query store: %w", err))
		}

		return &activityIterator{ariesIterator: iterator}, nil
	}

	return nil, errors.New("unsupported query criteria")
}

// AddReference adds the reference of the given type to the given object. The reference is
// keyed by (type, object IRI, reference IRI), so adding a reference that already exists is
// an idempotent no-op.
func (s *Provider) AddReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL,
	refMetaDataOpts ...spi.RefMetadataOpt) error {
	logger.Debug("Adding reference", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithObjectIRI(objectIRI),
		logfields.WithReferenceIRI(referenceIRI))

	refKey := getRefKey(refType, objectIRI, referenceIRI)

	_, err := s.referenceStore.Get(refKey)
	if err == nil {
		// Already added. Leave the existing entry alone so that the original
		// time-added ordering is preserved.
		return nil
	}

	if !errors.Is(err, ariesstorage.ErrDataNotFound) {
		return brocaerrors.NewTransient(fmt.Errorf("unexpected failure while checking for existing reference: %w", err))
	}

	valueBytes, err := json.Marshal(referenceIRI.String())
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tags := determineTags(refType, objectIRI, refMetaDataOpts)

	err = s.referenceStore.Put(refKey, valueBytes, tags...)
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("store reference: %w", err))
	}

	return nil
}

// DeleteReference deletes the reference of the given type from the given object.
func (s *Provider) DeleteReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	logger.Debug("Deleting reference", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithObjectIRI(objectIRI),
		logfields.WithReferenceIRI(referenceIRI))

	err := s.referenceStore.Delete(getRefKey(refType, objectIRI, referenceIRI))
	if err != nil {
		return brocaerrors.NewTransient(fmt.Errorf("delete reference: %w", err))
	}

	return nil
}

// QueryReferences returns the list of references of the given type according to the given query.
func (s *Provider) QueryReferences(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ReferenceIterator, error) {
	logger.Debug("Querying references", logfields.WithServiceName(s.serviceName),
		logfields.WithReferenceType(string(refType)), logfields.WithQuery(query))

	if query.ObjectIRI == nil {
		return nil, fmt.Errorf("object IRI is required")
	}

	options := storeutil.GetQueryOptions(opts...)

	// If no reference IRI is set then grab all references associated with the object IRI.
	if query.ReferenceIRI == nil {
		queryExpression, err := s.generateQueryExpression(refType, query)
		if err != nil {
			return nil, err
		}

		iterator, errQuery := s.referenceStore.Query(
			queryExpression,
			ariesstorage.WithSortOrder(&ariesstorage.SortOptions{
				Order:   ariesstorage.SortOrder(options.SortOrder),
				TagName: timeAddedTagName,
			}),
			ariesstorage.WithPageSize(options.PageSize),
			ariesstorage.WithInitialPageNum(options.PageNumber),
		)
		if errQuery != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("query store: %w", errQuery))
		}

		return &referenceIterator{ariesIterator: iterator}, nil
	}

	// Otherwise only grab the reference associated with the object IRI and reference IRI.
	retrievedURLBytes, err := s.referenceStore.Get(getRefKey(refType, query.ObjectIRI, query.ReferenceIRI))
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return memstore.NewReferenceIterator(nil, 0), nil
		}

		return nil, brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting reference: %w", err))
	}

	var urlStr string

	err = json.Unmarshal(retrievedURLBytes, &urlStr)
	if err != nil {
		return nil, fmt.Errorf("unmarshal URL: %w", err)
	}

	retrievedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("parse URL from storage: %w", err)
	}

	return memstore.NewReferenceIterator([]*url.URL{retrievedURL}, 1), nil
}

func (s *Provider) queryActivitiesByRef(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	iterator, err := s.QueryReferences(refType, query, opts...)
	if err != nil {
		return nil, err
	}

	options := storeutil.GetQueryOptions(opts...)

	refs, err := storeutil.ReadReferences(iterator, options.PageSize)
	if err != nil {
		return nil, err
	}

	// The total item count from the activity iterator should reflect the total items from the
	// original reference query, regardless of page settings.
	totalItems, err := iterator.TotalItems()
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("get total items from reference iterator: %w", err))
	}

	if len(refs) == 0 {
		return memstore.NewActivityIterator(nil, totalItems), nil
	}

	activityIDs := make([]string, len(refs))

	for i, ref := range refs {
		activityIDs[i] = ref.String()
	}

	activitiesBytes, err := s.activityStore.GetBulk(activityIDs...)
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("unexpected failure while getting activities: %w", err))
	}

	var activities []*vocab.ActivityType

	for _, activityBytes := range activitiesBytes {
		if activityBytes != nil {
			var activity vocab.ActivityType

			err = json.Unmarshal(activityBytes, &activity)
			if err != nil {
				return nil, fmt.Errorf("unmarshal activity bytes: %w", err)
			}

			activities = append(activities, &activity)
		}
	}

	return memstore.NewActivityIterator(activities, totalItems), nil
}

type activityIterator struct {
	ariesIterator ariesstorage.Iterator
}

func (a *activityIterator) TotalItems() (int, error) {
	return a.ariesIterator.TotalItems()
}

func (a *activityIterator) Next() (*vocab.ActivityType, error) {
	areMoreResults, err := a.ariesIterator.Next()
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("determine if there are more results: %w", err))
	}

	if areMoreResults {
		activityBytes, err := a.ariesIterator.Value()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get value: %w", err))
		}

		var activity vocab.ActivityType

		err = json.Unmarshal(activityBytes, &activity)
		if err != nil {
			return nil, fmt.Errorf("unmarshal activity bytes: %w", err)
		}

		return &activity, nil
	}

	return nil, spi.ErrNotFound
}

func (a *activityIterator) Close() error {
	return a.ariesIterator.Close()
}

type referenceIterator struct {
	ariesIterator ariesstorage.Iterator
}

func (r *referenceIterator) TotalItems() (int, error) {
	return r.ariesIterator.TotalItems()
}

func (r *referenceIterator) Next() (*url.URL, error) {
	areMoreResults, err := r.ariesIterator.Next()
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("determine if there are more results: %w", err))
	}

	if areMoreResults {
		urlBytes, err := r.ariesIterator.Value()
		if err != nil {
			return nil, brocaerrors.NewTransient(fmt.Errorf("get value: %w", err))
		}

		var urlStr string

		err = json.Unmarshal(urlBytes, &urlStr)
		if err != nil {
			return nil, fmt.Errorf("unmarshal URL: %w", err)
		}

		retrievedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored value as a URL: %w", err)
		}

		return retrievedURL, nil
	}

	return nil, spi.ErrNotFound
}

func (r *referenceIterator) Close() error {
	return r.ariesIterator.Close()
}

type stores struct {
	activities ariesstorage.Store
	reference  ariesstorage.Store
	actor      ariesstorage.Store
	object     ariesstorage.Store
}

func openStores(provider ariesstorage.Provider) (stores, error) {
	activityStore, err := store.Open(provider, activityStoreName,
		store.NewTagGroup(activityTag, timeAddedTagName),
	)
	if err != nil {
		return stores{}, fmt.Errorf("open activity store: %w", err)
	}

	referenceStore, err := store.Open(provider, referenceStoreName,
		store.NewTagGroup(refTypeTagName, objectIRITagName, timeAddedTagName),
		store.NewTagGroup(refTypeTagName, objectIRITagName, activityTypeTagName),
	)
	if err != nil {
		return stores{}, fmt.Errorf("open reference store: %w", err)
	}

	actorStore, err := store.Open(provider, actorStoreName)
	if err != nil {
		return stores{}, fmt.Errorf("open actor store: %w", err)
	}

	objectStore, err := store.Open(provider, objectStoreName)
	if err != nil {
		return stores{}, fmt.Errorf("open object store: %w", err)
	}

	return stores{
		activities: activityStore,
		reference:  referenceStore,
		actor:      actorStore,
		object:     objectStore,
	}, nil
}

func determineTags(refType spi.ReferenceType, objectIRI *url.URL,
	refMetaDataOpts []spi.RefMetadataOpt) []ariesstorage.Tag {
	refMetadata := storeutil.GetRefMetadata(refMetaDataOpts...)

	tags := []ariesstorage.Tag{
		{
			Name:  refTypeTagName,
			Value: string(refType),
		},
		{
			Name:  objectIRITagName,
			Value: base64.RawStdEncoding.EncodeToString([]byte(objectIRI.String())),
		},
		{
			Name:  timeAddedTagName,
			Value: strconv.FormatInt(time.Now().UnixNano(), 10),
		},
	}

	if refMetadata.ActivityType != "" {
		tags = append(tags, ariesstorage.Tag{Name: activityTypeTagName, Value: string(refMetadata.ActivityType)})
	}

	return tags
}

func (s *Provider) generateQueryExpression(refType spi.ReferenceType, query *spi.Criteria) (string, error) {
	if !s.multipleTagQueryCapable {
		return "", errors.New("cannot run query since the underlying storage provider does not support " +
			"querying with multiple tags")
	}

	queryExpression := fmt.Sprintf("%s:%s&&%s:%s", refTypeTagName, refType, objectIRITagName,
		base64.RawStdEncoding.EncodeToString([]byte(query.ObjectIRI.String())))

	if len(query.Types) > 0 {
		queryExpression += fmt.Sprintf("&&%s:%s", activityTypeTagName, query.Types[0])
	}

	return queryExpression, nil
}

func getRefKey(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) string {
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(string(refType)), objectIRI, referenceIRI)
}
