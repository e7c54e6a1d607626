/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"errors"
	"net/url"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// ErrNotFound is returned from various store functions when a requested
// object is not found in the store.
var ErrNotFound = errors.New("not found in ActivityPub store")

// ReferenceType defines the type of reference, e.g. follower, following, etc.
type ReferenceType string

const (
	// Inbox indicates that the reference is an activity in an actor's inbox.
	Inbox ReferenceType = "INBOX"
	// Outbox indicates that the reference is an activity in an actor's outbox.
	Outbox ReferenceType = "OUTBOX"
	// PublicOutbox indicates that the reference is a public activity in an actor's outbox.
	PublicOutbox ReferenceType = "PUBLIC_OUTBOX"
	// Follower indicates that the reference is an actor that's following the local actor.
	Follower ReferenceType = "FOLLOWER"
	// Following indicates that the reference is an actor that the local actor is following.
	Following ReferenceType = "FOLLOWING"
	// Liked indicates that the reference is a 'Like' activity that was posted by the local actor.
	Liked ReferenceType = "LIKED"
	// Like indicates that the reference is a 'Like' activity that was received for one of the
	// local actor's objects.
	Like ReferenceType = "LIKE"
	// Share indicates that the reference is an 'Announce' activity. The object IRI is either an
	// actor (announces posted by the actor) or an object (announces received for the object).
	Share ReferenceType = "SHARE"
	// Reply indicates that the reference is an object that was posted in reply to another object.
	Reply ReferenceType = "REPLY"
)

// Store defines the functions of an ActivityPub store.
type Store interface {
	// PutActor stores the given actor.
	PutActor(actor *vocab.ActorType) error
	// GetActor returns the actor for the given IRI. Returns an ErrNotFound error if the actor is not in the store.
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
	// DeleteActor deletes the actor with the given IRI. Returns an ErrNotFound error if the actor
	// is not in the store.
	DeleteActor(actorIRI *url.URL) error
	// PutObject stores the given object.
	PutObject(obj *vocab.ObjectType) error
	// GetObject returns the object for the given IRI. Returns an ErrNotFound error if the object is not in the store.
	GetObject(objectIRI *url.URL) (*vocab.ObjectType, error)
	// AddActivity adds the given activity to the activity store.
	AddActivity(activity *vocab.ActivityType) error
	// GetActivity returns the activity for the given ID from the activity store
	// or an ErrNotFound error if it wasn't found.
	GetActivity(activityIRI *url.URL) (*vocab.ActivityType, error)
	// QueryActivities queries the activity store using the provided criteria
	// and returns a results iterator.
	QueryActivities(query *Criteria, opts ...QueryOpt) (ActivityIterator, error)
	// AddReference adds the reference of the given type to the given object.
	AddReference(refType ReferenceType, objectIRI *url.URL, referenceIRI *url.URL,
		refMetaDataOpts ...RefMetadataOpt) error
	// DeleteReference deletes the reference of the given type from the given object.
	DeleteReference(refType ReferenceType, objectIRI *url.URL, referenceIRI *url.URL) error
	// QueryReferences returns the list of references of the given type according to the given query.
	QueryReferences(refType ReferenceType, query *Criteria, opts ...QueryOpt) (ReferenceIterator, error)
}

// SortOrder specifies the sort order of query results.
type SortOrder int

const (
	// SortAscending indicates that the query results must be sorted in ascending order.
	SortAscending SortOrder = iota
	// SortDescending indicates that the query results must be sorted in descending order.
	SortDescending
)

// Criteria holds the search criteria for a query.
type Criteria struct {
	Types         []vocab.Type
	ReferenceType ReferenceType
	ObjectIRI     *url.URL
	ReferenceIRI  *url.URL
}

// CriteriaOpt sets a Criteria option.
type CriteriaOpt func(q *Criteria)

// NewCriteria returns new Criteria which may be used to perform a query.
func NewCriteria(opts ...CriteriaOpt) *Criteria {
	q := &Criteria{}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// WithType sets the object Type on the criteria.
func WithType(t ...vocab.Type) CriteriaOpt {
	return func(query *Criteria) {
		query.Types = append(query.Types, t...)
	}
}

// WithReferenceType sets the reference type on the criteria. When specified in an activity
// query, the activities are resolved from the references of the given type.
func WithReferenceType(refType ReferenceType) CriteriaOpt {
	return func(query *Criteria) {
		query.ReferenceType = refType
	}
}

// WithObjectIRI sets the object IRI on the criteria.
func WithObjectIRI(iri *url.URL) CriteriaOpt {
	return func(query *Criteria) {
		query.ObjectIRI = iri
	}
}

// WithReferenceIRI sets the reference IRI on the criteria.
func WithReferenceIRI(iri *url.URL) CriteriaOpt {
	return func(query *Criteria) {
		query.ReferenceIRI = iri
	}
}

// QueryOptions holds the options for a query.
type QueryOptions struct {
	PageNumber int
	PageSize   int
	SortOrder  SortOrder
}

// QueryOpt sets a query option.
type QueryOpt func(options *QueryOptions)

// WithPageSize sets the page size.
func WithPageSize(pageSize int) QueryOpt {
	return func(options *QueryOptions) {
		options.PageSize = pageSize
	}
}

// WithPageNum sets the page number.
func WithPageNum(pageNum int) QueryOpt {
	return func(options *QueryOptions) {
		options.PageNumber = pageNum
	}
}

// WithSortOrder sets the sort order. (Default is ascending.)
func WithSortOrder(sortOrder SortOrder) QueryOpt {
	return func(options *QueryOptions) {
		options.SortOrder = sortOrder
	}
}

// RefMetadata holds additional metadata that is stored with a reference.
type RefMetadata struct {
	ActivityType vocab.Type
}

// RefMetadataOpt sets a reference metadata option.
type RefMetadataOpt func(metadata *RefMetadata)

// WithActivityType sets the activity type of the reference.
func WithActivityType(activityType vocab.Type) RefMetadataOpt {
	return func(metadata *RefMetadata) {
		metadata.ActivityType = activityType
	}
}

// ActivityIterator defines the query results iterator for activity queries.
type ActivityIterator interface {
	// TotalItems returns the total number of items as a result of the query.
	TotalItems() (int, error)
	// Next returns the next activity or an ErrNotFound error if there are no more items.
	Next() (*vocab.ActivityType, error)
	// Close closes the iterator.
	Close() error
}

// ReferenceIterator defines the query results iterator for reference queries.
type ReferenceIterator interface {
	// TotalItems returns the total number of items as a result of the query.
	TotalItems() (int, error)
	// Next returns the next reference or an ErrNotFound error if there are no more items.
	Next() (*url.URL, error)
	// Close closes the iterator.
	Close() error
}
