/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package aptestutil contains ActivityPub test utilities.
package aptestutil

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
)

// ServiceOptions are options passed in to NewMockService.
type ServiceOptions struct {
	PublicKey *vocab.PublicKeyType
}

// ServiceOpt is a mock service option.
type ServiceOpt func(options *ServiceOptions)

// WithPublicKey sets the public key on the mock service.
func WithPublicKey(pubKey *vocab.PublicKeyType) ServiceOpt {
	return func(options *ServiceOptions) {
		options.PublicKey = pubKey
	}
}

// NewMockService returns a mock 'Service' type actor with the given IRI and options.
func NewMockService(serviceIRI *url.URL, opts ...ServiceOpt) *vocab.ActorType {
	options := &ServiceOptions{
		PublicKey: NewMockPublicKey(serviceIRI),
	}

	for _, opt := range opts {
		opt(options)
	}

	followers := testutil.NewMockID(serviceIRI, "/followers")
	following := testutil.NewMockID(serviceIRI, "/following")
	inbox := testutil.NewMockID(serviceIRI, "/inbox")
	outbox := testutil.NewMockID(serviceIRI, "/outbox")
	liked := testutil.NewMockID(serviceIRI, "/liked")

	return vocab.NewService(serviceIRI,
		vocab.WithPublicKey(options.PublicKey),
		vocab.WithInbox(inbox),
		vocab.WithOutbox(outbox),
		vocab.WithFollowers(followers),
		vocab.WithFollowing(following),
		vocab.WithLiked(liked),
	)
}

// NewMockPerson returns a mock 'Person' type actor with the given IRI and options.
func NewMockPerson(actorIRI *url.URL, opts ...ServiceOpt) *vocab.ActorType {
	options := &ServiceOptions{
		PublicKey: NewMockPublicKey(actorIRI),
	}

	for _, opt := range opts {
		opt(options)
	}

	return vocab.NewPerson(actorIRI,
		vocab.WithPublicKey(options.PublicKey),
		vocab.WithInbox(testutil.NewMockID(actorIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(actorIRI, "/outbox")),
		vocab.WithFollowers(testutil.NewMockID(actorIRI, "/followers")),
		vocab.WithFollowing(testutil.NewMockID(actorIRI, "/following")),
		vocab.WithLiked(testutil.NewMockID(actorIRI, "/liked")),
	)
}

// NewMockPublicKey returns a mock public key using the given service IRI.
func NewMockPublicKey(serviceIRI *url.URL) *vocab.PublicKeyType {
	const keyPem = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhki....."

	return vocab.NewPublicKey(
		vocab.WithID(testutil.NewMockID(serviceIRI, "/keys/main-key")),
		vocab.WithOwner(serviceIRI),
		vocab.WithPublicKeyPem(keyPem),
	)
}

// NewMockCollection returns a mock 'Collection' with the given ID and items.
func NewMockCollection(id, first, last *url.URL, totalItems int) *vocab.CollectionType {
	return vocab.NewCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithTotalItems(totalItems),
		vocab.WithFirst(first),
		vocab.WithLast(last),
	)
}

// NewMockOrderedCollection returns a mock 'OrderedCollection' with the given ID and items.
func NewMockOrderedCollection(id, first, last *url.URL, totalItems int) *vocab.OrderedCollectionType {
	return vocab.NewOrderedCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithTotalItems(totalItems),
		vocab.WithFirst(first),
		vocab.WithLast(last),
	)
}

// NewMockCollectionPage returns a mock 'CollectionPage' with the given ID and items.
func NewMockCollectionPage(id, next, prev, collID *url.URL, totalItems int,
	items ...*vocab.ObjectProperty) *vocab.CollectionPageType {
	return vocab.NewCollectionPage(items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithPartOf(collID),
		vocab.WithNext(next),
		vocab.WithPrev(prev),
		vocab.WithTotalItems(totalItems),
	)
}

// NewMockOrderedCollectionPage returns a mock 'OrderedCollectionPage' with the given ID and items.
func NewMockOrderedCollectionPage(id, next, prev, collID *url.URL, totalItems int,
	items ...*vocab.ObjectProperty) *vocab.OrderedCollectionPageType {
	return vocab.NewOrderedCollectionPage(items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithPartOf(collID),
		vocab.WithNext(next),
		vocab.WithPrev(prev),
		vocab.WithTotalItems(totalItems),
	)
}

// NewMockNoteObject returns a mock 'Note' object.
func NewMockNoteObject(id *url.URL, content string) *vocab.ObjectType {
	published := time.Now()

	return vocab.NewObject(
		vocab.WithID(id),
		vocab.WithType(vocab.TypeNote),
		vocab.WithContent(content),
		vocab.WithPublishedTime(&published),
	)
}

// NewMockCreateActivities returns the given number of mock 'Create' activities.
func NewMockCreateActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		objIRI := testutil.MustParseURL(fmt.Sprintf("https://example.com/notes/note_%d", i))

		activities[i] = NewMockCreateActivity(
			testutil.MustParseURL(fmt.Sprintf("https://example%d.com/services/actor", i)),
			testutil.MustParseURL(fmt.Sprintf("https://example%d.com/services/actor/followers", i)),
			vocab.NewObjectProperty(vocab.WithObject(
				NewMockNoteObject(objIRI, fmt.Sprintf("Note %d", i)),
			)),
		)
	}

	return activities
}

// NewMockAnnounceActivities returns the given number of mock 'Announce' activities.
func NewMockAnnounceActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		activities[i] = NewMockAnnounceActivity(
			testutil.MustParseURL(fmt.Sprintf("https://example%d.com/services/actor", i)),
			testutil.MustParseURL(fmt.Sprintf("https://example%d.com/services/actor/followers", i)),
			vocab.NewObjectProperty(vocab.WithIRI(
				testutil.MustParseURL(fmt.Sprintf("https://example.com/notes/note_%d", i)),
			)),
		)
	}

	return activities
}

// NewMockCreateActivity returns a new mock Create activity.
func NewMockCreateActivity(actorIRI, toIRI *url.URL, obj *vocab.ObjectProperty) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewCreateActivity(
		obj,
		vocab.WithID(NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithTo(toIRI),
		vocab.WithPublishedTime(&published),
	)
}

// NewMockAnnounceActivity returns a new mock Announce activity.
func NewMockAnnounceActivity(actorIRI, toIRI *url.URL, obj *vocab.ObjectProperty) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewAnnounceActivity(
		obj,
		vocab.WithID(NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithTo(toIRI),
		vocab.WithPublishedTime(&published),
	)
}

// NewMockFollowActivity returns a new mock Follow activity.
func NewMockFollowActivity(actorIRI, targetIRI *url.URL) *vocab.ActivityType {
	return vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(targetIRI)),
		vocab.WithID(NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithTo(targetIRI),
	)
}

// NewMockLikeActivities returns the given number of mock 'Like' activities.
func NewMockLikeActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		activities[i] = NewMockLikeActivity(
			fmt.Sprintf("https://example.com/activities/like_%d", i),
			fmt.Sprintf("https://example.com/notes/note_%d", i),
		)
	}

	return activities
}

// NewMockLikeActivity returns a mock 'Like' activity.
func NewMockLikeActivity(id, objID string) *vocab.ActivityType {
	return vocab.NewLikeActivity(
		vocab.NewObjectProperty(
			vocab.WithIRI(testutil.MustParseURL(objID)),
		),
		vocab.WithID(testutil.MustParseURL(id)),
	)
}

// NewActivityID returns an 'activities' ID with a base of the given ID.
func NewActivityID(id fmt.Stringer) *url.URL {
	return testutil.NewMockID(id, fmt.Sprintf("/activities/%s", uuid.New().String()))
}
