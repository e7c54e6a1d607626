/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
	"time"
)

// Options holds all of the options for building an ActivityPub object.
type Options struct {
	Context      []Context
	ID           *url.URL
	To           []*url.URL
	CC           []*url.URL
	Published    *time.Time
	Updated      *time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	Types        []Type
	AttributedTo *url.URL
	InReplyTo    *url.URL
	URL          []*url.URL
	MediaType    string
	Name         string
	Content      string
	Summary      string
	Attachment   []*ObjectProperty
	Tag          []*TagProperty

	TotalItems int
	Current    *url.URL
	First      *url.URL
	Last       *url.URL
	PartOf     *url.URL
	Next       *url.URL
	Prev       *url.URL

	Actor  *url.URL
	Target *ObjectProperty

	ObjectPropertyOptions
	ActorOptions
}

// Opt is an option for an object, activity, etc.
type Opt func(opts *Options)

// NewOptions returns an Options struct which is populated with the provided options.
func NewOptions(opts ...Opt) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func getContexts(options *Options, contexts ...Context) []Context {
	return append(contexts, options.Context...)
}

// WithContext sets the 'context' property on the object.
func WithContext(context ...Context) Opt {
	return func(opts *Options) {
		opts.Context = context
	}
}

// WithID sets the 'id' property on the object.
func WithID(id *url.URL) Opt {
	return func(opts *Options) {
		opts.ID = id
	}
}

// WithTo sets the 'to' property on the object.
func WithTo(to ...*url.URL) Opt {
	return func(opts *Options) {
		opts.To = append(opts.To, to...)
	}
}

// WithCC sets the 'cc' property on the object.
func WithCC(cc ...*url.URL) Opt {
	return func(opts *Options) {
		opts.CC = append(opts.CC, cc...)
	}
}

// WithType sets the 'type' property on the object.
func WithType(t ...Type) Opt {
	return func(opts *Options) {
		opts.Types = t
	}
}

// WithPublishedTime sets the 'published' property on the object.
func WithPublishedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Published = t
	}
}

// WithUpdatedTime sets the 'updated' property on the object.
func WithUpdatedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Updated = t
	}
}

// WithStartTime sets the 'startTime' property on the object.
func WithStartTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.StartTime = t
	}
}

// WithEndTime sets the 'endTime' property on the object.
func WithEndTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.EndTime = t
	}
}

// WithAttributedTo sets the 'attributedTo' property on the object.
func WithAttributedTo(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.AttributedTo = iri
	}
}

// WithInReplyTo sets the 'inReplyTo' property on the object.
func WithInReplyTo(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.InReplyTo = iri
	}
}

// WithURL sets the 'url' property on the object.
func WithURL(u ...*url.URL) Opt {
	return func(opts *Options) {
		opts.URL = append(opts.URL, u...)
	}
}

// WithMediaType sets the 'mediaType' property on the object.
func WithMediaType(mediaType string) Opt {
	return func(opts *Options) {
		opts.MediaType = mediaType
	}
}

// WithName sets the 'name' property on the object.
func WithName(name string) Opt {
	return func(opts *Options) {
		opts.Name = name
	}
}

// WithContent sets the 'content' property on the object.
func WithContent(content string) Opt {
	return func(opts *Options) {
		opts.Content = content
	}
}

// WithSummary sets the 'summary' property on the object.
func WithSummary(summary string) Opt {
	return func(opts *Options) {
		opts.Summary = summary
	}
}

// WithAttachment sets the 'attachment' property on the object.
func WithAttachment(attachment ...*ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Attachment = append(opts.Attachment, attachment...)
	}
}

// WithTag sets the 'tag' property on the object.
func WithTag(tag ...*TagProperty) Opt {
	return func(opts *Options) {
		opts.Tag = append(opts.Tag, tag...)
	}
}

// WithTotalItems sets the 'totalItems' property on a collection.
func WithTotalItems(totalItems int) Opt {
	return func(opts *Options) {
		opts.TotalItems = totalItems
	}
}

// WithCurrent sets the 'current' property on a collection.
func WithCurrent(current *url.URL) Opt {
	return func(opts *Options) {
		opts.Current = current
	}
}

// WithFirst sets the 'first' property on a collection.
func WithFirst(first *url.URL) Opt {
	return func(opts *Options) {
		opts.First = first
	}
}

// WithLast sets the 'last' property on a collection.
func WithLast(last *url.URL) Opt {
	return func(opts *Options) {
		opts.Last = last
	}
}

// WithPartOf sets the 'partOf' property on a collection page.
func WithPartOf(partOf *url.URL) Opt {
	return func(opts *Options) {
		opts.PartOf = partOf
	}
}

// WithNext sets the 'next' property on a collection page.
func WithNext(next *url.URL) Opt {
	return func(opts *Options) {
		opts.Next = next
	}
}

// WithPrev sets the 'prev' property on a collection page.
func WithPrev(prev *url.URL) Opt {
	return func(opts *Options) {
		opts.Prev = prev
	}
}

// WithActor sets the 'actor' property on an activity.
func WithActor(actor *url.URL) Opt {
	return func(opts *Options) {
		opts.Actor = actor
	}
}

// WithTarget sets the 'target' property on an activity.
func WithTarget(target *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Target = target
	}
}

// ObjectPropertyOptions holds options for an 'object' property.
type ObjectPropertyOptions struct {
	Iri      *url.URL
	Object   *ObjectType
	Activity *ActivityType
	Link     *LinkType
}

// WithIRI sets the 'object' property to an IRI.
func WithIRI(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.Iri = iri
	}
}

// WithObject sets the 'object' property to an embedded object.
func WithObject(obj *ObjectType) Opt {
	return func(opts *Options) {
		opts.Object = obj
	}
}

// WithActivity sets the 'object' property to an embedded activity.
func WithActivity(activity *ActivityType) Opt {
	return func(opts *Options) {
		opts.Activity = activity
	}
}

// WithLink sets the property to a link.
func WithLink(link *LinkType) Opt {
	return func(opts *Options) {
		opts.Link = link
	}
}

// ActorOptions holds options for an 'actor'.
type ActorOptions struct {
	PublicKey         *PublicKeyType
	Inbox             *url.URL
	Outbox            *url.URL
	Followers         *url.URL
	Following         *url.URL
	Liked             *url.URL
	Shares            *url.URL
	SharedInbox       *url.URL
	PreferredUsername string
	Owner             *url.URL
	PublicKeyPem      string
	Collections       map[string]string
}

// WithPublicKey sets the 'publicKey' property on the actor.
func WithPublicKey(publicKey *PublicKeyType) Opt {
	return func(opts *Options) {
		opts.PublicKey = publicKey
	}
}

// WithInbox sets the 'inbox' property on the actor.
func WithInbox(inbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Inbox = inbox
	}
}

// WithOutbox sets the 'outbox' property on the actor.
func WithOutbox(outbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithFollowers sets the 'followers' property on the actor.
func WithFollowers(followers *url.URL) Opt {
	return func(opts *Options) {
		opts.Followers = followers
	}
}

// WithFollowing sets the 'following' property on the actor.
func WithFollowing(following *url.URL) Opt {
	return func(opts *Options) {
		opts.Following = following
	}
}

// WithLiked sets the 'liked' property on the actor.
func WithLiked(liked *url.URL) Opt {
	return func(opts *Options) {
		opts.Liked = liked
	}
}

// WithShares sets the 'shares' property on the actor.
func WithShares(shares *url.URL) Opt {
	return func(opts *Options) {
		opts.Shares = shares
	}
}

// WithSharedInbox sets the 'sharedInbox' endpoint on the actor.
func WithSharedInbox(sharedInbox *url.URL) Opt {
	return func(opts *Options) {
		opts.SharedInbox = sharedInbox
	}
}

// WithPreferredUsername sets the 'preferredUsername' property on the actor.
func WithPreferredUsername(username string) Opt {
	return func(opts *Options) {
		opts.PreferredUsername = username
	}
}

// WithOwner sets the 'owner' property on a public key.
func WithOwner(owner *url.URL) Opt {
	return func(opts *Options) {
		opts.Owner = owner
	}
}

// WithPublicKeyPem sets the 'publicKeyPem' property on a public key.
func WithPublicKeyPem(pem string) Opt {
	return func(opts *Options) {
		opts.PublicKeyPem = pem
	}
}

// WithCollections sets the 'broca:collections' property on the actor.
func WithCollections(collections map[string]string) Opt {
	return func(opts *Options) {
		opts.Collections = collections
	}
}
