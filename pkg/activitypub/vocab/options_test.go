/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOptions(t *testing.T) {
	id := MustParseURL("https://example1.com/activities/activity1")

	to1 := MustParseURL("https://example1.com/users/alice")
	to2 := MustParseURL("https://example2.com/users/bob")
	cc1 := MustParseURL("https://example1.com/users/alice/followers")

	attributedTo := MustParseURL("https://example1.com/users/alice")
	inReplyTo := MustParseURL("https://example2.com/users/bob/objects/note0")
	u := MustParseURL("https://example1.com/users/alice/objects/note1.html")

	obj := &ObjectType{}
	activity := &ActivityType{}
	link := NewLink(MustParseURL("https://example1.com/tags/broca"), "tag")
	iri := MustParseURL("https://example1.com/users/alice/objects/note1")
	actor := MustParseURL("https://example1.com/users/alice")
	target := NewObjectProperty(WithIRI(MustParseURL("https://example1.com/users/alice/collections/favourites")))

	first := MustParseURL("https://example1.com/users/alice/outbox?page=0&limit=20")
	last := MustParseURL("https://example1.com/users/alice/outbox?page=3&limit=20")
	current := MustParseURL("https://example1.com/users/alice/outbox?page=1&limit=20")
	partOf := MustParseURL("https://example1.com/users/alice/outbox")
	next := MustParseURL("https://example1.com/users/alice/outbox?page=2&limit=20")
	prev := MustParseURL("https://example1.com/users/alice/outbox?page=0&limit=20")

	inbox := MustParseURL("https://example1.com/users/alice/inbox")
	outbox := MustParseURL("https://example1.com/users/alice/outbox")
	followers := MustParseURL("https://example1.com/users/alice/followers")
	following := MustParseURL("https://example1.com/users/alice/following")
	liked := MustParseURL("https://example1.com/users/alice/liked")
	shares := MustParseURL("https://example1.com/users/alice/shared")
	sharedInbox := MustParseURL("https://example1.com/inbox")
	owner := MustParseURL("https://example1.com/users/alice")

	publicKey := NewPublicKey(
		WithID(MustParseURL("https://example1.com/users/alice#main-key")),
		WithOwner(owner),
		WithPublicKeyPem("pem"),
	)

	collections := map[string]string{
		"favourites": "https://example1.com/users/alice/collections/favourites",
	}

	publishedTime := time.Now()
	updatedTime := time.Now()
	startTime := time.Now()
	endTime := time.Now()

	attachment := NewObjectProperty(WithObject(NewObject(WithType(TypeImage))))
	tag := NewTagProperty(WithLink(link))

	opts := NewOptions(
		WithID(id),
		WithContext(ContextActivityStreams, ContextSecurity),
		WithType(TypeCreate),
		WithTo(to1, to2),
		WithCC(cc1),
		WithPublishedTime(&publishedTime),
		WithUpdatedTime(&updatedTime),
		WithStartTime(&startTime),
		WithEndTime(&endTime),
		WithAttributedTo(attributedTo),
		WithInReplyTo(inReplyTo),
		WithURL(u),
		WithMediaType("text/html"),
		WithName("A note"),
		WithContent("Hello"),
		WithSummary("A summary"),
		WithAttachment(attachment),
		WithTag(tag),
		WithTotalItems(42),
		WithCurrent(current),
		WithFirst(first),
		WithLast(last),
		WithPartOf(partOf),
		WithNext(next),
		WithPrev(prev),
		WithActor(actor),
		WithTarget(target),
		WithIRI(iri),
		WithObject(obj),
		WithActivity(activity),
		WithLink(link),
		WithPublicKey(publicKey),
		WithInbox(inbox),
		WithOutbox(outbox),
		WithFollowers(followers),
		WithFollowing(following),
		WithLiked(liked),
		WithShares(shares),
		WithSharedInbox(sharedInbox),
		WithPreferredUsername("alice"),
		WithOwner(owner),
		WithPublicKeyPem("pem"),
		WithCollections(collections),
	)

	require.NotNil(t, opts)

	require.Equal(t, id, opts.ID)

	require.Len(t, opts.Context, 2)
	require.Equal(t, ContextActivityStreams, opts.Context[0])
	require.Equal(t, ContextSecurity, opts.Context[1])

	require.Len(t, opts.Types, 1)
	require.Equal(t, TypeCreate, opts.Types[0])

	require.Len(t, opts.To, 2)
	require.Equal(t, to1.String(), opts.To[0].String())
	require.Equal(t, to2.String(), opts.To[1].String())

	require.Len(t, opts.CC, 1)
	require.Equal(t, cc1.String(), opts.CC[0].String())

	require.Equal(t, &publishedTime, opts.Published)
	require.Equal(t, &updatedTime, opts.Updated)
	require.Equal(t, &startTime, opts.StartTime)
	require.Equal(t, &endTime, opts.EndTime)

	require.Equal(t, attributedTo.String(), opts.AttributedTo.String())
	require.Equal(t, inReplyTo.String(), opts.InReplyTo.String())

	require.Len(t, opts.URL, 1)
	require.Equal(t, u.String(), opts.URL[0].String())

	require.Equal(t, "text/html", opts.MediaType)
	require.Equal(t, "A note", opts.Name)
	require.Equal(t, "Hello", opts.Content)
	require.Equal(t, "A summary", opts.Summary)

	require.Len(t, opts.Attachment, 1)
	require.Equal(t, attachment, opts.Attachment[0])

	require.Len(t, opts.Tag, 1)
	require.Equal(t, tag, opts.Tag[0])

	require.Equal(t, 42, opts.TotalItems)
	require.Equal(t, current.String(), opts.Current.String())
	require.Equal(t, first.String(), opts.First.String())
	require.Equal(t, last.String(), opts.Last.String())
	require.Equal(t, partOf.String(), opts.PartOf.String())
	require.Equal(t, next.String(), opts.Next.String())
	require.Equal(t, prev.String(), opts.Prev.String())

	require.Equal(t, actor.String(), opts.Actor.String())
	require.Equal(t, target, opts.Target)

	require.Equal(t, iri.String(), opts.Iri.String())
	require.Equal(t, obj, opts.Object)
	require.Equal(t, activity, opts.Activity)
	require.Equal(t, link, opts.Link)

	require.Equal(t, publicKey, opts.PublicKey)
	require.Equal(t, inbox.String(), opts.Inbox.String())
	require.Equal(t, outbox.String(), opts.Outbox.String())
	require.Equal(t, followers.String(), opts.Followers.String())
	require.Equal(t, following.String(), opts.Following.String())
	require.Equal(t, liked.String(), opts.Liked.String())
	require.Equal(t, shares.String(), opts.Shares.String())
	require.Equal(t, sharedInbox.String(), opts.SharedInbox.String())
	require.Equal(t, "alice", opts.PreferredUsername)
	require.Equal(t, owner.String(), opts.Owner.String())
	require.Equal(t, "pem", opts.PublicKeyPem)
	require.Equal(t, collections, opts.Collections)
}
