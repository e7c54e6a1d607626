/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// Context defines the object context.
type Context string

const (
	// ContextActivityStreams is the ActivityStreams context.
	ContextActivityStreams Context = "https://www.w3.org/ns/activitystreams"
	// ContextSecurity is the security context.
	ContextSecurity Context = "https://w3id.org/security/v1"
	// ContextBroca is the broca extension context.
	ContextBroca Context = "https://broca-activitypub.org/ns#"
)

const (
	// PublicIRI indicates that the object is public, i.e. it may be viewed by anyone.
	PublicIRI = "https://www.w3.org/ns/activitystreams#Public"
)

// Type indicates the type of the object.
type Type string

const (
	// TypeCollection specifies the 'Collection' object type.
	TypeCollection Type = "Collection"
	// TypeOrderedCollection specifies the 'OrderedCollection' object type.
	TypeOrderedCollection Type = "OrderedCollection"
	// TypeCollectionPage specifies the 'CollectionPage' object type.
	TypeCollectionPage Type = "CollectionPage"
	// TypeOrderedCollectionPage specifies the 'OrderedCollectionPage' object type.
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"

	// TypePerson specifies the 'Person' actor type.
	TypePerson Type = "Person"
	// TypeService specifies the 'Service' actor type.
	TypeService Type = "Service"
	// TypeApplication specifies the 'Application' actor type.
	TypeApplication Type = "Application"
	// TypeGroup specifies the 'Group' actor type.
	TypeGroup Type = "Group"
	// TypeOrganization specifies the 'Organization' actor type.
	TypeOrganization Type = "Organization"

	// TypeCreate specifies the 'Create' activity type.
	TypeCreate Type = "Create"
	// TypeUpdate specifies the 'Update' activity type.
	TypeUpdate Type = "Update"
	// TypeDelete specifies the 'Delete' activity type.
	TypeDelete Type = "Delete"
	// TypeFollow specifies the 'Follow' activity type.
	TypeFollow Type = "Follow"
	// TypeAccept specifies the 'Accept' activity type.
	TypeAccept Type = "Accept"
	// TypeReject specifies the 'Reject' activity type.
	TypeReject Type = "Reject"
	// TypeUndo specifies the 'Undo' activity type.
	TypeUndo Type = "Undo"
	// TypeLike specifies the 'Like' activity type.
	TypeLike Type = "Like"
	// TypeAnnounce specifies the 'Announce' activity type.
	TypeAnnounce Type = "Announce"
	// TypeAdd specifies the 'Add' activity type.
	TypeAdd Type = "Add"
	// TypeRemove specifies the 'Remove' activity type.
	TypeRemove Type = "Remove"

	// TypeNote specifies the 'Note' object type.
	TypeNote Type = "Note"
	// TypeArticle specifies the 'Article' object type.
	TypeArticle Type = "Article"
	// TypeImage specifies the 'Image' object type.
	TypeImage Type = "Image"
	// TypeVideo specifies the 'Video' object type.
	TypeVideo Type = "Video"
	// TypeAudio specifies the 'Audio' object type.
	TypeAudio Type = "Audio"
	// TypeDocument specifies the 'Document' object type.
	TypeDocument Type = "Document"
	// TypeEvent specifies the 'Event' object type.
	TypeEvent Type = "Event"
	// TypeLink specifies the 'Link' type.
	TypeLink Type = "Link"
	// TypeHashtag specifies the 'Hashtag' tag type used by most fediverse servers.
	TypeHashtag Type = "Hashtag"
	// TypeMention specifies the 'Mention' tag type.
	TypeMention Type = "Mention"
	// TypeTombstone specifies the 'Tombstone' object type.
	TypeTombstone Type = "Tombstone"
)

// Broca extension properties.
const (
	// PropertyBrocaCollections advertises an actor's public custom collections.
	PropertyBrocaCollections = "broca:collections"
	// PropertyBrocaAdminOperations advertises an actor's admin capability.
	PropertyBrocaAdminOperations = "broca:adminOperations"
	// PropertyBrocaCollectionDefinition carries a collection definition inside an
	// admin-driven Create activity.
	PropertyBrocaCollectionDefinition = "broca:collectionDefinition"
)

const (
	propertyContext           = "@context"
	propertyID                = "id"
	propertyType              = "type"
	propertyTo                = "to"
	propertyCC                = "cc"
	propertyBTo               = "bto"
	propertyBCC               = "bcc"
	propertyAudience          = "audience"
	propertyPublished         = "published"
	propertyUpdated           = "updated"
	propertyStartTime         = "startTime"
	propertyEndTime           = "endTime"
	propertyActor             = "actor"
	propertyObject            = "object"
	propertyTarget            = "target"
	propertyAttributedTo      = "attributedTo"
	propertyInReplyTo         = "inReplyTo"
	propertyMediaType         = "mediaType"
	propertyURL               = "url"
	propertyName              = "name"
	propertyContent           = "content"
	propertySummary           = "summary"
	propertyAttachment        = "attachment"
	propertyTag               = "tag"
	propertyCurrent           = "current"
	propertyFirst             = "first"
	propertyLast              = "last"
	propertyItems             = "items"
	propertyOrderedItems      = "orderedItems"
	propertyTotalItems        = "totalItems"
	propertyPartOf            = "partOf"
	propertyNext              = "next"
	propertyPrev              = "prev"
	propertyPublicKey         = "publicKey"
	propertyInbox             = "inbox"
	propertyOutbox            = "outbox"
	propertyFollowers         = "followers"
	propertyFollowing         = "following"
	propertyLiked             = "liked"
	propertyShares            = "shares"
	propertyEndpoints         = "endpoints"
	propertyPreferredUsername = "preferredUsername"
)

func reservedProperties() []string {
	return []string{
		propertyContext,
		propertyID,
		propertyType,
		propertyTo,
		propertyCC,
		propertyBTo,
		propertyBCC,
		propertyAudience,
		propertyPublished,
		propertyUpdated,
		propertyStartTime,
		propertyEndTime,
		propertyActor,
		propertyObject,
		propertyTarget,
		propertyAttributedTo,
		propertyInReplyTo,
		propertyMediaType,
		propertyURL,
		propertyName,
		propertyContent,
		propertySummary,
		propertyAttachment,
		propertyTag,
		propertyCurrent,
		propertyFirst,
		propertyLast,
		propertyItems,
		propertyOrderedItems,
		propertyTotalItems,
		propertyPartOf,
		propertyNext,
		propertyPrev,
		propertyPublicKey,
		propertyInbox,
		propertyOutbox,
		propertyFollowers,
		propertyFollowing,
		propertyLiked,
		propertyShares,
		propertyEndpoints,
		propertyPreferredUsername,
	}
}

// Document defines a JSON document as a map.
type Document map[string]interface{}

// MergeWith merges the document with the given document. Any duplicate fields
// in the given document are ignored.
func (doc Document) MergeWith(other Document) {
	for k, v := range other {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
}
