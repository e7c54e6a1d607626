/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// PublicKeyType defines a public key object.
type PublicKeyType struct {
	ID           *URLProperty `json:"id"`
	Owner        *URLProperty `json:"owner"`
	PublicKeyPem string       `json:"publicKeyPem"`
}

// NewPublicKey returns a new public key object.
func NewPublicKey(opts ...Opt) *PublicKeyType {
	options := NewOptions(opts...)

	return &PublicKeyType{
		ID:           NewURLProperty(options.ID),
		Owner:        NewURLProperty(options.Owner),
		PublicKeyPem: options.PublicKeyPem,
	}
}

// EndpointsType defines the 'endpoints' property on an actor.
type EndpointsType struct {
	SharedInbox *URLProperty `json:"sharedInbox,omitempty"`
}

// ActorType defines an 'actor'.
type ActorType struct {
	*ObjectType

	actor *actorType
}

type actorType struct {
	PublicKey         *PublicKeyType    `json:"publicKey,omitempty"`
	Inbox             *URLProperty      `json:"inbox,omitempty"`
	Outbox            *URLProperty      `json:"outbox,omitempty"`
	Followers         *URLProperty      `json:"followers,omitempty"`
	Following         *URLProperty      `json:"following,omitempty"`
	Liked             *URLProperty      `json:"liked,omitempty"`
	Shares            *URLProperty      `json:"shares,omitempty"`
	Endpoints         *EndpointsType    `json:"endpoints,omitempty"`
	PreferredUsername string            `json:"preferredUsername,omitempty"`
	Collections       map[string]string `json:"broca:collections,omitempty"`
}

// PublicKey returns the actor's public key.
func (t *ActorType) PublicKey() *PublicKeyType {
	return t.actor.PublicKey
}

// Inbox returns the URL of the actor's inbox.
func (t *ActorType) Inbox() *url.URL {
	return t.actor.Inbox.URL()
}

// Outbox returns the URL of the actor's outbox.
func (t *ActorType) Outbox() *url.URL {
	return t.actor.Outbox.URL()
}

// Followers returns the URL of the actor's followers.
func (t *ActorType) Followers() *url.URL {
	return t.actor.Followers.URL()
}

// Following returns the URL of what the actor is following.
func (t *ActorType) Following() *url.URL {
	return t.actor.Following.URL()
}

// Liked returns the URL of what the actor has liked.
func (t *ActorType) Liked() *url.URL {
	return t.actor.Liked.URL()
}

// Shares returns the URL of the actor's shares.
func (t *ActorType) Shares() *url.URL {
	return t.actor.Shares.URL()
}

// SharedInbox returns the URL of the actor's shared inbox, or nil
// if the actor does not advertise one.
func (t *ActorType) SharedInbox() *url.URL {
	if t.actor.Endpoints == nil {
		return nil
	}

	return t.actor.Endpoints.SharedInbox.URL()
}

// PreferredUsername returns the actor's preferred username.
func (t *ActorType) PreferredUsername() string {
	return t.actor.PreferredUsername
}

// Collections returns the actor's advertised custom collections,
// mapping collection slug to collection URL.
func (t *ActorType) Collections() map[string]string {
	return t.actor.Collections
}

// SetCollections sets the actor's advertised custom collections.
func (t *ActorType) SetCollections(collections map[string]string) {
	t.actor.Collections = collections
}

// MarshalJSON marshals the actor.
func (t *ActorType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.actor)
}

// UnmarshalJSON unmarshals the actor.
func (t *ActorType) UnmarshalJSON(bytes []byte) error {
	t.ObjectType = NewObject()
	t.actor = &actorType{}

	return UnmarshalJSON(bytes, t.ObjectType, t.actor)
}

// NewActor returns a new actor of the given type.
func NewActor(id *url.URL, aType Type, opts ...Opt) *ActorType {
	options := NewOptions(opts...)

	actor := &ActorType{
		ObjectType: NewObject(
			WithContext(getContexts(options, ContextActivityStreams, ContextSecurity, ContextBroca)...),
			WithID(id),
			WithType(aType),
			WithName(options.Name),
			WithSummary(options.Summary),
			WithURL(options.URL...),
			WithPublishedTime(options.Published),
			WithUpdatedTime(options.Updated),
		),
	}

	a := &actorType{
		PublicKey:         options.PublicKey,
		Inbox:             NewURLProperty(options.Inbox),
		Outbox:            NewURLProperty(options.Outbox),
		Followers:         NewURLProperty(options.Followers),
		Following:         NewURLProperty(options.Following),
		Liked:             NewURLProperty(options.Liked),
		Shares:            NewURLProperty(options.Shares),
		PreferredUsername: options.PreferredUsername,
		Collections:       options.Collections,
	}

	if options.SharedInbox != nil {
		a.Endpoints = &EndpointsType{SharedInbox: NewURLProperty(options.SharedInbox)}
	}

	actor.actor = a

	return actor
}

// NewPerson returns a new 'Person' actor type.
func NewPerson(id *url.URL, opts ...Opt) *ActorType {
	return NewActor(id, TypePerson, opts...)
}

// NewService returns a new 'Service' actor type.
func NewService(id *url.URL, opts ...Opt) *ActorType {
	return NewActor(id, TypeService, opts...)
}
