/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ObjectType defines an 'object'.
type ObjectType struct {
	object     *objectType
	additional Document
}

// NewObject returns a new 'object'.
func NewObject(opts ...Opt) *ObjectType {
	options := NewOptions(opts...)

	return &ObjectType{
		object: &objectType{
			Context:      NewContextProperty(options.Context...),
			ID:           NewURLProperty(options.ID),
			Type:         NewTypeProperty(options.Types...),
			To:           NewURLCollectionProperty(options.To...),
			CC:           NewURLCollectionProperty(options.CC...),
			Published:    options.Published,
			Updated:      options.Updated,
			StartTime:    options.StartTime,
			EndTime:      options.EndTime,
			AttributedTo: NewURLProperty(options.AttributedTo),
			InReplyTo:    NewURLProperty(options.InReplyTo),
			URL:          NewURLCollectionProperty(options.URL...),
			MediaType:    options.MediaType,
			Name:         options.Name,
			Content:      options.Content,
			Summary:      options.Summary,
			Attachment:   options.Attachment,
			Tag:          options.Tag,
		},
	}
}

// NewObjectWithDocument returns a new object initialized with the given document.
func NewObjectWithDocument(doc Document, opts ...Opt) (*ObjectType, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	bytes, err := MarshalJSON(NewObject(opts...), doc)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	obj := &ObjectType{}

	err = json.Unmarshal(bytes, &obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return obj, nil
}

type objectType struct {
	Context      *ContextProperty       `json:"@context,omitempty"`
	ID           *URLProperty           `json:"id,omitempty"`
	Type         *TypeProperty          `json:"type,omitempty"`
	To           *URLCollectionProperty `json:"to,omitempty"`
	CC           *URLCollectionProperty `json:"cc,omitempty"`
	BTo          *URLCollectionProperty `json:"bto,omitempty"`
	BCC          *URLCollectionProperty `json:"bcc,omitempty"`
	Audience     *URLCollectionProperty `json:"audience,omitempty"`
	Published    *time.Time             `json:"published,omitempty"`
	Updated      *time.Time             `json:"updated,omitempty"`
	StartTime    *time.Time             `json:"startTime,omitempty"`
	EndTime      *time.Time             `json:"endTime,omitempty"`
	AttributedTo *URLProperty           `json:"attributedTo,omitempty"`
	InReplyTo    *URLProperty           `json:"inReplyTo,omitempty"`
	URL          *URLCollectionProperty `json:"url,omitempty"`
	MediaType    string                 `json:"mediaType,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Content      string                 `json:"content,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Attachment   []*ObjectProperty      `json:"attachment,omitempty"`
	Tag          []*TagProperty         `json:"tag,omitempty"`
}

// Context returns the context property.
func (t *ObjectType) Context() *ContextProperty {
	return t.object.Context
}

// ID returns the object's ID.
func (t *ObjectType) ID() *URLProperty {
	return t.object.ID
}

// SetID sets the object's ID.
func (t *ObjectType) SetID(id *url.URL) {
	t.object.ID = NewURLProperty(id)
}

// Type returns the type of the object.
func (t *ObjectType) Type() *TypeProperty {
	return t.object.Type
}

// Published returns the time when the object was published.
func (t *ObjectType) Published() *time.Time {
	return t.object.Published
}

// SetPublished sets the time when the object was published.
func (t *ObjectType) SetPublished(published *time.Time) {
	t.object.Published = published
}

// Updated returns the time when the object was last updated.
func (t *ObjectType) Updated() *time.Time {
	return t.object.Updated
}

// StartTime returns the start time.
func (t *ObjectType) StartTime() *time.Time {
	return t.object.StartTime
}

// EndTime returns the end time.
func (t *ObjectType) EndTime() *time.Time {
	return t.object.EndTime
}

// To returns a set of URLs to which the object should be sent.
func (t *ObjectType) To() Urls {
	return t.object.To.Urls()
}

// CC returns a set of URLs to which the object should be copied.
func (t *ObjectType) CC() Urls {
	return t.object.CC.Urls()
}

// BTo returns the blind 'to' recipients. These are stripped before federation.
func (t *ObjectType) BTo() Urls {
	return t.object.BTo.Urls()
}

// BCC returns the blind 'cc' recipients. These are stripped before federation.
func (t *ObjectType) BCC() Urls {
	return t.object.BCC.Urls()
}

// Audience returns the audience of the object.
func (t *ObjectType) Audience() Urls {
	return t.object.Audience.Urls()
}

// Recipients returns the combined set of recipients from the to, cc, bto,
// bcc, and audience properties.
func (t *ObjectType) Recipients() Urls {
	var recipients Urls

	recipients = append(recipients, t.To()...)
	recipients = append(recipients, t.CC()...)
	recipients = append(recipients, t.BTo()...)
	recipients = append(recipients, t.BCC()...)
	recipients = append(recipients, t.Audience()...)

	return recipients
}

// StripBlindRecipients removes the bto and bcc properties. This must be done
// before the object is federated.
func (t *ObjectType) StripBlindRecipients() {
	t.object.BTo = nil
	t.object.BCC = nil
}

// AttributedTo returns the IRI of the actor to which the object is attributed.
func (t *ObjectType) AttributedTo() *URLProperty {
	return t.object.AttributedTo
}

// InReplyTo returns the IRI of the object that this object is a reply to.
func (t *ObjectType) InReplyTo() *URLProperty {
	return t.object.InReplyTo
}

// URL returns the object's URLs.
func (t *ObjectType) URL() Urls {
	return t.object.URL.Urls()
}

// SetURL sets the object's URLs.
func (t *ObjectType) SetURL(u ...*url.URL) {
	t.object.URL = NewURLCollectionProperty(u...)
}

// MediaType returns the object's media type.
func (t *ObjectType) MediaType() string {
	return t.object.MediaType
}

// Name returns the object's name.
func (t *ObjectType) Name() string {
	return t.object.Name
}

// Content returns the object's content.
func (t *ObjectType) Content() string {
	return t.object.Content
}

// Summary returns the object's summary.
func (t *ObjectType) Summary() string {
	return t.object.Summary
}

// Attachment returns the object's attachments.
func (t *ObjectType) Attachment() []*ObjectProperty {
	return t.object.Attachment
}

// SetAttachment sets the object's attachments.
func (t *ObjectType) SetAttachment(attachment []*ObjectProperty) {
	t.object.Attachment = attachment
}

// Tag returns the object's tags.
func (t *ObjectType) Tag() []*TagProperty {
	return t.object.Tag
}

// Value returns the value of an additional (non-reserved) property.
func (t *ObjectType) Value(key string) (interface{}, bool) {
	v, ok := t.additional[key]

	return v, ok
}

// SetValue sets the value of an additional (non-reserved) property.
func (t *ObjectType) SetValue(key string, value interface{}) {
	if t.additional == nil {
		t.additional = make(Document)
	}

	t.additional[key] = value
}

// MarshalJSON marshals the object.
func (t *ObjectType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.object, t.additional)
}

// UnmarshalJSON unmarshals the object.
func (t *ObjectType) UnmarshalJSON(bytes []byte) error {
	header := &objectType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	doc := make(Document)

	err = json.Unmarshal(bytes, &doc)
	if err != nil {
		return err
	}

	// Delete all of the reserved ActivityStreams fields
	for _, prop := range reservedProperties() {
		delete(doc, prop)
	}

	t.object = header
	t.additional = doc

	return nil
}
