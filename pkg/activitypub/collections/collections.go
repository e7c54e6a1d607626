/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package collections implements custom, user-defined collections of ActivityPub objects.
// A collection is either MANUAL, whose membership is curated with Add and Remove
// activities, or QUERY, whose membership is computed from the owner's outbox using a
// stored filter.
package collections

import (
	"fmt"
	"regexp"
	"time"

	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

// Type is the type of a collection.
type Type string

const (
	// TypeManual indicates that the collection's membership is curated explicitly.
	TypeManual Type = "MANUAL"
	// TypeQuery indicates that the collection's membership is computed from a stored query.
	TypeQuery Type = "QUERY"
)

// Visibility determines who may view a collection.
type Visibility string

const (
	// VisibilityPublic indicates that the collection is visible to anyone and is
	// advertised on the owner's actor document.
	VisibilityPublic Visibility = "PUBLIC"
	// VisibilityUnlisted indicates that the collection is visible to anyone with the
	// URL but is not advertised.
	VisibilityUnlisted Visibility = "UNLISTED"
	// VisibilityPrivate indicates that the collection is only visible to an
	// authorized caller.
	VisibilityPrivate Visibility = "PRIVATE"
)

// SortOrder determines the order in which a collection's items are returned.
type SortOrder string

const (
	// SortChrono sorts items oldest first.
	SortChrono SortOrder = "CHRONO"
	// SortReverseChrono sorts items newest first.
	SortReverseChrono SortOrder = "REVERSE_CHRONO"
	// SortManual returns items in their curated order. Only valid for MANUAL collections.
	SortManual SortOrder = "MANUAL"
)

// idExpr is the set of valid collection IDs. An ID is used as a URL path segment.
var idExpr = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// reservedIDs are collection IDs that would collide with the standard actor endpoints.
var reservedIDs = map[string]bool{
	"inbox":       true,
	"outbox":      true,
	"followers":   true,
	"following":   true,
	"liked":       true,
	"shares":      true,
	"collections": true,
	"endpoints":   true,
}

// QueryFilter holds the membership criteria of a QUERY collection. All specified
// criteria must match (logical AND).
type QueryFilter struct {
	// ActivityTypes matches activities of any of the given types.
	ActivityTypes []string `json:"activityTypes,omitempty"`
	// ObjectTypes matches activities whose object is of any of the given types.
	ObjectTypes []string `json:"objectTypes,omitempty"`
	// Tags matches objects carrying any of the given hashtags (without the leading #).
	Tags []string `json:"tags,omitempty"`
	// AfterDate matches items published strictly after the given time.
	AfterDate *time.Time `json:"afterDate,omitempty"`
	// BeforeDate matches items published at or before the given time.
	BeforeDate *time.Time `json:"beforeDate,omitempty"`
	// HasAttachment matches objects with (or without) attachments.
	HasAttachment *bool `json:"hasAttachment,omitempty"`
	// IsReply matches objects that are (or are not) replies.
	IsReply *bool `json:"isReply,omitempty"`
	// SearchQuery matches objects whose content, name, or summary contains the given
	// string (case-insensitive).
	SearchQuery string `json:"searchQuery,omitempty"`
}

// Definition describes a custom collection.
type Definition struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        Type         `json:"type"`
	Visibility  Visibility   `json:"visibility"`
	SortOrder   SortOrder    `json:"sortOrder"`
	MaxItems    int          `json:"maxItems,omitempty"`
	Items       []string     `json:"items,omitempty"`
	Query       *QueryFilter `json:"query,omitempty"`
	Owner       string       `json:"owner"`
	Created     *time.Time   `json:"created,omitempty"`
	Updated     *time.Time   `json:"updated,omitempty"`
}

// Validate validates the definition and populates defaults for unspecified fields.
// A 'bad request' error is returned for an invalid definition.
func (d *Definition) Validate() error {
	if !idExpr.MatchString(d.ID) {
		return brocaerrors.NewBadRequestf("invalid collection ID [%s]: must match %s", d.ID, idExpr)
	}

	if reservedIDs[d.ID] {
		return brocaerrors.NewBadRequestf("collection ID [%s] is reserved", d.ID)
	}

	if d.Name == "" {
		return brocaerrors.NewBadRequestf("no name specified for collection [%s]", d.ID)
	}

	if d.Visibility == "" {
		d.Visibility = VisibilityPublic
	}

	switch d.Visibility {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
	default:
		return brocaerrors.NewBadRequestf("invalid visibility [%s] for collection [%s]", d.Visibility, d.ID)
	}

	if d.MaxItems < 0 {
		return brocaerrors.NewBadRequestf("invalid maxItems [%d] for collection [%s]", d.MaxItems, d.ID)
	}

	switch d.Type {
	case TypeManual:
		return d.validateManual()
	case TypeQuery:
		return d.validateQuery()
	default:
		return brocaerrors.NewBadRequestf("invalid type [%s] for collection [%s]", d.Type, d.ID)
	}
}

func (d *Definition) validateManual() error {
	if d.Query != nil {
		return brocaerrors.NewBadRequestf("a query may not be specified for MANUAL collection [%s]", d.ID)
	}

	if d.SortOrder == "" {
		d.SortOrder = SortManual
	}

	switch d.SortOrder {
	case SortManual, SortChrono, SortReverseChrono:
		return nil
	default:
		return brocaerrors.NewBadRequestf("invalid sort order [%s] for collection [%s]", d.SortOrder, d.ID)
	}
}

func (d *Definition) validateQuery() error {
	if len(d.Items) > 0 {
		return brocaerrors.NewBadRequestf("items may not be specified for QUERY collection [%s]", d.ID)
	}

	if d.Query == nil {
		return brocaerrors.NewBadRequestf("no query specified for QUERY collection [%s]", d.ID)
	}

	if d.SortOrder == "" {
		d.SortOrder = SortReverseChrono
	}

	switch d.SortOrder {
	case SortChrono, SortReverseChrono:
	case SortManual:
		return brocaerrors.NewBadRequestf("sort order MANUAL is not valid for QUERY collection [%s]", d.ID)
	default:
		return brocaerrors.NewBadRequestf("invalid sort order [%s] for collection [%s]", d.SortOrder, d.ID)
	}

	if d.Query.AfterDate != nil && d.Query.BeforeDate != nil && !d.Query.AfterDate.Before(*d.Query.BeforeDate) {
		return brocaerrors.NewBadRequestf("afterDate must be before beforeDate for collection [%s]", d.ID)
	}

	return nil
}

// ContainsItem returns true if the given item ID is a member of a MANUAL collection.
func (d *Definition) ContainsItem(itemID string) bool {
	for _, item := range d.Items {
		if item == itemID {
			return true
		}
	}

	return false
}

// String returns a human readable representation of the definition.
func (d *Definition) String() string {
	return fmt.Sprintf("%s (%s/%s)", d.ID, d.Type, d.Visibility)
}
