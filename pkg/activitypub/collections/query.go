/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collections

import (
	"strings"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// matchesFilter returns true if the given outbox activity satisfies all of the
// criteria of a QUERY collection filter.
func matchesFilter(activity *vocab.ActivityType, filter *QueryFilter) bool {
	if filter == nil {
		return false
	}

	if len(filter.ActivityTypes) > 0 && !activity.Type().IsAny(toVocabTypes(filter.ActivityTypes)...) {
		return false
	}

	obj := activity.Object().Object()

	if len(filter.ObjectTypes) > 0 {
		if obj == nil || !obj.Type().IsAny(toVocabTypes(filter.ObjectTypes)...) {
			return false
		}
	}

	if len(filter.Tags) > 0 && !matchesTags(obj, filter.Tags) {
		return false
	}

	if !matchesDates(activity, obj, filter) {
		return false
	}

	if filter.HasAttachment != nil {
		if obj == nil || (len(obj.Attachment()) > 0) != *filter.HasAttachment {
			return false
		}
	}

	if filter.IsReply != nil {
		if obj == nil || (obj.InReplyTo() != nil) != *filter.IsReply {
			return false
		}
	}

	if filter.SearchQuery != "" && !matchesSearch(obj, filter.SearchQuery) {
		return false
	}

	return true
}

func matchesTags(obj *vocab.ObjectType, tags []string) bool {
	if obj == nil {
		return false
	}

	for _, tagProp := range obj.Tag() {
		if !tagProp.Type().Is(vocab.TypeHashtag) {
			continue
		}

		// Hashtag names carry a leading '#' on the wire; filter tags do not.
		name := strings.TrimPrefix(tagProp.Name(), "#")

		for _, tag := range tags {
			if strings.EqualFold(name, tag) {
				return true
			}
		}
	}

	return false
}

// matchesDates applies the (afterDate, beforeDate] range to the published time of the
// object, falling back to the published time of the activity.
func matchesDates(activity *vocab.ActivityType, obj *vocab.ObjectType, filter *QueryFilter) bool {
	if filter.AfterDate == nil && filter.BeforeDate == nil {
		return true
	}

	published := publishedTime(obj)
	if published.IsZero() {
		published = publishedTime(activity.ObjectType)
	}

	if published.IsZero() {
		return false
	}

	if filter.AfterDate != nil && !published.After(*filter.AfterDate) {
		return false
	}

	if filter.BeforeDate != nil && published.After(*filter.BeforeDate) {
		return false
	}

	return true
}

func matchesSearch(obj *vocab.ObjectType, query string) bool {
	if obj == nil {
		return false
	}

	query = strings.ToLower(query)

	for _, field := range []string{obj.Content(), obj.Name(), obj.Summary()} {
		if field != "" && strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}

	return false
}

func toVocabTypes(types []string) []vocab.Type {
	vocabTypes := make([]vocab.Type, len(types))

	for i, t := range types {
		vocabTypes[i] = vocab.Type(t)
	}

	return vocabTypes
}
