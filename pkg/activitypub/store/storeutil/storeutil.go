/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storeutil

import (
	"errors"
	"net/url"

	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

// GetQueryOptions populates and returns the QueryOptions struct with the given options.
func GetQueryOptions(opts ...spi.QueryOpt) *spi.QueryOptions {
	options := &spi.QueryOptions{
		PageNumber: -1,
		PageSize:   -1,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// GetRefMetadata populates and returns the RefMetadata struct with the given options.
func GetRefMetadata(opts ...spi.RefMetadataOpt) *spi.RefMetadata {
	metadata := &spi.RefMetadata{}

	for _, opt := range opts {
		opt(metadata)
	}

	return metadata
}

// ReadReferences reads the references from the given iterator. If maxItems <= 0
// then all references are read, otherwise at most maxItems references are read.
func ReadReferences(it spi.ReferenceIterator, maxItems int) ([]*url.URL, error) {
	var refs []*url.URL

	for maxItems <= 0 || len(refs) < maxItems {
		ref, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return nil, err
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

// ReadActivities reads the activities from the given iterator. If maxItems <= 0
// then all activities are read, otherwise at most maxItems activities are read.
func ReadActivities(it spi.ActivityIterator, maxItems int) ([]*vocab.ActivityType, error) {
	var activities []*vocab.ActivityType

	for maxItems <= 0 || len(activities) < maxItems {
		activity, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return nil, err
		}

		activities = append(activities, activity)
	}

	return activities, nil
}
