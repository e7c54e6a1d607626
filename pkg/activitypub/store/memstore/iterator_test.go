/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
)

func TestActivityIterator(t *testing.T) {
	activity1 := vocab.NewCreateActivity(vocab.NewObjectProperty(),
		vocab.WithID(testutil.MustParseURL("https://example.com/activities/activity1")))
	activity2 := vocab.NewAnnounceActivity(vocab.NewObjectProperty(),
		vocab.WithID(testutil.MustParseURL("https://example.com/activities/activity2")))

	it := NewActivityIterator([]*vocab.ActivityType{activity1, activity2}, 5)
	require.NotNil(t, it)

	totalItems, err := it.TotalItems()
	require.NoError(t, err)
	require.Equal(t, 5, totalItems)

	a, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, activity1, a)

	a, err = it.Next()
	require.NoError(t, err)
	require.Equal(t, activity2, a)

	a, err = it.Next()
	require.Error(t, err)
	require.True(t, errors.Is(err, spi.ErrNotFound))
	require.Nil(t, a)

	require.NoError(t, it.Close())
}

func TestReferenceIterator(t *testing.T) {
	ref1 := testutil.MustParseURL("https://example.com/users/actor1")
	ref2 := testutil.MustParseURL("https://example.com/users/actor2")

	it := NewReferenceIterator([]*url.URL{ref1, ref2}, 2)
	require.NotNil(t, it)

	totalItems, err := it.TotalItems()
	require.NoError(t, err)
	require.Equal(t, 2, totalItems)

	r, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, ref1, r)

	r, err = it.Next()
	require.NoError(t, err)
	require.Equal(t, ref2, r)

	r, err = it.Next()
	require.Error(t, err)
	require.True(t, errors.Is(err, spi.ErrNotFound))
	require.Nil(t, r)

	require.NoError(t, it.Close())
}
