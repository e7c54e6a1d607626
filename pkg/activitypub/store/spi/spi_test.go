/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
)

func TestCriteria(t *testing.T) {
	objectIRI := testutil.MustParseURL("https://example.com/services/broca")
	refIRI := testutil.MustParseURL("https://example.com/activities/activity1")

	c := NewCriteria(
		WithType(vocab.TypeCreate, vocab.TypeAnnounce),
		WithReferenceType(Outbox),
		WithObjectIRI(objectIRI),
		WithReferenceIRI(refIRI),
	)
	require.NotNil(t, c)
	require.Len(t, c.Types, 2)
	require.Equal(t, vocab.TypeCreate, c.Types[0])
	require.Equal(t, vocab.TypeAnnounce, c.Types[1])
	require.Equal(t, Outbox, c.ReferenceType)
	require.Equal(t, objectIRI, c.ObjectIRI)
	require.Equal(t, refIRI, c.ReferenceIRI)
}

func TestRefMetadata(t *testing.T) {
	m := &RefMetadata{}

	WithActivityType(vocab.TypeCreate)(m)

	require.Equal(t, vocab.TypeCreate, m.ActivityType)
}
