/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocument_MergeWith(t *testing.T) {
	doc := Document{
		"id":   "https://example1.com/activities/activity1",
		"type": "Create",
	}

	doc.MergeWith(Document{
		"type":  "Ignored",
		"actor": "https://example1.com/services/broca",
	})

	require.Equal(t, "Create", doc["type"])
	require.Equal(t, "https://example1.com/services/broca", doc["actor"])
	require.Equal(t, "https://example1.com/activities/activity1", doc["id"])
}

func TestReservedProperties(t *testing.T) {
	props := reservedProperties()

	require.Contains(t, props, "@context")
	require.Contains(t, props, "id")
	require.Contains(t, props, "type")
	require.Contains(t, props, "object")
	require.Contains(t, props, "orderedItems")
	require.NotContains(t, props, PropertyBrocaCollectionDefinition)
}
