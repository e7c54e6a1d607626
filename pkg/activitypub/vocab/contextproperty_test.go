/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextProperty(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		require.Nil(t, NewContextProperty())

		var nilProp *ContextProperty
		require.Empty(t, nilProp.Contexts())
		require.False(t, nilProp.Contains(ContextActivityStreams))
	})

	t.Run("Single context", func(t *testing.T) {
		p := &ContextProperty{}
		require.NoError(t, json.Unmarshal([]byte(`"https://www.w3.org/ns/activitystreams"`), p))
		require.True(t, p.Contains(ContextActivityStreams))

		b, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"https://www.w3.org/ns/activitystreams"`, string(b))
	})

	t.Run("Multiple contexts", func(t *testing.T) {
		p := NewContextProperty(ContextActivityStreams, ContextSecurity, ContextBroca)
		require.True(t, p.Contains(ContextActivityStreams, ContextSecurity))
		require.True(t, p.ContainsAny(ContextBroca))
		require.False(t, p.ContainsAny("https://example1.com/context"))
	})

	t.Run("Mixed array with embedded object", func(t *testing.T) {
		p := &ContextProperty{}
		require.NoError(t, json.Unmarshal(
			[]byte(`["https://www.w3.org/ns/activitystreams",{"broca":"https://broca-activitypub.org/ns#"}]`), p))
		require.True(t, p.Contains(ContextActivityStreams))
	})
}
