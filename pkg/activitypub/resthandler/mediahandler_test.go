/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"net/http"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/store/memstore"
	"github.com/broca-activitypub/broca/pkg/store/blob"
)

func TestMedia_Handler(t *testing.T) {
	cfg := newTestConfig()

	s := memstore.New("broca")

	blobs, err := blob.New(mem.NewProvider())
	require.NoError(t, err)

	content := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02, 0x03}

	require.NoError(t, blobs.Put("alice", "blob1", "image/jpeg", content))

	h := NewMedia(cfg, s, blobs)

	t.Run("Blob found -> 200 with content type", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/media/blob1",
			map[string]string{"username": "alice", "id": "blob1"})

		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
		require.Equal(t, content, readBody(t, rr))
	})

	t.Run("Unknown blob -> 404", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/media/other",
			map[string]string{"username": "alice", "id": "other"})
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Blob of another owner -> 404", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/bob/media/blob1",
			map[string]string{"username": "bob", "id": "blob1"})
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("No blob ID -> 400", func(t *testing.T) {
		rr := invokeHandler(t, h, "https://broca.example.com/users/alice/media/",
			map[string]string{"username": "alice"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
