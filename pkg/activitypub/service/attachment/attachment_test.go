/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	"github.com/broca-activitypub/broca/pkg/internal/aptestutil"
	"github.com/broca-activitypub/broca/pkg/internal/testutil"
)

//nolint:gochecknoglobals
var (
	ownerIRI       = testutil.MustParseURL("https://broca.example.com/users/alice")
	remoteActorIRI = testutil.MustParseURL("https://other.example.com/users/bob")
)

func TestProcessor_ProcessAttachments(t *testing.T) {
	cfg := &Config{
		ServiceEndpointURL: testutil.MustParseURL("https://broca.example.com"),
	}

	t.Run("Remote attachment -> mirrored", func(t *testing.T) {
		tp := newMockTransport().withContent("https://other.example.com/media/cat.png", "image/png", []byte("png data"))
		blobs := newMockBlobStore()

		p := New(cfg, tp, blobs)

		activity := newCreateWithAttachment("https://other.example.com/media/cat.png", "image/png")

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, activity))

		require.Len(t, blobs.blobs, 1)
		require.Equal(t, "image/png", blobs.contentTypes["alice"])

		attachments := activity.Object().Object().Attachment()
		require.Len(t, attachments, 1)

		urls := attachments[0].Object().URL()
		require.Len(t, urls, 1)
		require.Equal(t, "broca.example.com", urls[0].Host)
		require.Contains(t, urls[0].String(), "/users/alice/media/")
	})

	t.Run("Local attachment -> untouched", func(t *testing.T) {
		tp := newMockTransport()
		blobs := newMockBlobStore()

		p := New(cfg, tp, blobs)

		attachmentURL := "https://broca.example.com/users/carol/media/blob1"

		activity := newCreateWithAttachment(attachmentURL, "image/png")

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, activity))
		require.Empty(t, blobs.blobs)

		urls := activity.Object().Object().Attachment()[0].Object().URL()
		require.Len(t, urls, 1)
		require.Equal(t, attachmentURL, urls[0].String())
	})

	t.Run("Download error -> original URL kept", func(t *testing.T) {
		tp := newMockTransport().withError(errors.New("injected transport error"))
		blobs := newMockBlobStore()

		p := New(cfg, tp, blobs)

		attachmentURL := "https://other.example.com/media/cat.png"

		activity := newCreateWithAttachment(attachmentURL, "image/png")

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, activity))
		require.Empty(t, blobs.blobs)

		urls := activity.Object().Object().Attachment()[0].Object().URL()
		require.Len(t, urls, 1)
		require.Equal(t, attachmentURL, urls[0].String())
	})

	t.Run("Not found -> original URL kept", func(t *testing.T) {
		tp := newMockTransport()
		blobs := newMockBlobStore()

		p := New(cfg, tp, blobs)

		activity := newCreateWithAttachment("https://other.example.com/media/cat.png", "image/png")

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, activity))
		require.Empty(t, blobs.blobs)
	})

	t.Run("Too large -> original URL kept", func(t *testing.T) {
		tp := newMockTransport().withContent("https://other.example.com/media/cat.png", "image/png",
			bytes.Repeat([]byte("x"), 100))
		blobs := newMockBlobStore()

		p := New(&Config{
			ServiceEndpointURL: cfg.ServiceEndpointURL,
			MaxSize:            10,
		}, tp, blobs)

		activity := newCreateWithAttachment("https://other.example.com/media/cat.png", "image/png")

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, activity))
		require.Empty(t, blobs.blobs)
	})

	t.Run("No embedded object -> no-op", func(t *testing.T) {
		p := New(cfg, newMockTransport(), newMockBlobStore())

		announce := aptestutil.NewMockAnnounceActivity(remoteActorIRI, ownerIRI,
			vocab.NewObjectProperty(vocab.WithIRI(
				testutil.MustParseURL("https://other.example.com/objects/note1"))))

		require.NoError(t, p.ProcessAttachments(context.Background(), ownerIRI, announce))
	})
}

func newCreateWithAttachment(attachmentURL, mediaType string) *vocab.ActivityType {
	attachment := vocab.NewObject(
		vocab.WithType(vocab.TypeImage),
		vocab.WithMediaType(mediaType),
		vocab.WithURL(testutil.MustParseURL(attachmentURL)),
	)

	note := vocab.NewObject(
		vocab.WithID(testutil.MustParseURL("https://other.example.com/users/bob/objects/note1")),
		vocab.WithType(vocab.TypeNote),
		vocab.WithContent("A note with an attachment"),
		vocab.WithAttachment(vocab.NewObjectProperty(vocab.WithObject(attachment))),
	)

	return aptestutil.NewMockCreateActivity(remoteActorIRI, ownerIRI,
		vocab.NewObjectProperty(vocab.WithObject(note)))
}

type mockTransport struct {
	content      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		content:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *mockTransport) withContent(u, contentType string, content []byte) *mockTransport {
	m.content[u] = content
	m.contentTypes[u] = contentType

	return m
}

func (m *mockTransport) withError(err error) *mockTransport {
	m.err = err

	return m
}

func (m *mockTransport) Get(_ context.Context, req *transport.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}

	content, ok := m.content[req.URL.String()]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	header := make(http.Header)
	header.Set("Content-Type", m.contentTypes[req.URL.String()])

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(content)),
	}, nil
}

type mockBlobStore struct {
	blobs        map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{
		blobs:        make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *mockBlobStore) Put(owner, blobID, contentType string, content []byte) error {
	if m.err != nil {
		return m.err
	}

	m.blobs[fmt.Sprintf("%s-%s", owner, blobID)] = content
	m.contentTypes[owner] = contentType

	return nil
}
