/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package attachment mirrors the media attachments of incoming activities. Remote
// attachment URLs are downloaded and re-hosted on this domain so that clients never
// fetch media from an origin server.
package attachment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
)

const (
	defaultMaxSize         = 10 * 1024 * 1024
	defaultDownloadTimeout = 30 * time.Second

	defaultContentType = "application/octet-stream"
)

var logger = log.New("activitypub_attachment")

type httpTransport interface {
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

type blobStore interface {
	Put(owner, blobID, contentType string, content []byte) error
}

// Config holds configuration parameters for the attachment processor.
type Config struct {
	// ServiceEndpointURL is the base HTTP(s) endpoint of this server. Attachments
	// that are already hosted on this domain are left untouched.
	ServiceEndpointURL *url.URL

	// MaxSize is the maximum size (in bytes) of an attachment that will be mirrored.
	MaxSize int64

	// DownloadTimeout is the maximum duration of a single attachment download.
	DownloadTimeout time.Duration
}

// Processor downloads the attachments of incoming activities and rewrites their URLs
// to point at the local media endpoint.
type Processor struct {
	*Config

	transport httpTransport
	blobs     blobStore
}

// New returns a new attachment processor.
func New(cfg *Config, t httpTransport, blobs blobStore) *Processor {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultMaxSize
	}

	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}

	return &Processor{
		Config:    cfg,
		transport: t,
		blobs:     blobs,
	}
}

// ProcessAttachments mirrors the attachments of the object embedded in the given
// activity. Mirroring is best-effort: an attachment that cannot be downloaded keeps
// its original URL and is not treated as an error, so that the activity itself is
// still processed.
func (p *Processor) ProcessAttachments(ctx context.Context, ownerIRI *url.URL, activity *vocab.ActivityType) error {
	obj := activity.Object().Object()
	if obj == nil {
		return nil
	}

	owner := path.Base(ownerIRI.Path)

	for _, attachment := range obj.Attachment() {
		attObj := attachment.Object()
		if attObj == nil {
			continue
		}

		p.processAttachment(ctx, owner, attObj)
	}

	return nil
}

func (p *Processor) processAttachment(ctx context.Context, owner string, attObj *vocab.ObjectType) {
	var mirrored []*url.URL

	for _, u := range attObj.URL() {
		if u.Host == p.ServiceEndpointURL.Host {
			// Already hosted on this domain.
			mirrored = append(mirrored, u)

			continue
		}

		localURL, err := p.mirror(ctx, owner, u, attObj.MediaType())
		if err != nil {
			logger.Warnc(ctx, "Error mirroring attachment; keeping the original URL",
				logfields.WithAttachmentURL(u.String()), log.WithError(err))

			mirrored = append(mirrored, u)

			continue
		}

		logger.Debugc(ctx, "Mirrored attachment", logfields.WithAttachmentURL(u.String()),
			logfields.WithURI(localURL))

		mirrored = append(mirrored, localURL)
	}

	attObj.SetURL(mirrored...)
}

// mirror downloads the content at the given URL, stores it as a media blob, and
// returns the URL at which the blob is served from this domain.
func (p *Processor) mirror(ctx context.Context, owner string, u *url.URL, mediaType string) (*url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, p.DownloadTimeout)
	defer cancel()

	resp, err := p.transport.Get(ctx, transport.NewRequest(u))
	if err != nil {
		return nil, fmt.Errorf("get attachment from %s: %w", u, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnc(ctx, "Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get attachment from %s: status code %d", u, resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, p.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment from %s: %w", u, err)
	}

	if int64(len(content)) > p.MaxSize {
		return nil, fmt.Errorf("attachment at %s exceeds the maximum size of %d bytes", u, p.MaxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mediaType
	}

	if contentType == "" {
		contentType = defaultContentType
	}

	blobID := uuid.New().String()

	if err := p.blobs.Put(owner, blobID, contentType, content); err != nil {
		return nil, fmt.Errorf("store attachment from %s: %w", u, err)
	}

	return url.Parse(fmt.Sprintf("%s/users/%s/media/%s", p.ServiceEndpointURL, owner, blobID))
}
