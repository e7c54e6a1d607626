/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/client/transport"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

var logger = log.New("activitypub_client")

const (
	defaultCacheSize          = 100
	defaultCacheExpiration    = time.Minute
	defaultKeyCacheExpiration = time.Hour
	defaultFetchTimeout       = 10 * time.Second
)

// ErrNotFound is returned when the object is not found or the iterator has reached the end.
var ErrNotFound = fmt.Errorf("not found")

// ReferenceIterator iterates over the references in a result set.
type ReferenceIterator interface {
	Next() (*url.URL, error)
	TotalItems() int
}

type httpTransport interface {
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

// Config contains configuration parameters for the client.
type Config struct {
	CacheSize          int
	CacheExpiration    time.Duration
	KeyCacheExpiration time.Duration
	FetchTimeout       time.Duration
}

// Client implements an ActivityPub client which retrieves ActivityPub objects (such as actors,
// public keys, and collections) from remote sources. Documents are requested with a GET that is
// signed by the system actor, so that services requiring authorized fetches accept them.
type Client struct {
	httpTransport

	fetchTimeout   time.Duration
	actorCache     gcache.Cache
	publicKeyCache gcache.Cache
}

// New returns a new ActivityPub client.
func New(cfg Config, t httpTransport) *Client {
	c := &Client{
		httpTransport: t,
	}

	cacheSize := cfg.CacheSize

	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}

	cacheExpiration := cfg.CacheExpiration

	if cacheExpiration == 0 {
		cacheExpiration = defaultCacheExpiration
	}

	keyCacheExpiration := cfg.KeyCacheExpiration

	if keyCacheExpiration == 0 {
		keyCacheExpiration = defaultKeyCacheExpiration
	}

	c.fetchTimeout = cfg.FetchTimeout

	if c.fetchTimeout == 0 {
		c.fetchTimeout = defaultFetchTimeout
	}

	logger.Debug("Creating caches", logfields.WithSize(cacheSize),
		logfields.WithExpiration(cacheExpiration))

	c.actorCache = gcache.New(cacheSize).ARC().
		Expiration(cacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			iri, err := url.Parse(i.(string))
			if err != nil {
				return nil, fmt.Errorf("parse actor IRI: %w", err)
			}

			return c.getActor(iri)
		}).Build()

	c.publicKeyCache = gcache.New(cacheSize).ARC().
		Expiration(keyCacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			iri, err := url.Parse(i.(string))
			if err != nil {
				return nil, fmt.Errorf("parse key IRI: %w", err)
			}

			return c.getPublicKey(iri)
		}).Build()

	return c
}

// GetActor retrieves the actor at the given IRI. The actor is returned from the cache
// if it was resolved within the cache expiration period.
func (c *Client) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	result, err := c.actorCache.Get(actorIRI.String())
	if err != nil {
		logger.Debug("Error retrieving actor", logfields.WithActorIRI(actorIRI), log.WithError(err))

		return nil, err
	}

	return result.(*vocab.ActorType), nil
}

func (c *Client) getActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	respBytes, err := c.get(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", actorIRI, err)
	}

	logger.Debug("Got response", logfields.WithRequestURL(actorIRI), logfields.WithResponse(respBytes))

	actor := &vocab.ActorType{}

	err = json.Unmarshal(respBytes, actor)
	if err != nil {
		return nil, fmt.Errorf("invalid actor in response from %s: %w", actorIRI, err)
	}

	return actor, nil
}

// GetPublicKey retrieves the public key at the given IRI. The key is returned from the cache
// if it was resolved within the key cache expiration period.
func (c *Client) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	result, err := c.publicKeyCache.Get(keyIRI.String())
	if err != nil {
		logger.Debug("Error retrieving public key", logfields.WithKeyIRI(keyIRI), log.WithError(err))

		return nil, err
	}

	return result.(*vocab.PublicKeyType), nil
}

func (c *Client) getPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	respBytes, err := c.get(keyIRI)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", keyIRI, err)
	}

	logger.Debug("Got response", logfields.WithRequestURL(keyIRI), logfields.WithResponse(respBytes))

	pubKey := &vocab.PublicKeyType{}

	err = json.Unmarshal(respBytes, pubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key in response from %s: %w", keyIRI, err)
	}

	if pubKey.ID == nil {
		// Some services resolve a key IRI to the owning actor document rather than
		// the key document itself.
		actor := &vocab.ActorType{}

		if err := json.Unmarshal(respBytes, actor); err == nil && actor.PublicKey() != nil {
			return actor.PublicKey(), nil
		}

		return nil, fmt.Errorf("public key in response from %s has no ID", keyIRI)
	}

	return pubKey, nil
}

// GetReferences returns an iterator that reads all references at the given IRI. The IRI either resolves
// to an ActivityPub actor, collection or ordered collection.
func (c *Client) GetReferences(iri *url.URL) (ReferenceIterator, error) {
	respBytes, err := c.get(iri)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", iri, err)
	}

	logger.Debug("Got response", logfields.WithRequestURL(iri), logfields.WithResponse(respBytes))

	items, firstPage, totalItems, err := unmarshalCollection(respBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collection from %s: %w", iri, err)
	}

	return newReferenceIterator(items, firstPage, totalItems, c.get), nil
}

func (c *Client) get(iri *url.URL) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	resp, err := c.Get(ctx, transport.NewRequest(iri,
		transport.WithHeader(transport.AcceptHeader, transport.ActivityStreamsContentType)))
	if err != nil {
		return nil, brocaerrors.NewTransientf("request to %s failed: %w", iri, err)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Warn("Error closing response body", logfields.WithRequestURL(iri), log.WithError(e))
		}
	}()

	logger.Debug("Got response", logfields.WithRequestURL(iri),
		logfields.WithHTTPStatus(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, brocaerrors.NewTransientf("status code %d from %s", resp.StatusCode, iri)
		}

		return nil, fmt.Errorf("request to %s returned status code %d", iri, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, brocaerrors.NewTransientf("read response body from %s: %w", iri, err)
	}

	return respBytes, nil
}

type getFunc func(iri *url.URL) ([]byte, error)

type referenceIterator struct {
	totalItems   int
	currentItems []*url.URL
	currentIndex int
	nextPage     *url.URL
	get          getFunc
}

func newReferenceIterator(items []*url.URL, nextPage *url.URL, totalItems int, retrieve getFunc) *referenceIterator {
	return &referenceIterator{
		currentItems: items,
		totalItems:   totalItems,
		nextPage:     nextPage,
		get:          retrieve,
		currentIndex: 0,
	}
}

func (it *referenceIterator) Next() (*url.URL, error) {
	if it.currentIndex >= len(it.currentItems) {
		err := it.getNextPage()
		if err != nil {
			return nil, err
		}
	}

	item := it.currentItems[it.currentIndex]

	it.currentIndex++

	return item, nil
}

func (it *referenceIterator) TotalItems() int {
	return it.totalItems
}

func (it *referenceIterator) getNextPage() error {
	if it.nextPage == nil {
		return ErrNotFound
	}

	logger.Debug("Retrieving next page", logfields.WithNextIRI(it.nextPage))

	respBytes, err := it.get(it.nextPage)
	if err != nil {
		return fmt.Errorf("get references from %s: %w", it.nextPage, err)
	}

	page, err := unmarshalCollectionPage(respBytes)
	if err != nil {
		return err
	}

	var refs []*url.URL

	for _, item := range page.items {
		if item.IRI() != nil {
			refs = append(refs, item.IRI())
		} else {
			logger.Warn("Expecting IRI item in collection page",
				logfields.WithCurrentIRI(it.nextPage), logfields.WithType(item.Type().String()))
		}
	}

	it.currentItems = refs
	it.currentIndex = 0
	it.nextPage = page.next

	if len(it.currentItems) == 0 {
		return ErrNotFound
	}

	return nil
}

func unmarshalCollection(respBytes []byte) (items []*url.URL, firstPage *url.URL,
	totalCount int, err error) {
	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, &obj); err != nil {
		return nil, nil, 0, err
	}

	switch {
	case obj.Type().IsAny(vocab.TypeService, vocab.TypePerson):
		actor := &vocab.ActorType{}
		if err := json.Unmarshal(respBytes, actor); err != nil {
			return nil, nil, 0, fmt.Errorf("invalid actor in response: %w", err)
		}

		return []*url.URL{actor.ID().URL()}, nil, 1, nil

	case obj.Type().Is(vocab.TypeCollection):
		coll := &vocab.CollectionType{}
		if err := json.Unmarshal(respBytes, coll); err != nil {
			return nil, nil, 0, fmt.Errorf("invalid collection in response: %w", err)
		}

		return nil, coll.First(), coll.TotalItems(), nil

	case obj.Type().Is(vocab.TypeOrderedCollection):
		coll := &vocab.OrderedCollectionType{}
		if err := json.Unmarshal(respBytes, coll); err != nil {
			return nil, nil, 0, fmt.Errorf("invalid ordered collection in response: %w", err)
		}

		return nil, coll.First(), coll.TotalItems(), nil

	default:
		return nil, nil, 0, fmt.Errorf("expecting Service, Person, Collection, or OrderedCollection " +
			"in response payload")
	}
}

type page struct {
	items               []*vocab.ObjectProperty
	current, next, prev *url.URL
	totalItems          int
}

func unmarshalCollectionPage(respBytes []byte) (*page, error) {
	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, &obj); err != nil {
		return nil, err
	}

	switch {
	case obj.Type().Is(vocab.TypeCollectionPage):
		coll := &vocab.CollectionPageType{}

		err := json.Unmarshal(respBytes, coll)
		if err != nil {
			return nil, fmt.Errorf("invalid collection page in response: %w", err)
		}

		return &page{
			items:      coll.Items(),
			current:    coll.ID().URL(),
			next:       coll.Next(),
			prev:       coll.Prev(),
			totalItems: coll.TotalItems(),
		}, nil

	case obj.Type().Is(vocab.TypeOrderedCollectionPage):
		coll := &vocab.OrderedCollectionPageType{}

		err := json.Unmarshal(respBytes, coll)
		if err != nil {
			return nil, fmt.Errorf("invalid ordered collection page in response: %w", err)
		}

		return &page{
			items:      coll.Items(),
			current:    coll.ID().URL(),
			next:       coll.Next(),
			prev:       coll.Prev(),
			totalItems: coll.TotalItems(),
		}, nil

	default:
		return nil, fmt.Errorf("expecting CollectionPage or OrderedCollectionPage in response payload")
	}
}
