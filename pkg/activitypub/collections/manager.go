/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collections

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/storeutil"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
)

// Page holds one page of resolved collection items.
type Page struct {
	// Items are the resolved items in the requested sort order.
	Items []*vocab.ObjectProperty
	// TotalItems is the total number of items in the collection.
	TotalItems int
}

// Manager provides CRUD operations on collection definitions, curates the membership
// of MANUAL collections, and resolves the contents of a collection into pages.
type Manager struct {
	defStore      *Store
	activityStore store.Store
}

// NewManager returns a new collection manager.
func NewManager(defStore *Store, activityStore store.Store) *Manager {
	return &Manager{
		defStore:      defStore,
		activityStore: activityStore,
	}
}

// Create validates and stores a new collection definition for the given owner.
// A 'bad request' error is returned if a collection with the same ID already exists.
func (m *Manager) Create(ownerIRI *url.URL, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if _, err := m.defStore.Get(ownerIRI, def.ID); err == nil {
		return brocaerrors.NewBadRequestf("collection [%s] already exists for actor [%s]", def.ID, ownerIRI)
	} else if !errors.Is(err, brocaerrors.ErrNotFound) {
		return err
	}

	now := time.Now()

	def.Owner = ownerIRI.String()
	def.Created = &now
	def.Updated = nil

	return m.defStore.Put(def)
}

// Update replaces the definition of an existing collection. The creation time of the
// original definition is preserved.
func (m *Manager) Update(ownerIRI *url.URL, def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	existing, err := m.defStore.Get(ownerIRI, def.ID)
	if err != nil {
		return err
	}

	now := time.Now()

	def.Owner = ownerIRI.String()
	def.Created = existing.Created
	def.Updated = &now

	return m.defStore.Put(def)
}

// Delete removes the definition of the given owner's collection.
func (m *Manager) Delete(ownerIRI *url.URL, collectionID string) error {
	if _, err := m.defStore.Get(ownerIRI, collectionID); err != nil {
		return err
	}

	return m.defStore.Delete(ownerIRI, collectionID)
}

// Get returns the definition of the given owner's collection.
func (m *Manager) Get(ownerIRI *url.URL, collectionID string) (*Definition, error) {
	return m.defStore.Get(ownerIRI, collectionID)
}

// List returns all collection definitions of the given owner, sorted by ID.
func (m *Manager) List(ownerIRI *url.URL) ([]*Definition, error) {
	defs, err := m.defStore.QueryByOwner(ownerIRI)
	if err != nil {
		return nil, err
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].ID < defs[j].ID
	})

	return defs, nil
}

// AddItem appends an item to a MANUAL collection. Adding an item that is already a
// member is an idempotent no-op.
func (m *Manager) AddItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error {
	def, err := m.defStore.Get(ownerIRI, collectionID)
	if err != nil {
		return err
	}

	if def.Type != TypeManual {
		return brocaerrors.NewBadRequestf("items may not be added to %s collection [%s]", def.Type, collectionID)
	}

	if def.ContainsItem(itemID.String()) {
		logger.Debug("Item is already in collection; nothing to do",
			logfields.WithCollection(collectionID), logfields.WithURI(itemID))

		return nil
	}

	if def.MaxItems > 0 && len(def.Items) >= def.MaxItems {
		return brocaerrors.NewBadRequestf("collection [%s] is full (maxItems: %d)", collectionID, def.MaxItems)
	}

	def.Items = append(def.Items, itemID.String())

	now := time.Now()
	def.Updated = &now

	return m.defStore.Put(def)
}

// RemoveItem removes an item from a MANUAL collection. Removing an item that is not a
// member is an idempotent no-op.
func (m *Manager) RemoveItem(ownerIRI *url.URL, collectionID string, itemID *url.URL) error {
	def, err := m.defStore.Get(ownerIRI, collectionID)
	if err != nil {
		return err
	}

	if def.Type != TypeManual {
		return brocaerrors.NewBadRequestf("items may not be removed from %s collection [%s]", def.Type, collectionID)
	}

	if !def.ContainsItem(itemID.String()) {
		logger.Debug("Item is not in collection; nothing to do",
			logfields.WithCollection(collectionID), logfields.WithURI(itemID))

		return nil
	}

	items := make([]string, 0, len(def.Items)-1)

	for _, item := range def.Items {
		if item != itemID.String() {
			items = append(items, item)
		}
	}

	def.Items = items

	now := time.Now()
	def.Updated = &now

	return m.defStore.Put(def)
}

// CollectionsMap returns the map of the owner's PUBLIC collections (ID to URL) that is
// advertised on the owner's actor document.
func (m *Manager) CollectionsMap(ownerIRI *url.URL) (map[string]string, error) {
	defs, err := m.defStore.QueryByOwner(ownerIRI)
	if err != nil {
		return nil, err
	}

	collections := make(map[string]string)

	for _, def := range defs {
		if def.Visibility == VisibilityPublic {
			collections[def.ID] = fmt.Sprintf("%s/collections/%s", ownerIRI, def.ID)
		}
	}

	return collections, nil
}

// ReadPage resolves the items of the given collection and returns the requested page.
func (m *Manager) ReadPage(ownerIRI *url.URL, def *Definition, pageNum, pageSize int) (*Page, error) {
	if pageSize <= 0 || pageNum < 0 {
		return nil, brocaerrors.NewBadRequestf("invalid page [%d] or page size [%d]", pageNum, pageSize)
	}

	var (
		items []*resolvedItem
		err   error
	)

	switch def.Type {
	case TypeManual:
		items, err = m.resolveManualItems(def)
	case TypeQuery:
		items, err = m.resolveQueryItems(ownerIRI, def)
	default:
		return nil, fmt.Errorf("unsupported collection type [%s]", def.Type)
	}

	if err != nil {
		return nil, err
	}

	sortItems(items, def.SortOrder)

	totalItems := len(items)

	startIdx := pageNum * pageSize
	if startIdx >= totalItems {
		return &Page{TotalItems: totalItems}, nil
	}

	endIdx := startIdx + pageSize
	if endIdx > totalItems {
		endIdx = totalItems
	}

	page := &Page{
		Items:      make([]*vocab.ObjectProperty, 0, endIdx-startIdx),
		TotalItems: totalItems,
	}

	for _, item := range items[startIdx:endIdx] {
		page.Items = append(page.Items, item.property)
	}

	return page, nil
}

// resolvedItem pairs a collection item with the timestamp used for chronological sorting.
type resolvedItem struct {
	property  *vocab.ObjectProperty
	published time.Time
}

// resolveManualItems resolves the member IDs of a MANUAL collection against the
// activity store. Members that cannot be resolved (e.g. the object was deleted) are
// skipped.
func (m *Manager) resolveManualItems(def *Definition) ([]*resolvedItem, error) {
	items := make([]*resolvedItem, 0, len(def.Items))

	for _, id := range def.Items {
		itemIRI, err := url.Parse(id)
		if err != nil {
			logger.Warn("Ignoring invalid item ID in collection", logfields.WithCollection(def.ID),
				logfields.WithURIString(id))

			continue
		}

		item, ok, err := m.resolveItem(itemIRI)
		if err != nil {
			return nil, err
		}

		if !ok {
			logger.Debug("Item in collection could not be resolved", logfields.WithCollection(def.ID),
				logfields.WithURI(itemIRI))

			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (m *Manager) resolveItem(itemIRI *url.URL) (*resolvedItem, bool, error) {
	obj, err := m.activityStore.GetObject(itemIRI)
	if err == nil {
		return &resolvedItem{
			property:  vocab.NewObjectProperty(vocab.WithObject(obj)),
			published: publishedTime(obj),
		}, true, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, brocaerrors.NewTransient(fmt.Errorf("get object [%s]: %w", itemIRI, err))
	}

	activity, err := m.activityStore.GetActivity(itemIRI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}

		return nil, false, brocaerrors.NewTransient(fmt.Errorf("get activity [%s]: %w", itemIRI, err))
	}

	return newItemFromActivity(activity), true, nil
}

// resolveQueryItems computes the membership of a QUERY collection by scanning the
// owner's outbox and applying the stored filter.
func (m *Manager) resolveQueryItems(ownerIRI *url.URL, def *Definition) ([]*resolvedItem, error) {
	it, err := m.activityStore.QueryActivities(
		store.NewCriteria(
			store.WithReferenceType(store.Outbox),
			store.WithObjectIRI(ownerIRI),
		),
	)
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("query outbox of [%s]: %w", ownerIRI, err))
	}

	defer func() {
		if err := it.Close(); err != nil {
			logfields.CloseIteratorError(logger, err)
		}
	}()

	activities, err := storeutil.ReadActivities(it, -1)
	if err != nil {
		return nil, brocaerrors.NewTransient(fmt.Errorf("read outbox of [%s]: %w", ownerIRI, err))
	}

	var items []*resolvedItem

	for _, activity := range activities {
		if matchesFilter(activity, def.Query) {
			items = append(items, newItemFromActivity(activity))
		}
	}

	return items, nil
}

// newItemFromActivity returns the collection item for an activity. A Create envelope is
// unwrapped so that the created object itself is the item.
func newItemFromActivity(activity *vocab.ActivityType) *resolvedItem {
	if activity.Type().Is(vocab.TypeCreate) {
		if obj := activity.Object().Object(); obj != nil {
			published := publishedTime(obj)

			if published.IsZero() && activity.Published() != nil {
				published = *activity.Published()
			}

			return &resolvedItem{
				property:  vocab.NewObjectProperty(vocab.WithObject(obj)),
				published: published,
			}
		}
	}

	return &resolvedItem{
		property:  vocab.NewObjectProperty(vocab.WithActivity(activity)),
		published: publishedTime(activity.ObjectType),
	}
}

func publishedTime(obj *vocab.ObjectType) time.Time {
	if obj == nil || obj.Published() == nil {
		return time.Time{}
	}

	return *obj.Published()
}

func sortItems(items []*resolvedItem, order SortOrder) {
	switch order {
	case SortChrono:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].published.Before(items[j].published)
		})
	case SortReverseChrono:
		sort.SliceStable(items, func(i, j int) bool {
			return items[j].published.Before(items[i].published)
		})
	case SortManual:
		// Items remain in their curated order.
	}
}
