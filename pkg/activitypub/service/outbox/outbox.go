/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbox

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/service/delivery"
	service "github.com/broca-activitypub/broca/pkg/activitypub/service/spi"
	store "github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/activitypub/vocab"
	brocaerrors "github.com/broca-activitypub/broca/pkg/errors"
	"github.com/broca-activitypub/broca/pkg/lifecycle"
)

const loggerModule = "activitypub_service"

// Config holds configuration parameters for the outbox.
type Config struct {
	ServiceName        string
	ServiceEndpointURL *url.URL
}

type deliveryEngine interface {
	Enqueue(sender *url.URL, activity *vocab.ActivityType, route delivery.Route) (int, error)
}

type metricsProvider interface {
	OutboxPostTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
}

// Outbox implements the ActivityPub outbox.
type Outbox struct {
	*Config
	*lifecycle.Lifecycle

	activityHandler service.ActivityHandler
	activityStore   store.Store
	deliverer       deliveryEngine
	metrics         metricsProvider
	logger          *log.Log
}

// New returns a new ActivityPub Outbox.
func New(cnfg *Config, s store.Store, activityHandler service.ActivityHandler,
	deliverer deliveryEngine, metrics metricsProvider) *Outbox {
	logger := log.New(loggerModule, log.WithFields(logfields.WithServiceName(cnfg.ServiceName)))

	logger.Debug("Creating Outbox", logfields.WithConfig(cnfg))

	h := &Outbox{
		Config:          cnfg,
		activityHandler: activityHandler,
		activityStore:   s,
		deliverer:       deliverer,
		metrics:         metrics,
		logger:          logger,
	}

	h.Lifecycle = lifecycle.New(cnfg.ServiceName,
		lifecycle.WithStop(h.stop),
	)

	return h
}

func (h *Outbox) stop() {
	h.logger.Info("Outbox stopped")
}

// Post posts an activity to the outbox of the actor given by the activity's 'actor'
// property and returns the ID of the activity that was posted. If the activity does
// not specify an ID then a unique ID is generated. The activity is persisted and its
// local side effects are applied before any deliveries are queued, so an activity
// whose side effects fail is not federated.
func (h *Outbox) Post(activity *vocab.ActivityType) (*url.URL, error) {
	if h.State() != lifecycle.StateStarted {
		return nil, lifecycle.ErrNotStarted
	}

	h.incrementCount(activity.Type().Types())

	startTime := time.Now()
	defer func() {
		h.metrics.OutboxPostTime(time.Since(startTime))
	}()

	activity, actorIRI, err := h.validateAndPopulateActivity(activity)
	if err != nil {
		return nil, err
	}

	if err := h.storeActivity(actorIRI, activity); err != nil {
		return nil, fmt.Errorf("store activity [%s]: %w", activity.ID(), err)
	}

	if err := h.activityHandler.HandleActivity(actorIRI, activity); err != nil {
		return nil, fmt.Errorf("handle activity [%s]: %w", activity.ID(), err)
	}

	numQueued, err := h.deliverer.Enqueue(actorIRI, activity, routeFor(activity, actorIRI))
	if err != nil {
		return nil, fmt.Errorf("enqueue deliveries for activity [%s]: %w", activity.ID(), err)
	}

	h.logger.Debug("Posted activity to outbox", logfields.WithActivityID(activity.ID()),
		logfields.WithTotal(numQueued))

	return activity.ID().URL(), nil
}

func (h *Outbox) validateAndPopulateActivity(activity *vocab.ActivityType) (*vocab.ActivityType, *url.URL, error) {
	if activity.Type() == nil {
		return nil, nil, brocaerrors.NewBadRequest(errors.New("no type specified in activity"))
	}

	actorIRI := activity.Actor()
	if actorIRI == nil {
		return nil, nil, brocaerrors.NewBadRequest(errors.New("no actor specified in activity"))
	}

	if _, err := h.activityStore.GetActor(actorIRI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, brocaerrors.NewBadRequest(fmt.Errorf("actor [%s] is not hosted by this service", actorIRI))
		}

		return nil, nil, fmt.Errorf("get actor [%s]: %w", actorIRI, err)
	}

	if activity.ID() == nil {
		activity.SetID(h.newActivityID())
	}

	if activity.Published() == nil {
		now := time.Now()

		activity.SetPublished(&now)
	}

	if err := h.populateEmbeddedObject(actorIRI, activity); err != nil {
		return nil, nil, err
	}

	return activity, actorIRI, nil
}

// populateEmbeddedObject assigns an ID to the embedded object of a Create, Update,
// or Add activity (if it doesn't already have one) and persists the object so that
// it may be dereferenced independently of the activity.
func (h *Outbox) populateEmbeddedObject(actorIRI *url.URL, activity *vocab.ActivityType) error {
	if !activity.Type().IsAny(vocab.TypeCreate, vocab.TypeUpdate, vocab.TypeAdd) {
		return nil
	}

	obj := activity.Object().Object()
	if obj == nil {
		return nil
	}

	if obj.ID() == nil || obj.ID().URL() == nil {
		obj.SetID(h.newObjectID(actorIRI))
	}

	if obj.Published() == nil {
		obj.SetPublished(activity.Published())
	}

	if err := h.activityStore.PutObject(obj); err != nil {
		return fmt.Errorf("store object [%s]: %w", obj.ID(), err)
	}

	return nil
}

func (h *Outbox) newActivityID() *url.URL {
	id, err := url.Parse(fmt.Sprintf("%s/activities/%s", h.ServiceEndpointURL, uuid.New()))
	if err != nil {
		// Should never happen since we've already validated the URLs
		panic(err)
	}

	return id
}

func (h *Outbox) newObjectID(actorIRI *url.URL) *url.URL {
	id, err := url.Parse(fmt.Sprintf("%s/objects/%s", actorIRI, uuid.New()))
	if err != nil {
		// Should never happen since we've already validated the URLs
		panic(err)
	}

	return id
}

func (h *Outbox) storeActivity(actorIRI *url.URL, activity *vocab.ActivityType) error {
	if err := h.activityStore.AddActivity(activity); err != nil {
		return fmt.Errorf("store activity: %w", err)
	}

	if err := h.activityStore.AddReference(store.Outbox, actorIRI, activity.ID().URL(),
		store.WithActivityType(activity.Type().Types()[0])); err != nil {
		return fmt.Errorf("add reference to activity: %w", err)
	}

	if isPublic(activity) {
		if err := h.activityStore.AddReference(store.PublicOutbox, actorIRI, activity.ID().URL(),
			store.WithActivityType(activity.Type().Types()[0])); err != nil {
			return fmt.Errorf("add reference to activity: %w", err)
		}
	}

	return nil
}

func (h *Outbox) incrementCount(types []vocab.Type) {
	for _, activityType := range types {
		h.metrics.OutboxIncrementActivityCount(string(activityType))
	}
}

// routeFor chooses the delivery route for an activity: the explicit recipients when
// the activity addresses anyone besides the public IRI and the actor itself, the
// target actor when the activity is directed, and otherwise the actor's followers.
func routeFor(activity *vocab.ActivityType, actorIRI *url.URL) delivery.Route {
	if hasExplicitRecipients(activity, actorIRI) {
		return delivery.ToRecipients()
	}

	if target := directedTarget(activity); target != nil {
		return delivery.ToActor(target)
	}

	return delivery.ToFollowers()
}

func hasExplicitRecipients(activity *vocab.ActivityType, actorIRI *url.URL) bool {
	for _, r := range activity.Recipients() {
		if r.String() != vocab.PublicIRI && r.String() != actorIRI.String() {
			return true
		}
	}

	return false
}

// directedTarget returns the actor at which a directed activity is aimed. A Follow is
// directed at its object, a Like or Announce at the author of its object, an Accept
// or Reject at the actor of the embedded activity, and an Undo at the object of the
// embedded activity. Nil is returned for activities that aren't directed.
func directedTarget(activity *vocab.ActivityType) *url.URL {
	switch {
	case activity.Type().Is(vocab.TypeFollow):
		return activity.Object().IRI()

	case activity.Type().IsAny(vocab.TypeLike, vocab.TypeAnnounce):
		if obj := activity.Object().Object(); obj != nil && obj.AttributedTo() != nil {
			return obj.AttributedTo().URL()
		}

		return activity.Object().IRI()

	case activity.Type().IsAny(vocab.TypeAccept, vocab.TypeReject):
		if embedded := activity.Object().Activity(); embedded != nil {
			return embedded.Actor()
		}

	case activity.Type().Is(vocab.TypeUndo):
		if embedded := activity.Object().Activity(); embedded != nil {
			return embedded.Object().IRI()
		}
	}

	return nil
}

func isPublic(activity *vocab.ActivityType) bool {
	for _, r := range activity.Recipients() {
		if r.String() == vocab.PublicIRI {
			return true
		}
	}

	return false
}
