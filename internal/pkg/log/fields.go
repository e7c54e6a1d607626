/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log Fields.
const (
	FieldURI             = "uri"
	FieldSenderURL       = "sender"
	FieldConfig          = "config"
	FieldServiceName     = "service"
	FieldServiceIRI      = "service-iri"
	FieldServiceEndpoint = "service-endpoint"
	FieldActorID         = "actor-id"
	FieldActivityType    = "activity-type"
	FieldActivityID      = "activity-id"
	FieldMessageID       = "message-id"
	FieldPayload         = "payload"
	FieldRequestURL      = "request-url"
	FieldRequestHeaders  = "request-headers"
	FieldRequestBody     = "request-body"
	FieldResponse        = "response"
	FieldSize            = "size"
	FieldExpiration      = "expiration"
	FieldTarget          = "target"
	FieldTopic           = "topic"
	FieldQueue           = "queue"
	FieldHTTPStatus      = "http-status"
	FieldParameter       = "parameter"
	FieldReferenceType   = "reference-type"
	FieldObjectIRI       = "object-iri"
	FieldReferenceIRI    = "reference"
	FieldKeyID           = "key-id"
	FieldKeyOwner        = "key-owner"
	FieldCurrent         = "current"
	FieldNext            = "next"
	FieldTotalItems      = "total"
	FieldType            = "type"
	FieldQuery           = "query"
	FieldLogSpec         = "log-spec"
	FieldTaskMgrInstance = "task-mgr-instance"
	FieldTaskID          = "task-id"
	FieldStoreName       = "store"
	FieldUsername        = "username"
	FieldInboxURL        = "inbox-url"
	FieldQueueItemID     = "queue-item-id"
	FieldDeliveryStatus  = "delivery-status"
	FieldAttempts        = "attempts"
	FieldNextAttemptTime = "next-attempt-time"
	FieldCollection      = "collection"
	FieldVisibility      = "visibility"
	FieldAttachmentURL   = "attachment-url"
	FieldDeliveryDelay   = "delivery-delay"
	FieldTimeout         = "timeout"
	FieldMaxRetries      = "max-retries"
	FieldPoolSize        = "pool-size"
	FieldStatus          = "status"
	FieldPermitHolder    = "permit-holder"
	FieldTimeSinceUpdate = "time-since-last-update"
	FieldMonitorInterval = "monitor-interval"
	FieldMaxTime         = "max-time"
	FieldAddress         = "address"
	FieldIndex           = "index"
	FieldBackoff         = "backoff"
	FieldVersion         = "version"
	FieldTracingProvider = "tracing-provider"
	FieldContentType     = "content-type"
	FieldHash            = "hash"
	FieldKey             = "key"
	FieldSlug            = "slug"
	FieldInterval        = "interval"
	FieldBlobID          = "blob-id"
	FieldMetadata        = "metadata"
	FieldProperty        = "property"
	FieldValue           = "value"
	FieldDuration        = "duration"
)

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// WithMessageID sets the message-id field.
func WithMessageID(value string) zap.Field {
	return zap.String(FieldMessageID, value)
}

// WithPayload sets the payload field.
func WithPayload(value []byte) zap.Field {
	return zap.String(FieldPayload, string(value))
}

// WithRequestURL sets the request-url field.
func WithRequestURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldRequestURL, value)
}

// WithRequestURLString sets the request-url field.
func WithRequestURLString(value string) zap.Field {
	return zap.String(FieldRequestURL, value)
}

// WithRequestHeaders sets the request-headers field.
func WithRequestHeaders(value http.Header) zap.Field {
	return zap.Object(FieldRequestHeaders, newHTTPHeaderMarshaller(value))
}

// WithRequestBody sets the request-body field.
func WithRequestBody(value []byte) zap.Field {
	return zap.String(FieldRequestBody, string(value))
}

// WithResponse sets the response field.
func WithResponse(value []byte) zap.Field {
	return zap.String(FieldResponse, string(value))
}

// WithServiceName sets the service field.
func WithServiceName(value string) zap.Field {
	return zap.String(FieldServiceName, value)
}

// WithServiceIRI sets the service-iri field.
func WithServiceIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldServiceIRI, value)
}

// WithServiceEndpoint sets the service-endpoint field.
func WithServiceEndpoint(value string) zap.Field {
	return zap.String(FieldServiceEndpoint, value)
}

// WithActivityType sets the activity-type field.
func WithActivityType(value string) zap.Field {
	return zap.String(FieldActivityType, value)
}

// WithActivityID sets the activity-id field.
func WithActivityID(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActivityID, value)
}

// WithActivityIDString sets the activity-id field.
func WithActivityIDString(value string) zap.Field {
	return zap.String(FieldActivityID, value)
}

// WithActorIRI sets the actor-id field.
func WithActorIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActorID, value)
}

// WithActorID sets the actor-id field.
func WithActorID(value string) zap.Field {
	return zap.String(FieldActorID, value)
}

// WithConfig sets the config field. The value of the field is
// encoded as JSON.
func WithConfig(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldConfig, value))
}

// WithSize sets the size field.
func WithSize(value int) zap.Field {
	return zap.Int(FieldSize, value)
}

// WithExpiration sets the expiration field.
func WithExpiration(value time.Duration) zap.Field {
	return zap.Duration(FieldExpiration, value)
}

// WithTarget sets the target field.
func WithTarget(value string) zap.Field {
	return zap.String(FieldTarget, value)
}

// WithTargetIRI sets the target field.
func WithTargetIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldTarget, value)
}

// WithTopic sets the topic field.
func WithTopic(value string) zap.Field {
	return zap.String(FieldTopic, value)
}

// WithQueue sets the queue field.
func WithQueue(value string) zap.Field {
	return zap.String(FieldQueue, value)
}

// WithHTTPStatus sets the http-status field.
func WithHTTPStatus(value int) zap.Field {
	return zap.Int(FieldHTTPStatus, value)
}

// WithParameter sets the parameter field.
func WithParameter(value string) zap.Field {
	return zap.String(FieldParameter, value)
}

// WithReferenceType sets the reference-type field.
func WithReferenceType(value string) zap.Field {
	return zap.String(FieldReferenceType, value)
}

// WithURI sets the uri field.
func WithURI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldURI, value)
}

// WithURIString sets the uri field.
func WithURIString(value string) zap.Field {
	return zap.String(FieldURI, value)
}

// WithURIs sets the uris field.
func WithURIs(value ...*url.URL) zap.Field {
	return zap.Array("uris", newURLArrayMarshaller(value))
}

// WithSenderURL sets the sender field.
func WithSenderURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldSenderURL, value)
}

// WithObjectIRI sets the object-iri field.
func WithObjectIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldObjectIRI, value)
}

// WithReferenceIRI sets the reference field.
func WithReferenceIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldReferenceIRI, value)
}

// WithKeyID sets the key-id field.
func WithKeyID(value string) zap.Field {
	return zap.String(FieldKeyID, value)
}

// WithKeyIRI sets the key-id field.
func WithKeyIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldKeyID, value)
}

// WithKeyOwnerIRI sets the key-owner field.
func WithKeyOwnerIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldKeyOwner, value)
}

// WithCurrentIRI sets the current field.
func WithCurrentIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldCurrent, value)
}

// WithNextIRI sets the next field.
func WithNextIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNext, value)
}

// WithTotal sets the total field.
func WithTotal(value int) zap.Field {
	return zap.Int(FieldTotalItems, value)
}

// WithType sets the type field.
func WithType(value string) zap.Field {
	return zap.String(FieldType, value)
}

// WithQuery sets the query field. The value of the field is
// encoded as JSON.
func WithQuery(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldQuery, value))
}

// WithLogSpec sets the log-spec field.
func WithLogSpec(value string) zap.Field {
	return zap.String(FieldLogSpec, value)
}

// WithTaskMgrInstanceID sets the task-mgr-instance field.
func WithTaskMgrInstanceID(value string) zap.Field {
	return zap.String(FieldTaskMgrInstance, value)
}

// WithTaskID sets the task-id field.
func WithTaskID(value string) zap.Field {
	return zap.String(FieldTaskID, value)
}

// WithStoreName sets the store field.
func WithStoreName(value string) zap.Field {
	return zap.String(FieldStoreName, value)
}

// WithUsername sets the username field.
func WithUsername(value string) zap.Field {
	return zap.String(FieldUsername, value)
}

// WithBlobID sets the blob-id field.
func WithBlobID(value string) zap.Field {
	return zap.String(FieldBlobID, value)
}

// WithMetadata sets the metadata field. The value of the field is
// encoded as JSON.
func WithMetadata(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldMetadata, value))
}

// WithProperty sets the property field.
func WithProperty(value string) zap.Field {
	return zap.String(FieldProperty, value)
}

// WithValue sets the value field.
func WithValue(value string) zap.Field {
	return zap.String(FieldValue, value)
}

// WithInboxURL sets the inbox-url field.
func WithInboxURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldInboxURL, value)
}

// WithInboxURLString sets the inbox-url field.
func WithInboxURLString(value string) zap.Field {
	return zap.String(FieldInboxURL, value)
}

// WithQueueItemID sets the queue-item-id field.
func WithQueueItemID(value string) zap.Field {
	return zap.String(FieldQueueItemID, value)
}

// WithDeliveryStatus sets the delivery-status field.
func WithDeliveryStatus(value string) zap.Field {
	return zap.String(FieldDeliveryStatus, value)
}

// WithAttempts sets the attempts field.
func WithAttempts(value int) zap.Field {
	return zap.Int(FieldAttempts, value)
}

// WithNextAttemptTime sets the next-attempt-time field.
func WithNextAttemptTime(value time.Time) zap.Field {
	return zap.Time(FieldNextAttemptTime, value)
}

// WithCollection sets the collection field.
func WithCollection(value string) zap.Field {
	return zap.String(FieldCollection, value)
}

// WithVisibility sets the visibility field.
func WithVisibility(value string) zap.Field {
	return zap.String(FieldVisibility, value)
}

// WithAttachmentURL sets the attachment-url field.
func WithAttachmentURL(value string) zap.Field {
	return zap.String(FieldAttachmentURL, value)
}

// WithDeliveryDelay sets the delivery-delay field.
func WithDeliveryDelay(value time.Duration) zap.Field {
	return zap.Duration(FieldDeliveryDelay, value)
}

// WithTimeout sets the timeout field.
func WithTimeout(value time.Duration) zap.Field {
	return zap.Duration(FieldTimeout, value)
}

// WithInterval sets the interval field.
func WithInterval(value time.Duration) zap.Field {
	return zap.Duration(FieldInterval, value)
}

// WithMaxRetries sets the max-retries field.
func WithMaxRetries(value int) zap.Field {
	return zap.Int(FieldMaxRetries, value)
}

// WithPoolSize sets the pool-size field.
func WithPoolSize(value int) zap.Field {
	return zap.Int(FieldPoolSize, value)
}

// WithStatus sets the status field.
func WithStatus(value string) zap.Field {
	return zap.String(FieldStatus, value)
}

// WithPermitHolder sets the permit-holder field.
func WithPermitHolder(value string) zap.Field {
	return zap.String(FieldPermitHolder, value)
}

// WithTimeSinceLastUpdate sets the time-since-last-update field.
func WithTimeSinceLastUpdate(value time.Duration) zap.Field {
	return zap.Duration(FieldTimeSinceUpdate, value)
}

// WithTaskMonitorInterval sets the monitor-interval field.
func WithTaskMonitorInterval(value time.Duration) zap.Field {
	return zap.Duration(FieldMonitorInterval, value)
}

// WithMaxTime sets the max-time field.
func WithMaxTime(value time.Duration) zap.Field {
	return zap.Duration(FieldMaxTime, value)
}

// WithAddress sets the address field.
func WithAddress(value string) zap.Field {
	return zap.String(FieldAddress, value)
}

// WithIndex sets the index field.
func WithIndex(value int) zap.Field {
	return zap.Int(FieldIndex, value)
}

// WithBackoff sets the backoff field.
func WithBackoff(value time.Duration) zap.Field {
	return zap.Duration(FieldBackoff, value)
}

// WithVersion sets the version field.
func WithVersion(value string) zap.Field {
	return zap.String(FieldVersion, value)
}

// WithTracingProvider sets the tracing-provider field.
func WithTracingProvider(value string) zap.Field {
	return zap.String(FieldTracingProvider, value)
}

// WithContentType sets the content-type field.
func WithContentType(value string) zap.Field {
	return zap.String(FieldContentType, value)
}

// WithHash sets the hash field.
func WithHash(value string) zap.Field {
	return zap.String(FieldHash, value)
}

// WithKey sets the key field.
func WithKey(value string) zap.Field {
	return zap.String(FieldKey, value)
}

// WithSlug sets the slug field.
func WithSlug(value string) zap.Field {
	return zap.String(FieldSlug, value)
}

// WithDuration sets the duration field.
func WithDuration(value time.Duration) zap.Field {
	return zap.Duration(FieldDuration, value)
}

// NewObjectMarshaller returns a marshaller that logs the given object as an
// inline JSON-encoded field.
func NewObjectMarshaller(key string, obj interface{}) zapcore.ObjectMarshaler {
	return newJSONMarshaller(key, obj)
}

type jsonMarshaller struct {
	key string
	obj interface{}
}

func newJSONMarshaller(key string, value interface{}) *jsonMarshaller {
	return &jsonMarshaller{key: key, obj: value}
}

func (m *jsonMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	b, err := json.Marshal(m.obj)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	e.AddString(m.key, string(b))

	return nil
}

type urlArrayMarshaller struct {
	urls []*url.URL
}

func newURLArrayMarshaller(urls []*url.URL) *urlArrayMarshaller {
	return &urlArrayMarshaller{urls: urls}
}

func (m *urlArrayMarshaller) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, u := range m.urls {
		e.AppendString(u.String())
	}

	return nil
}

type httpHeaderMarshaller struct {
	headers http.Header
}

func newHTTPHeaderMarshaller(headers http.Header) *httpHeaderMarshaller {
	return &httpHeaderMarshaller{headers: headers}
}

func (m *httpHeaderMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	for k, values := range m.headers {
		if err := e.AddArray(k, newStringArrayMarshaller(values)); err != nil {
			return fmt.Errorf("marshal values: %w", err)
		}
	}

	return nil
}

type stringArrayMarshaller struct {
	values []string
}

func newStringArrayMarshaller(values []string) *stringArrayMarshaller {
	return &stringArrayMarshaller{values: values}
}

func (m *stringArrayMarshaller) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, v := range m.values {
		e.AppendString(v)
	}

	return nil
}
