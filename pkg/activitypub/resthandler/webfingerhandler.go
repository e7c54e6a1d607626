/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/activitypub/store/spi"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

const (
	resourceParam = "resource"
	acctPrefix    = "acct:"

	jrdContentType = "application/jrd+json"
)

// JRD is the JSON Resource Descriptor returned by the WebFinger endpoint.
type JRD struct {
	Subject string    `json:"subject"`
	Links   []JRDLink `json:"links"`
}

// JRDLink is a link within a JSON Resource Descriptor.
type JRDLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// WebFinger implements the WebFinger endpoint, which resolves an
// 'acct:{username}@{domain}' resource to the actor's profile URL.
type WebFinger struct {
	activityStore spi.Store
	serviceURL    *url.URL
	domain        string
	marshal       func(v interface{}) ([]byte, error)
	logger        *log.Log
}

// NewWebFinger returns the WebFinger REST handler. The handler is registered at the
// server root, outside of the configured base path.
func NewWebFinger(cfg *Config, activityStore spi.Store) *WebFinger {
	return &WebFinger{
		activityStore: activityStore,
		serviceURL:    cfg.ServiceEndpointURL,
		domain:        cfg.ServiceEndpointURL.Host,
		marshal:       json.Marshal,
		logger:        log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(WebFingerPath))),
	}
}

// Path returns the path of the WebFinger endpoint.
func (h *WebFinger) Path() string {
	return WebFingerPath
}

// Method returns the HTTP method, which is always GET.
func (h *WebFinger) Method() string {
	return http.MethodGet
}

// Handler returns the handler function that should be registered with an HTTP server.
func (h *WebFinger) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *WebFinger) handle(w http.ResponseWriter, req *http.Request) {
	resource := req.URL.Query().Get(resourceParam)
	if resource == "" {
		writeJRDResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	username, domain, err := parseAcctResource(resource)
	if err != nil {
		h.logger.Debug("Invalid WebFinger resource", logfields.WithParameter(resource), log.WithError(err))

		writeJRDResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	if domain != h.domain {
		h.logger.Debug("WebFinger resource is not on this domain", logfields.WithParameter(resource))

		writeJRDResponse(w, http.StatusNotFound, []byte(notFoundResponse))

		return
	}

	actorIRI, err := url.Parse(fmt.Sprintf("%s/users/%s", h.serviceURL, username))
	if err != nil {
		writeJRDResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	if _, err := h.activityStore.GetActor(actorIRI); err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			writeJRDResponse(w, http.StatusNotFound, []byte(notFoundResponse))

			return
		}

		h.logger.Error("Error retrieving actor", logfields.WithActorIRI(actorIRI), log.WithError(err))

		writeJRDResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	jrd := &JRD{
		Subject: fmt.Sprintf("%s%s@%s", acctPrefix, username, domain),
		Links: []JRDLink{
			{
				Rel:  "self",
				Type: ActivityJSONType,
				Href: actorIRI.String(),
			},
		},
	}

	jrdBytes, err := h.marshal(jrd)
	if err != nil {
		h.logger.Error("Unable to marshal JRD", logfields.WithActorIRI(actorIRI), log.WithError(err))

		writeJRDResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	writeJRDResponse(w, http.StatusOK, jrdBytes)
}

func parseAcctResource(resource string) (username, domain string, err error) {
	if !strings.HasPrefix(resource, acctPrefix) {
		return "", "", fmt.Errorf("resource must start with %q", acctPrefix)
	}

	acct := strings.TrimPrefix(resource, acctPrefix)

	parts := strings.Split(acct, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("resource must be of the form %susername@domain", acctPrefix)
	}

	return parts[0], parts[1], nil
}

func writeJRDResponse(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", jrdContentType)

	w.WriteHeader(status)

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			logger.Warn("Unable to write response", log.WithError(err))
		}
	}
}
