/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package maintenance

import (
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

const loggerModule = "maintenance"

const serviceUnavailableResponse = "Service Unavailable.\n"

// HandlerWrapper wraps an existing HTTP handler so that every call to the handler's endpoint
// returns 503 (Service Unavailable).
type HandlerWrapper struct {
	common.HTTPHandler

	writeResponse func(w http.ResponseWriter, status int, body []byte)
	logger        *log.Log
}

// NewMaintenanceWrapper will return service unavailable for the handler that was passed in.
func NewMaintenanceWrapper(handler common.HTTPHandler) *HandlerWrapper {
	logger := log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(handler.Path())))

	return &HandlerWrapper{
		HTTPHandler: handler,
		logger:      logger,
		writeResponse: func(w http.ResponseWriter, status int, body []byte) {
			w.WriteHeader(status)

			if len(body) > 0 {
				if _, err := w.Write(body); err != nil {
					logfields.WriteResponseBodyError(logger, err)

					return
				}

				logfields.WroteResponse(logger, body)
			}
		},
	}
}

// Handler returns the 'wrapper' handler.
func (h *HandlerWrapper) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, req *http.Request) {
		h.writeResponse(w, http.StatusServiceUnavailable, []byte(serviceUnavailableResponse))
	}
}
