/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import "net/http"

// HTTPRequestHandler is an HTTP request handler function.
type HTTPRequestHandler func(http.ResponseWriter, *http.Request)

// HTTPHandler represents an HTTP handler for a REST endpoint.
type HTTPHandler interface {
	// Path returns the path of the endpoint.
	Path() string
	// Method returns the HTTP method of the endpoint.
	Method() string
	// Handler returns the handler function.
	Handler() HTTPRequestHandler
}
