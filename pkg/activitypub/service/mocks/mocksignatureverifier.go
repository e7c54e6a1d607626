/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/http"
	"net/url"
	"sync"
)

// SignatureVerifier implements a mock HTTP signature verifier.
type SignatureVerifier struct {
	mutex    sync.RWMutex
	verified bool
	actorIRI *url.URL
	err      error
}

// VerifyRequestReturns sets the values that are returned by VerifyRequest.
func (m *SignatureVerifier) VerifyRequestReturns(verified bool, actorIRI *url.URL, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.verified = verified
	m.actorIRI = actorIRI
	m.err = err
}

// VerifyRequest returns the canned values.
func (m *SignatureVerifier) VerifyRequest(_ *http.Request) (bool, *url.URL, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.verified, m.actorIRI, m.err
}
