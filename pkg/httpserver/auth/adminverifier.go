/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"crypto/subtle"
	"net/http"
)

// AdminVerifier authorizes requests with the administrative bearer token.
// Unlike TokenVerifier, access is denied when no token is configured.
type AdminVerifier struct {
	token string
}

// NewAdminVerifier returns a verifier for the given administrative API token.
func NewAdminVerifier(token string) *AdminVerifier {
	return &AdminVerifier{token: token}
}

// Verify returns true if the request carries the administrative bearer token.
// If no token is configured then false is always returned.
func (v *AdminVerifier) Verify(req *http.Request) bool {
	if v.token == "" {
		return false
	}

	return subtle.ConstantTimeCompare(
		[]byte(req.Header.Get(authHeader)), []byte(tokenPrefix+v.token),
	) == 1
}
