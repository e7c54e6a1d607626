/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetCertPool(t *testing.T) {
	t.Run("No CA certs", func(t *testing.T) {
		pool, err := GetCertPool(false, nil)
		require.NoError(t, err)
		require.NotNil(t, pool)
		require.Empty(t, pool.Subjects()) //nolint:staticcheck
	})

	t.Run("With CA cert", func(t *testing.T) {
		pool, err := GetCertPool(false, []string{newCertFile(t)})
		require.NoError(t, err)
		require.NotNil(t, pool)
		require.Len(t, pool.Subjects(), 1) //nolint:staticcheck
	})

	t.Run("System cert pool", func(t *testing.T) {
		pool, err := GetCertPool(true, nil)
		require.NoError(t, err)
		require.NotNil(t, pool)
	})

	t.Run("Cert file not found -> error", func(t *testing.T) {
		pool, err := GetCertPool(false, []string{filepath.Join(t.TempDir(), "no-such-cert.pem")})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read cert")
		require.Nil(t, pool)
	})

	t.Run("Invalid PEM -> error", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "invalid.pem")
		require.NoError(t, os.WriteFile(file, []byte("not a pem"), 0o600))

		pool, err := GetCertPool(false, []string{file})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to decode pem")
		require.Nil(t, pool)
	})

	t.Run("Invalid certificate -> error", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "invalid-cert.pem")

		block := &pem.Block{Type: "CERTIFICATE", Bytes: []byte("not a certificate")}
		require.NoError(t, os.WriteFile(file, pem.EncodeToMemory(block), 0o600))

		pool, err := GetCertPool(false, []string{file})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to parse cert")
		require.Nil(t, pool)
	})
}

func newCertFile(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "broca-test-ca"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "ca.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(file, certPEM, 0o600))

	return file
}
