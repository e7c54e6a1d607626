/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tlsutil

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path"
)

// GetCertPool returns a cert pool containing the given PEM-encoded CA certs,
// optionally seeded with the system cert pool.
func GetCertPool(useSystemCertPool bool, tlsCACerts []string) (*x509.CertPool, error) {
	certPool, err := newCertPool(useSystemCertPool)
	if err != nil {
		return nil, fmt.Errorf("failed to create new cert pool: %w", err)
	}

	for _, v := range tlsCACerts {
		bytes, errRead := os.ReadFile(path.Clean(v))
		if errRead != nil {
			return nil, fmt.Errorf("failed to read cert: %w", errRead)
		}

		block, _ := pem.Decode(bytes)
		if block == nil {
			return nil, fmt.Errorf("failed to decode pem")
		}

		cert, errParse := x509.ParseCertificate(block.Bytes)
		if errParse != nil {
			return nil, fmt.Errorf("failed to parse cert: %w", errParse)
		}

		certPool.AddCert(cert)
	}

	return certPool, nil
}

func newCertPool(useSystemCertPool bool) (*x509.CertPool, error) {
	if !useSystemCertPool {
		return x509.NewCertPool(), nil
	}

	return x509.SystemCertPool()
}
