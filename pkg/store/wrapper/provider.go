/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wrapper

import "github.com/hyperledger/aries-framework-go/spi/storage"

// ProviderWrapper wraps an aries provider so that every store it opens
// records operation timings.
type ProviderWrapper struct {
	p      storage.Provider
	m      metricsProvider
	dbType string
}

// NewProvider returns a new store provider wrapper.
func NewProvider(p storage.Provider, dbType string, metrics metricsProvider) *ProviderWrapper {
	return &ProviderWrapper{p: p, m: metrics, dbType: dbType}
}

// OpenStore opens the store with the given name and wraps it.
func (prov *ProviderWrapper) OpenStore(name string) (storage.Store, error) {
	s, err := prov.p.OpenStore(name)
	if err != nil {
		return nil, err
	}

	return NewStore(s, prov.dbType, prov.m), nil
}

// SetStoreConfig sets the store config.
func (prov *ProviderWrapper) SetStoreConfig(name string, config storage.StoreConfiguration) error {
	return prov.p.SetStoreConfig(name, config)
}

// GetStoreConfig gets the store config.
func (prov *ProviderWrapper) GetStoreConfig(name string) (storage.StoreConfiguration, error) {
	return prov.p.GetStoreConfig(name)
}

// GetOpenStores gets the open stores.
func (prov *ProviderWrapper) GetOpenStores() []storage.Store {
	return prov.p.GetOpenStores()
}

// Close closes the provider.
func (prov *ProviderWrapper) Close() error {
	return prov.p.Close()
}

type pinger interface {
	Ping() error
}

// Ping verifies that the underlying database is reachable. Providers that
// don't support pinging (such as the in-memory provider) always succeed.
func (prov *ProviderWrapper) Ping() error {
	if p, ok := prov.p.(pinger); ok {
		return p.Ping()
	}

	return nil
}
