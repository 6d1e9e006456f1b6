// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sort"
	"sync"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultVectorBackend    = "sqlite-vec"
	DefaultVectorDimensions = 384
	DefaultCollection       = "documents"
)

// VectorStoreFactory creates a vector store rooted at dataPath. Remote
// backends ignore dataPath.
type VectorStoreFactory func(cfg StorageConfig, dataPath string) (VectorStore, error)

// DocumentStoreFactory creates the document record store rooted at dataPath.
type DocumentStoreFactory func(dataPath string) (DocumentStore, error)

var (
	vectorFactories   = map[string]VectorStoreFactory{}
	documentFactories = map[string]DocumentStoreFactory{}
	factoriesMu       sync.RWMutex
)

// RegisterVectorBackend registers a vector store backend. Backend packages
// call this from init(). This function is goroutine-safe.
func RegisterVectorBackend(name string, f VectorStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	vectorFactories[name] = f
}

// RegisterDocumentBackend registers a document store backend.
func RegisterDocumentBackend(name string, f DocumentStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	documentFactories[name] = f
}

// VectorBackends lists the registered vector backends.
func VectorBackends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(vectorFactories))
	for name := range vectorFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withDefaults fills zero fields of cfg.
func withDefaults(cfg StorageConfig) StorageConfig {
	if cfg.Backend == "" {
		cfg.Backend = DefaultVectorBackend
	}
	if cfg.VectorDimensions <= 0 {
		cfg.VectorDimensions = DefaultVectorDimensions
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return cfg
}

// NewVectorStore creates the configured vector store.
func NewVectorStore(cfg StorageConfig, dataPath string) (VectorStore, error) {
	cfg = withDefaults(cfg)

	factoriesMu.RLock()
	factory, ok := vectorFactories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, ragerr.Errorf(ragerr.CodeStoreBackendUnsupported, "unsupported vector backend: %q", cfg.Backend)
	}
	return factory(cfg, dataPath)
}

// NewDocumentStore creates the document store of the named backend.
func NewDocumentStore(backend, dataPath string) (DocumentStore, error) {
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	factory, ok := documentFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, ragerr.Errorf(ragerr.CodeStoreBackendUnsupported, "unsupported document backend: %q", backend)
	}
	return factory(dataPath)
}
