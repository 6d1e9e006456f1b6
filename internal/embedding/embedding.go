// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding maps text to dense vectors.
package embedding

import (
	"context"
	"sort"
	"sync"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultProvider   = "openai"
	DefaultEndpoint   = "http://localhost:11434/v1"
	DefaultModel      = "all-minilm"
	DefaultDimensions = 384
)

// Embedder turns texts into fixed-length vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string
	Model      string
	Endpoint   string
	APIKey     string
	Dimensions int
	CacheSize  int // 0 disables the query cache
}

// Factory builds an Embedder from configuration.
type Factory func(cfg Config) (Embedder, error)

var (
	backends   = map[string]Factory{}
	backendsMu sync.RWMutex
)

func init() {
	RegisterBackend("openai", func(cfg Config) (Embedder, error) { return NewOpenAI(cfg) })
	RegisterBackend("hashing", func(cfg Config) (Embedder, error) { return NewHashing(cfg.Dimensions) })
}

// RegisterBackend makes a backend available to New under name.
func RegisterBackend(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the configured backend, wrapped in a Cached decorator when
// cfg.CacheSize is positive.
func New(cfg Config) (Embedder, error) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	backendsMu.RLock()
	factory, ok := backends[cfg.Provider]
	backendsMu.RUnlock()
	if !ok {
		return nil, ragerr.New(ragerr.CodeEmbedBackendNotFound,
			"unknown embedding provider "+cfg.Provider, ragerr.FieldProvider(cfg.Provider))
	}

	e, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize), nil
	}
	return e, nil
}

// checkVectors verifies one vector of the expected length per input.
func checkVectors(name string, vectors [][]float32, inputs, dims int) error {
	if len(vectors) != inputs {
		return ragerr.Errorf(ragerr.CodeEmbedResponseInvalid,
			"%s: got %d embeddings for %d inputs", name, len(vectors), inputs)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return ragerr.Errorf(ragerr.CodeEmbedResponseInvalid,
				"%s: embedding %d has %d dimensions, want %d", name, i, len(v), dims)
		}
	}
	return nil
}
