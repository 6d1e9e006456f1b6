// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sigil-dev/ragbot/internal/chunker"
	"github.com/sigil-dev/ragbot/internal/completion"
	"github.com/sigil-dev/ragbot/internal/config"
	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/embedding"
	"github.com/sigil-dev/ragbot/internal/extract"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/provider"
	anthropicprov "github.com/sigil-dev/ragbot/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/ragbot/internal/provider/google"
	groqprov "github.com/sigil-dev/ragbot/internal/provider/groq"
	openaiprov "github.com/sigil-dev/ragbot/internal/provider/openai"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/internal/server"
	"github.com/sigil-dev/ragbot/internal/store"
	_ "github.com/sigil-dev/ragbot/internal/store/qdrant" // register qdrant backend
	_ "github.com/sigil-dev/ragbot/internal/store/sqlite" // register sqlite backends
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Runtime holds all wired subsystems and manages their lifecycle.
type Runtime struct {
	Config    *config.Config
	Registry  *provider.Registry
	Index     *index.Index
	Documents store.DocumentStore
	RAG       *rag.Service
	Manager   *docsync.Manager
}

// Wire creates all subsystems and wires them together. cfg.DataDir is the
// root directory for all persistent state.
func Wire(_ context.Context, cfg *config.Config) (_ *Runtime, err error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, ragerr.Errorf(ragerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	// 1. Completion providers and routing.
	rt.Registry = provider.NewRegistry()
	registerBuiltinProviders(cfg, rt.Registry)
	if err := rt.Registry.SetDefault(cfg.Completion.Model); err != nil {
		slog.Warn("completion model provider not available, answers will fall back",
			"model", cfg.Completion.Model, "error", err)
	} else if len(cfg.Completion.Failover) > 0 {
		if err := rt.Registry.SetFailover(cfg.Completion.Failover); err != nil {
			return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "setting failover chain")
		}
	}
	generator := completion.New(rt.Registry, completion.Options{
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		TopP:        cfg.Completion.TopP,
		Timeout:     cfg.Completion.Timeout,
	})

	// 2. Embedding index.
	embedder, err := embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "creating embedder")
	}
	rt.Index, err = index.Open(store.StorageConfig{
		Backend:    cfg.Index.Backend,
		Collection: cfg.Index.Collection,
		Qdrant: store.QdrantConfig{
			Host:   cfg.Index.Qdrant.Host,
			Port:   cfg.Index.Qdrant.Port,
			APIKey: cfg.Index.Qdrant.APIKey,
			UseTLS: cfg.Index.Qdrant.UseTLS,
		},
	}, indexPath(cfg), embedder)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening index")
	}

	// 3. Orchestrator.
	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, extract.NewDefaultRegistry())
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "creating chunker")
	}
	rt.RAG, err = rag.New(rag.Deps{Index: rt.Index, Generator: generator, Chunker: ch}, rag.Options{
		Threshold:    rag.Threshold(cfg.RAG.SimilarityThreshold),
		K:            cfg.RAG.K,
		SystemPrompt: cfg.RAG.SystemPrompt,
	})
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "creating rag service")
	}

	// 4. Document records and their sync lanes.
	rt.Documents, err = store.NewDocumentStore("sqlite", cfg.DataDir)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening document store")
	}
	rt.Manager = docsync.NewManager(rt.Documents, rt.RAG, documentsDir(cfg))

	return rt, nil
}

// NewServer builds the HTTP API over the runtime.
func (rt *Runtime) NewServer(listen string) (*server.Server, error) {
	services, err := server.NewServices(rt.RAG, rt.Manager, rt.Registry)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "creating services")
	}
	if listen == "" {
		listen = rt.Config.Server.Listen
	}
	srv, err := server.New(server.Config{
		ListenAddr:   listen,
		CORSOrigins:  rt.Config.Server.CORSOrigins,
		ReadTimeout:  rt.Config.Server.ReadTimeout,
		WriteTimeout: rt.Config.Server.WriteTimeout,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: rt.Config.Server.RateLimit.RequestsPerSecond,
			Burst:             rt.Config.Server.RateLimit.Burst,
		},
		Services: services,
	})
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "creating server")
	}
	return srv, nil
}

// Close drains pending document jobs and releases all resources.
func (rt *Runtime) Close() error {
	if rt.Manager != nil {
		rt.Manager.Close()
	}

	type closer interface{ Close() error }
	var closers []closer
	if rt.Documents != nil {
		closers = append(closers, rt.Documents)
	}
	if rt.Index != nil {
		closers = append(closers, rt.Index)
	}
	if rt.Registry != nil {
		closers = append(closers, rt.Registry)
	}

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return ragerr.Join(errs...)
}

// indexPath returns the index directory, defaulting to <data_dir>/index.
func indexPath(cfg *config.Config) string {
	if cfg.Index.Path != "" {
		return cfg.Index.Path
	}
	return filepath.Join(cfg.DataDir, "index")
}

// documentsDir resolves documents.dir against the data directory when relative.
func documentsDir(cfg *config.Config) string {
	dir := cfg.Documents.Dir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(cfg.DataDir, dir)
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"groq": func(pc config.ProviderConfig) (provider.Provider, error) {
		return groqprov.New(groqprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders iterates configured providers and registers
// matching built-in implementations. Unknown names or empty API keys are
// logged and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Debug("registered provider", "provider", name)
	}
}
