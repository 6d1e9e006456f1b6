// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/provider"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// QueryService answers questions and manages the index. *rag.Service
// satisfies it.
type QueryService interface {
	Ask(ctx context.Context, question string, opts rag.AskOptions) rag.Answer
	SearchDocuments(ctx context.Context, query string, k int) []index.SearchResult
	Stats(ctx context.Context) rag.Stats
	TestConnection(ctx context.Context) rag.ConnectionStatus
	AddDocument(ctx context.Context, text string, metadata map[string]any) ([]string, error)
	Clear(ctx context.Context) error
}

// DocumentService manages document records. *docsync.Manager satisfies it.
type DocumentService interface {
	Save(ctx context.Context, doc *store.Document) (*store.Document, error)
	Get(ctx context.Context, id string) (*store.Document, error)
	List(ctx context.Context, filter store.DocumentFilter) ([]*store.Document, error)
	Delete(ctx context.Context, id string) error
	Process(ctx context.Context, ids ...string) []docsync.Outcome
	Unprocess(ctx context.Context, ids ...string) []docsync.Outcome
	SyncNow(ctx context.Context, id string) (*store.Document, error)
	Summary(ctx context.Context) (docsync.Summary, error)
}

// ProviderService reports LLM provider health. *provider.Registry satisfies it.
type ProviderService interface {
	Statuses(ctx context.Context) []provider.ProviderStatus
}

// Services holds the dependencies injected into route handlers.
type Services struct {
	query     QueryService
	documents DocumentService
	providers ProviderService // optional; nil = no provider routes
}

// NewServices validates and bundles route dependencies.
func NewServices(query QueryService, documents DocumentService, providers ProviderService) (*Services, error) {
	if query == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "query service is required")
	}
	if documents == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "document service is required")
	}
	return &Services{query: query, documents: documents, providers: providers}, nil
}

// NewServicesForTest is NewServices that panics on invalid input.
func NewServicesForTest(query QueryService, documents DocumentService, providers ProviderService) *Services {
	svc, err := NewServices(query, documents, providers)
	if err != nil {
		panic(err)
	}
	return svc
}
