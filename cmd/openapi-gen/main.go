// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/provider"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/internal/server"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against no-op services and returns the
// OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   server.NewServicesForTest(stubQuery{}, stubDocuments{}, stubProviders{}),
	})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeCLISetupFailure, "creating server")
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubQuery struct{}

func (stubQuery) Ask(context.Context, string, rag.AskOptions) rag.Answer { return rag.Answer{} }
func (stubQuery) SearchDocuments(context.Context, string, int) []index.SearchResult {
	return nil
}
func (stubQuery) Stats(context.Context) rag.Stats { return rag.Stats{} }
func (stubQuery) TestConnection(context.Context) rag.ConnectionStatus { return rag.ConnectionStatus{} }
func (stubQuery) Clear(context.Context) error { return nil }
func (stubQuery) AddDocument(context.Context, string, map[string]any) ([]string, error) {
	return nil, nil
}

type stubDocuments struct{}

func (stubDocuments) Save(context.Context, *store.Document) (*store.Document, error) {
	return nil, nil
}
func (stubDocuments) Get(context.Context, string) (*store.Document, error) { return nil, nil }
func (stubDocuments) List(context.Context, store.DocumentFilter) ([]*store.Document, error) {
	return nil, nil
}
func (stubDocuments) Delete(context.Context, string) error { return nil }
func (stubDocuments) Process(context.Context, ...string) []docsync.Outcome { return nil }
func (stubDocuments) Unprocess(context.Context, ...string) []docsync.Outcome { return nil }
func (stubDocuments) SyncNow(context.Context, string) (*store.Document, error) { return nil, nil }
func (stubDocuments) Summary(context.Context) (docsync.Summary, error) { return docsync.Summary{}, nil }

type stubProviders struct{}

func (stubProviders) Statuses(context.Context) []provider.ProviderStatus { return nil }
