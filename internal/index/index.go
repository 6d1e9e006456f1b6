// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package index is the embedding index: texts are embedded on the way in and
// queries are embedded before a nearest-neighbour search.
package index

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sigil-dev/ragbot/internal/embedding"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// embedBatchSize bounds the number of texts sent per embedding request.
const embedBatchSize = 64

// SearchResult is one neighbour returned by Search.
type SearchResult = store.VectorResult

// Index pairs an Embedder with a VectorStore.
type Index struct {
	embedder   embedding.Embedder
	vectors    store.VectorStore
	collection string
}

// New wraps an already opened vector store.
func New(e embedding.Embedder, vs store.VectorStore, collection string) *Index {
	if collection == "" {
		collection = store.DefaultCollection
	}
	return &Index{embedder: e, vectors: vs, collection: collection}
}

// Open creates the configured vector store under dataPath, sized to the
// embedder's dimensions.
func Open(cfg store.StorageConfig, dataPath string, e embedding.Embedder) (*Index, error) {
	cfg.VectorDimensions = e.Dimensions()
	if cfg.Collection == "" {
		cfg.Collection = store.DefaultCollection
	}
	vs, err := store.NewVectorStore(cfg, dataPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("index opened", "backend", cfg.Backend, "collection", cfg.Collection,
		"dimensions", cfg.VectorDimensions, "embedder", e.Name())
	return New(e, vs, cfg.Collection), nil
}

// Collection returns the collection name.
func (ix *Index) Collection() string { return ix.collection }

// Embedder returns the embedder used for texts and queries.
func (ix *Index) Embedder() embedding.Embedder { return ix.embedder }

// Add embeds and stores texts. Missing ids are generated and missing
// metadata defaults to {source: unknown}. All records are written in one
// atomic store call. The assigned ids are returned in input order.
func (ix *Index) Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, ragerr.Errorf(ragerr.CodeIndexInputInvalid,
			"got %d metadata entries for %d texts", len(metadatas), len(texts))
	}
	if ids != nil && len(ids) != len(texts) {
		return nil, ragerr.Errorf(ragerr.CodeIndexInputInvalid,
			"got %d ids for %d texts", len(ids), len(texts))
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexAddFailure, "embedding documents",
			ragerr.FieldCollection(ix.collection))
	}

	assigned := make([]string, len(texts))
	records := make([]store.VectorRecord, len(texts))
	for i, text := range texts {
		id := ""
		if ids != nil {
			id = ids[i]
		}
		if id == "" {
			id = uuid.NewString()
		}
		assigned[i] = id

		var meta map[string]any
		if metadatas != nil {
			meta = metadatas[i]
		}
		if len(meta) == 0 {
			meta = map[string]any{"source": "unknown"}
		}

		records[i] = store.VectorRecord{ID: id, Embedding: vectors[i], Document: text, Metadata: meta}
	}

	if err := ix.vectors.Upsert(ctx, records); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexAddFailure, "storing documents",
			ragerr.FieldCollection(ix.collection))
	}
	slog.Debug("documents indexed", "collection", ix.collection, "count", len(records))
	return assigned, nil
}

// Search returns up to k stored chunks nearest to query, closest first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexSearchFailure, "embedding query",
			ragerr.FieldCollection(ix.collection))
	}
	if len(vectors) != 1 {
		return nil, ragerr.Errorf(ragerr.CodeIndexSearchFailure, "expected one query vector, got %d", len(vectors))
	}

	results, err := ix.vectors.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexSearchFailure, "searching vectors",
			ragerr.FieldCollection(ix.collection))
	}
	return results, nil
}

// Update re-embeds text and overwrites the entry for id, creating it when
// absent. A nil metadata keeps the stored metadata of an existing entry.
func (ix *Index) Update(ctx context.Context, id, text string, metadata map[string]any) error {
	if id == "" {
		return ragerr.New(ragerr.CodeIndexInputInvalid, "update requires an id")
	}
	if metadata == nil {
		existing, err := ix.vectors.Get(ctx, []string{id})
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexUpdateFailure, "loading stored metadata",
				ragerr.Field("id", id))
		}
		if len(existing) > 0 {
			metadata = existing[0].Metadata
		}
	}
	var metas []map[string]any
	if metadata != nil {
		metas = []map[string]any{metadata}
	}
	if _, err := ix.Add(ctx, []string{text}, metas, []string{id}); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexUpdateFailure, "updating document",
			ragerr.Field("id", id))
	}
	return nil
}

// Delete removes ids. Unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ix.vectors.Delete(ctx, ids); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDeleteFailure, "deleting documents",
			ragerr.FieldCollection(ix.collection))
	}
	slog.Debug("documents removed from index", "collection", ix.collection, "count", len(ids))
	return nil
}

// Count returns the number of stored chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	n, err := ix.vectors.Count(ctx)
	if err != nil {
		return 0, ragerr.Wrap(err, ragerr.CodeIndexCountFailure, "counting documents",
			ragerr.FieldCollection(ix.collection))
	}
	return n, nil
}

// List returns up to limit stored chunks.
func (ix *Index) List(ctx context.Context, limit int) ([]SearchResult, error) {
	results, err := ix.vectors.List(ctx, limit)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexSearchFailure, "listing documents",
			ragerr.FieldCollection(ix.collection))
	}
	return results, nil
}

// Reset drops every stored chunk and recreates the empty collection.
func (ix *Index) Reset(ctx context.Context) error {
	if err := ix.vectors.Reset(ctx); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexResetFailure, "resetting collection",
			ragerr.FieldCollection(ix.collection))
	}
	slog.Info("index collection reset", "collection", ix.collection)
	return nil
}

// Ping checks that the underlying store is reachable.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.vectors.Ping(ctx); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexPingFailure, "pinging index",
			ragerr.FieldCollection(ix.collection))
	}
	return nil
}

// Close releases the underlying store.
func (ix *Index) Close() error {
	return ix.vectors.Close()
}

func (ix *Index) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := ix.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, ragerr.Errorf(ragerr.CodeEmbedResponseInvalid,
				"got %d embeddings for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
