// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// VectorStore persists embeddings with their source text and answers
// nearest-neighbour queries by cosine distance.
type VectorStore interface {
	// Upsert writes all records atomically, replacing existing ids.
	Upsert(ctx context.Context, records []VectorRecord) error
	// Search returns up to k records ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	// Get returns the stored records for ids. Unknown ids are skipped.
	Get(ctx context.Context, ids []string) ([]VectorResult, error)
	// Delete removes ids; unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	// List returns up to limit stored records in no particular order.
	List(ctx context.Context, limit int) ([]VectorResult, error)
	// Reset drops and recreates the collection.
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
