// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/ragbot/internal/store"
	"github.com/sigil-dev/ragbot/internal/store/sqlite"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVectorStore(t *testing.T, path string) *sqlite.VectorStore {
	t.Helper()
	vs, err := sqlite.NewVectorStore(path, "documents", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func TestVectorStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "v1", Embedding: []float32{1, 0, 0}, Document: "one", Metadata: map[string]any{"source": "test1"}},
		{ID: "v2", Embedding: []float32{0, 1, 0}, Document: "two", Metadata: map[string]any{"source": "test2"}},
		{ID: "v3", Embedding: []float32{0.9, 0.1, 0}, Document: "three", Metadata: map[string]any{"source": "test3"}},
	}))

	results, err := vs.Search(ctx, []float32{2, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].ID)
	assert.Equal(t, "one", results[0].Document)
	assert.Equal(t, "test1", results[0].Metadata["source"])
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, "v3", results[1].ID)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestVectorStore_CosineDistanceRange(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-cosine"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "same", Embedding: []float32{0, 0, 5}},
		{ID: "orthogonal", Embedding: []float32{1, 0, 0}},
		{ID: "opposite", Embedding: []float32{0, 0, -1}},
	}))

	results, err := vs.Search(ctx, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"same", "orthogonal", "opposite"},
		[]string{results[0].ID, results[1].ID, results[2].ID})
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1.0, results[1].Distance, 1e-6)
	assert.InDelta(t, 2.0, results[2].Distance, 1e-6)
}

func TestVectorStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-upsert"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "v1", Embedding: []float32{1, 0, 0}, Document: "old", Metadata: map[string]any{"version": float64(1)}},
	}))
	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "v1", Embedding: []float32{0, 1, 0}, Document: "new", Metadata: map[string]any{"version": float64(2)}},
	}))

	results, err := vs.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v1", results[0].ID)
	assert.Equal(t, "new", results[0].Document)
	assert.Equal(t, float64(2), results[0].Metadata["version"])

	n, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorStore_UpsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-atomic"))

	err := vs.Upsert(ctx, []store.VectorRecord{
		{ID: "ok", Embedding: []float32{1, 0, 0}},
		{ID: "bad", Embedding: []float32{1, 0}},
	})
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))

	n, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorStore_DeleteIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-delete"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "v1", Embedding: []float32{1, 0, 0}},
		{ID: "v2", Embedding: []float32{0, 1, 0}},
	}))

	require.NoError(t, vs.Delete(ctx, []string{"v1", "never-existed"}))
	require.NoError(t, vs.Delete(ctx, nil))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].ID)
}

func TestVectorStore_GetSkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-get"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "v1", Embedding: []float32{1, 0, 0}, Document: "one", Metadata: map[string]any{"file_name": "a.txt"}},
		{ID: "v2", Embedding: []float32{0, 1, 0}, Document: "two"},
	}))

	got, err := vs.Get(ctx, []string{"v1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].ID)
	assert.Equal(t, "one", got[0].Document)
	assert.Equal(t, "a.txt", got[0].Metadata["file_name"])

	got, err = vs.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectorStore_SearchEdgeCases(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-edge"))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = vs.Search(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = vs.Search(ctx, []float32{1, 0}, 5)
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
}

func TestVectorStore_ResetAndList(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, testDBPath(t, "vectors-reset"))

	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{
		{ID: "a", Embedding: []float32{1, 0, 0}, Document: "alpha"},
		{ID: "b", Embedding: []float32{0, 1, 0}, Document: "bravo"},
	}))

	listed, err := vs.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, vs.Reset(ctx))

	n, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The collection is usable after a reset.
	require.NoError(t, vs.Upsert(ctx, []store.VectorRecord{{ID: "c", Embedding: []float32{0, 0, 1}}}))
	n, err = vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, vs.Ping(ctx))
}

func TestVectorStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "vectors-persist")

	first, err := sqlite.NewVectorStore(path, "documents", 3)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(ctx, []store.VectorRecord{{ID: "kept", Embedding: []float32{1, 0, 0}, Document: "persisted"}}))
	require.NoError(t, first.Close())

	second := newVectorStore(t, path)
	results, err := second.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Document)
}

func TestNewVectorStore_RejectsBadInput(t *testing.T) {
	_, err := sqlite.NewVectorStore(testDBPath(t, "bad"), "drop table;", 3)
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))

	_, err = sqlite.NewVectorStore(testDBPath(t, "bad-dims"), "documents", 0)
	require.Error(t, err)
}
