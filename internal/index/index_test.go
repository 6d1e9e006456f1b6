// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/sigil-dev/ragbot/internal/embedding"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/store"
	_ "github.com/sigil-dev/ragbot/internal/store/sqlite" // register sqlite-vec backend
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T, dir string) *index.Index {
	t.Helper()
	e, err := embedding.NewHashing(64)
	require.NoError(t, err)
	ix, err := index.Open(store.StorageConfig{}, dir, e)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestIndex_AddAssignsDefaults(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	ids, err := ix.Add(ctx, []string{"osmon moviy", "mushuklar sut emizuvchi"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	for _, id := range ids {
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	}
	assert.NotEqual(t, ids[0], ids[1])

	results, err := ix.Search(ctx, "osmon moviy", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, "osmon moviy", results[0].Document)
	assert.Equal(t, map[string]any{"source": "unknown"}, results[0].Metadata)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
}

func TestIndex_AddKeepsGivenIDsAndMetadata(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	ids, err := ix.Add(ctx,
		[]string{"alpha", "bravo"},
		[]map[string]any{{"file_name": "a.txt"}, nil},
		[]string{"a", ""},
	)
	require.NoError(t, err)
	assert.Equal(t, "a", ids[0])
	assert.NotEmpty(t, ids[1])

	results, err := ix.Search(ctx, "bravo", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[1], results[0].ID)
	assert.Equal(t, "unknown", results[0].Metadata["source"])
	assert.Equal(t, "a.txt", results[1].Metadata["file_name"])
}

func TestIndex_AddEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	ids, err := ix.Add(ctx, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndex_AddLengthMismatch(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	_, err := ix.Add(ctx, []string{"a", "b"}, []map[string]any{{}}, nil)
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeIndexInputInvalid))

	_, err = ix.Add(ctx, []string{"a"}, nil, []string{"x", "y"})
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
}

func TestIndex_UpdateOverwritesAndUpserts(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	_, err := ix.Add(ctx, []string{"eski matn"}, nil, []string{"doc"})
	require.NoError(t, err)

	require.NoError(t, ix.Update(ctx, "doc", "yangi matn", map[string]any{"v": 2}))
	require.NoError(t, ix.Update(ctx, "fresh", "butunlay yangi", nil))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := ix.Search(ctx, "yangi matn", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].ID)
	assert.Equal(t, "yangi matn", results[0].Document)

	assert.Error(t, ix.Update(ctx, "", "x", nil))
}

func TestIndex_UpdateWithoutMetadataKeepsStored(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	_, err := ix.Add(ctx, []string{"eski matn"}, []map[string]any{{"file_name": "a.txt", "chunk_index": float64(3)}}, []string{"doc"})
	require.NoError(t, err)

	require.NoError(t, ix.Update(ctx, "doc", "yangi matn", nil))
	require.NoError(t, ix.Update(ctx, "fresh", "butunlay yangi", nil))

	listed, err := ix.List(ctx, 10)
	require.NoError(t, err)
	byID := make(map[string]index.SearchResult, len(listed))
	for _, r := range listed {
		byID[r.ID] = r
	}

	require.Contains(t, byID, "doc")
	assert.Equal(t, "yangi matn", byID["doc"].Document)
	assert.Equal(t, map[string]any{"file_name": "a.txt", "chunk_index": float64(3)}, byID["doc"].Metadata)

	require.Contains(t, byID, "fresh")
	assert.Equal(t, map[string]any{"source": "unknown"}, byID["fresh"].Metadata)
}

func TestIndex_DeleteAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	ids, err := ix.Add(ctx, []string{"a", "b", "c"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, ix.Delete(ctx, ids[0], "missing"))
	require.NoError(t, ix.Delete(ctx))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndex_ResetThenCountIsZero(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	_, err := ix.Add(ctx, []string{"a", "b"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Reset(ctx))

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, ix.Ping(ctx))
	assert.Equal(t, "documents", ix.Collection())
}

func TestIndex_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e, err := embedding.NewHashing(64)
	require.NoError(t, err)
	first, err := index.Open(store.StorageConfig{}, dir, e)
	require.NoError(t, err)
	_, err = first.Add(ctx, []string{"saqlangan bilim"}, nil, []string{"k"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openIndex(t, dir)
	results, err := second.Search(ctx, "saqlangan bilim", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k", results[0].ID)
}

func TestIndex_SearchOrderedAscending(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, t.TempDir())

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("hujjat raqam %d mavzu %d", i, i%3)
	}
	_, err := ix.Add(ctx, texts, nil, nil)
	require.NoError(t, err)

	results, err := ix.Search(ctx, "mavzu 1", 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Distance, 0.0)
	}

	none, err := ix.Search(ctx, "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type batchRecorder struct {
	inner   embedding.Embedder
	batches []int
	fail    bool
}

func (b *batchRecorder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, len(texts))
	if b.fail {
		return nil, ragerr.Wrap(errors.New("connection refused"), ragerr.CodeEmbedUpstreamFailure, "embedding request failed")
	}
	return b.inner.Embed(ctx, texts)
}
func (b *batchRecorder) Dimensions() int { return b.inner.Dimensions() }
func (b *batchRecorder) Name() string    { return "recorder" }

func TestIndex_EmbedsInBatches(t *testing.T) {
	ctx := context.Background()
	inner, err := embedding.NewHashing(16)
	require.NoError(t, err)
	rec := &batchRecorder{inner: inner}

	ix, err := index.Open(store.StorageConfig{}, t.TempDir(), rec)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	texts := make([]string, 130)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	_, err = ix.Add(ctx, texts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{64, 64, 2}, rec.batches)
}

func TestIndex_EmbedderFailure(t *testing.T) {
	ctx := context.Background()
	inner, err := embedding.NewHashing(16)
	require.NoError(t, err)
	rec := &batchRecorder{inner: inner, fail: true}

	ix, err := index.Open(store.StorageConfig{}, t.TempDir(), rec)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	_, err = ix.Add(ctx, []string{"x"}, nil, nil)
	require.Error(t, err)
	assert.True(t, ragerr.IsUpstreamFailure(err))

	_, err = ix.Search(ctx, "x", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")
}
