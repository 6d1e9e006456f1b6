// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/internal/server"
	"github.com/sigil-dev/ragbot/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIngestor stands in for the retrieval service behind the manager.
type memIngestor struct {
	mu   sync.Mutex
	next int
	live map[string]bool
}

func (m *memIngestor) IngestFile(context.Context, string, map[string]any) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("chunk-%d", m.next)
	m.live[id] = true
	return []string{id}, nil
}

func (m *memIngestor) RemoveChunks(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.live, id)
	}
	return nil
}

func (m *memIngestor) Stats(context.Context) rag.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rag.Stats{TotalDocuments: len(m.live), CollectionName: "documents", Status: rag.StatusActive}
}

func newDocumentService(t *testing.T) *docsync.Manager {
	t.Helper()
	mgr, _ := newDocuments(t)
	return mgr
}

// newDocuments returns a manager over a temp documents directory.
func newDocuments(t *testing.T) (*docsync.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	docs, err := sqlite.NewDocumentStore(filepath.Join(dir, "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	mgr := docsync.NewManager(docs, &memIngestor{live: make(map[string]bool)}, dir)
	t.Cleanup(mgr.Close)
	return mgr, dir
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestDocuments_CreateGetList(t *testing.T) {
	mgr, dir := newDocuments(t)
	h := newTestServer(t, &mockQuery{}, mgr, nil)
	writeDoc(t, dir, "guide.txt", "hello world")

	w := doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]any{"file": "guide.txt", "description": "user guide"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[server.Document](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "guide", created.Name)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "11 B", created.SizeLabel)
	assert.Empty(t, created.IndexIDs)

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user guide", decode[server.Document](t, w).Description)

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Documents []server.Document `json:"documents"`
	}](t, w)
	require.Len(t, list.Documents, 1)

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents?processed=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[struct {
		Documents []server.Document `json:"documents"`
	}](t, w)
	assert.Empty(t, list.Documents)
}

func TestDocuments_CreateRejectsUnsupportedFile(t *testing.T) {
	mgr, dir := newDocuments(t)
	h := newTestServer(t, &mockQuery{}, mgr, nil)
	writeDoc(t, dir, "slides.pptx", "binary")

	w := doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]any{"file": "slides.pptx"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]any{"file": "missing.txt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocuments_ProcessLifecycle(t *testing.T) {
	mgr, dir := newDocuments(t)
	h := newTestServer(t, &mockQuery{}, mgr, nil)
	writeDoc(t, dir, "guide.txt", "hello world")

	w := doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]any{"file": "guide.txt"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[server.Document](t, w).ID

	w = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+id+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, docsync.OutcomeQueued, decode[docsync.Outcome](t, w).Result)
	mgr.Wait()

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents/"+id, nil)
	doc := decode[server.Document](t, w)
	assert.Equal(t, "processed", doc.Status)
	assert.Equal(t, []string{"chunk-1"}, doc.IndexIDs)

	w = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+id+"/process", nil)
	assert.Equal(t, docsync.OutcomeSkipped, decode[docsync.Outcome](t, w).Result)

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[docsync.Summary](t, w)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.IndexedChunks)

	w = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+id+"/unprocess", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mgr.Wait()

	w = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+id+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	doc = decode[server.Document](t, w)
	assert.Equal(t, "pending", doc.Status)
	assert.False(t, doc.IsProcessed)
}

func TestDocuments_UpdateAndDelete(t *testing.T) {
	mgr, dir := newDocuments(t)
	h := newTestServer(t, &mockQuery{}, mgr, nil)
	writeDoc(t, dir, "guide.txt", "hello world")

	w := doJSON(t, h, http.MethodPost, "/api/v1/documents", map[string]any{"file": "guide.txt", "is_processed": true})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[server.Document](t, w).ID
	mgr.Wait()

	w = doJSON(t, h, http.MethodPatch, "/api/v1/documents/"+id, map[string]any{"name": "Guide v2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	doc := decode[server.Document](t, w)
	assert.Equal(t, "Guide v2", doc.Name)
	assert.Equal(t, "processed", doc.Status, "renaming keeps the index in sync")
	assert.True(t, doc.IsProcessed)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/v1/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, h, http.MethodDelete, "/api/v1/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+id+"/process", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, h, http.MethodPatch, "/api/v1/documents/"+id, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
