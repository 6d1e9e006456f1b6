// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package docsync keeps document records and the embedding index in step.
// Record saves enqueue index jobs on a per-document lane.
package docsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Chunk metadata keys linking indexed chunks to their document record.
const (
	MetaDocumentID   = "document_id"
	MetaDocumentName = "document_name"
	MetaDocumentType = "document_type"
)

// Ingestor indexes and removes document files. *rag.Service satisfies it.
type Ingestor interface {
	IngestFile(ctx context.Context, path string, extra map[string]any) ([]string, error)
	RemoveChunks(ctx context.Context, ids []string) error
	Stats(ctx context.Context) rag.Stats
}

// Manager owns document records and schedules their index synchronisation.
type Manager struct {
	docs    store.DocumentStore
	ingest  Ingestor
	lanes   *LanePool
	baseDir string

	// recMu serialises read-modify-write cycles on records so status written
	// by a job and fields written by Save never overwrite each other.
	recMu sync.Mutex
}

// NewManager creates a Manager. Relative document file paths are resolved
// against baseDir.
func NewManager(docs store.DocumentStore, ingest Ingestor, baseDir string) *Manager {
	return &Manager{
		docs:    docs,
		ingest:  ingest,
		lanes:   NewLanePool(),
		baseDir: baseDir,
	}
}

// Resolve returns the filesystem path of a document file.
func (m *Manager) Resolve(file string) string {
	if filepath.IsAbs(file) || m.baseDir == "" {
		return filepath.Clean(file)
	}
	return filepath.Join(m.baseDir, file)
}

// Get returns one record.
func (m *Manager) Get(ctx context.Context, id string) (*store.Document, error) {
	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		if ragerr.IsNotFound(err) {
			return nil, ragerr.Wrap(err, ragerr.CodeDocumentNotFound, "document not found", ragerr.FieldDocumentID(id))
		}
		return nil, err
	}
	return doc, nil
}

// List returns records matching filter, newest first.
func (m *Manager) List(ctx context.Context, filter store.DocumentFilter) ([]*store.Document, error) {
	return m.docs.List(ctx, filter)
}

// Save creates or updates a record. Status and index ids are owned by the
// manager: a changed file resets the record to pending and schedules removal
// of its old chunks, and a toggled IsProcessed schedules an add or remove
// job. Save returns before scheduled jobs run.
func (m *Manager) Save(ctx context.Context, doc *store.Document) (*store.Document, error) {
	if doc == nil {
		return nil, ragerr.New(ragerr.CodeDocumentInputInvalid, "document is required")
	}
	in := doc.Clone()
	if err := m.prepare(in); err != nil {
		return nil, err
	}

	m.recMu.Lock()
	existing, err := m.lookup(ctx, in.ID)
	if err != nil {
		m.recMu.Unlock()
		return nil, err
	}

	if existing == nil {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.Status = store.DocumentStatusPending
		in.IndexIDs = nil
		err = m.docs.Create(ctx, in)
		m.recMu.Unlock()
		if err != nil {
			return nil, err
		}
		slog.Info("document created", "document_id", in.ID, "file", in.File, "processed", in.IsProcessed)
		if in.IsProcessed {
			m.schedule(in.ID)
		}
		return in, nil
	}

	in.CreatedAt = existing.CreatedAt
	in.Status = existing.Status
	in.IndexIDs = existing.IndexIDs

	var stale []string
	fileChanged := fileDiffers(existing, in)
	if fileChanged {
		stale = existing.IndexIDs
		in.Status = store.DocumentStatusPending
		in.IndexIDs = nil
	}
	toggled := existing.IsProcessed != in.IsProcessed

	err = m.docs.Update(ctx, in)
	m.recMu.Unlock()
	if err != nil {
		return nil, err
	}
	slog.Info("document updated", "document_id", in.ID, "file_changed", fileChanged, "toggled", toggled)

	if len(stale) > 0 {
		m.scheduleRemoval(in.ID, stale)
	}
	if toggled || (fileChanged && in.IsProcessed) {
		m.schedule(in.ID)
	}
	return in, nil
}

// prepare validates user-supplied fields and fingerprints the file.
func (m *Manager) prepare(doc *store.Document) error {
	if strings.TrimSpace(doc.File) == "" {
		return ragerr.New(ragerr.CodeDocumentInputInvalid, "document file is required", ragerr.FieldDocumentID(doc.ID))
	}
	typ, ok := store.DocumentTypeFromPath(doc.File)
	if !ok {
		return ragerr.New(ragerr.CodeDocumentInputInvalid, "unsupported document file type",
			ragerr.FieldPath(doc.File))
	}
	doc.DocumentType = typ
	if strings.TrimSpace(doc.Name) == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(doc.File), filepath.Ext(doc.File))
	}

	size, hash, err := fingerprint(m.Resolve(doc.File))
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeDocumentInputInvalid, "reading document file", ragerr.FieldPath(doc.File))
	}
	doc.FileSize = size
	doc.FileHash = hash
	return nil
}

// lookup returns the stored record for id, or nil when id is empty or unknown.
func (m *Manager) lookup(ctx context.Context, id string) (*store.Document, error) {
	if id == "" {
		return nil, nil
	}
	existing, err := m.docs.Get(ctx, id)
	if ragerr.IsNotFound(err) {
		return nil, nil
	}
	return existing, err
}

func fileDiffers(a, b *store.Document) bool {
	return a.File != b.File || a.FileSize != b.FileSize || a.FileHash != b.FileHash
}

func fingerprint(path string) (int64, string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from an operator-managed record
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// jobContext detaches background jobs from the request that scheduled them.
func jobContext() context.Context {
	return context.Background()
}

func (m *Manager) schedule(id string) {
	if err := m.lanes.Get(id).Enqueue(jobContext(), func(ctx context.Context) error {
		_, err := m.sync(ctx, id)
		return err
	}); err != nil {
		slog.Warn("document sync not scheduled", "document_id", id, "error", err)
	}
}

func (m *Manager) scheduleRemoval(id string, ids []string) {
	if err := m.lanes.Get(id).Enqueue(jobContext(), func(ctx context.Context) error {
		return m.ingest.RemoveChunks(ctx, ids)
	}); err != nil {
		slog.Warn("stale chunk removal not scheduled", "document_id", id, "error", err)
	}
}

// sync brings the index in line with the record's IsProcessed flag.
// It must run on the document's lane.
func (m *Manager) sync(ctx context.Context, id string) (*store.Document, error) {
	doc, err := m.docs.Get(ctx, id)
	if ragerr.IsNotFound(err) {
		slog.Debug("document gone before sync", "document_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if doc.IsProcessed {
		if doc.Status == store.DocumentStatusProcessed && len(doc.IndexIDs) > 0 {
			return doc, nil
		}
		return m.add(ctx, doc)
	}
	if doc.Status == store.DocumentStatusPending && len(doc.IndexIDs) == 0 {
		return doc, nil
	}
	return m.remove(ctx, doc)
}

func (m *Manager) add(ctx context.Context, doc *store.Document) (*store.Document, error) {
	if _, err := m.mutate(ctx, doc.ID, func(d *store.Document) bool {
		d.Status = store.DocumentStatusProcessing
		return true
	}); err != nil {
		return nil, err
	}

	if len(doc.IndexIDs) > 0 {
		if err := m.ingest.RemoveChunks(ctx, doc.IndexIDs); err != nil {
			slog.Warn("removing previous chunks failed", "document_id", doc.ID, "error", err)
		}
	}

	ids, err := m.ingest.IngestFile(ctx, m.Resolve(doc.File), map[string]any{
		MetaDocumentID:   doc.ID,
		MetaDocumentName: doc.Name,
		MetaDocumentType: string(doc.DocumentType),
	})
	if err != nil {
		slog.Error("document ingestion failed", "document_id", doc.ID, "code", ragerr.CodeOf(err), "error", err)
		failed, mErr := m.mutate(ctx, doc.ID, func(d *store.Document) bool {
			d.Status = store.DocumentStatusError
			d.IndexIDs = nil
			return true
		})
		if mErr != nil {
			return nil, mErr
		}
		return failed, ragerr.Wrap(err, ragerr.CodeDocumentSyncFailure, "ingesting document", ragerr.FieldDocumentID(doc.ID))
	}

	var orphaned bool
	updated, err := m.mutate(ctx, doc.ID, func(d *store.Document) bool {
		// The record moved on while ingesting; a later job owns it now.
		if fileDiffers(d, doc) || !d.IsProcessed {
			orphaned = true
			return false
		}
		d.Status = store.DocumentStatusProcessed
		d.IndexIDs = ids
		return true
	})
	if err != nil && !ragerr.IsNotFound(err) {
		return nil, err
	}
	if orphaned || updated == nil {
		if rmErr := m.ingest.RemoveChunks(ctx, ids); rmErr != nil {
			slog.Warn("removing orphaned chunks failed", "document_id", doc.ID, "error", rmErr)
		}
		return updated, nil
	}
	slog.Info("document processed", "document_id", doc.ID, "chunks", len(ids))
	return updated, nil
}

func (m *Manager) remove(ctx context.Context, doc *store.Document) (*store.Document, error) {
	if err := m.ingest.RemoveChunks(ctx, doc.IndexIDs); err != nil {
		slog.Error("document removal failed", "document_id", doc.ID, "code", ragerr.CodeOf(err), "error", err)
		failed, mErr := m.mutate(ctx, doc.ID, func(d *store.Document) bool {
			d.Status = store.DocumentStatusError
			return true
		})
		if mErr != nil {
			return nil, mErr
		}
		return failed, ragerr.Wrap(err, ragerr.CodeDocumentSyncFailure, "removing document chunks", ragerr.FieldDocumentID(doc.ID))
	}

	updated, err := m.mutate(ctx, doc.ID, func(d *store.Document) bool {
		d.Status = store.DocumentStatusPending
		d.IndexIDs = nil
		return true
	})
	if err != nil {
		if ragerr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	slog.Info("document removed from index", "document_id", doc.ID, "chunks", len(doc.IndexIDs))
	return updated, nil
}

// mutate reloads the record, applies fn and writes it back when fn returns true.
func (m *Manager) mutate(ctx context.Context, id string, fn func(*store.Document) bool) (*store.Document, error) {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	doc, err := m.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fn(doc) {
		return doc, nil
	}
	if err := m.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a record after a best-effort removal of its chunks. The
// removal runs as the last job on the document's lane, and the lane is
// released afterwards.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}

	err := m.lanes.Get(id).Submit(ctx, func(ctx context.Context) error {
		doc, err := m.Get(ctx, id)
		if err != nil {
			return err
		}
		if len(doc.IndexIDs) > 0 {
			if err := m.ingest.RemoveChunks(ctx, doc.IndexIDs); err != nil {
				slog.Warn("removing chunks of deleted document failed", "document_id", id, "error", err)
			}
		}
		return m.docs.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	m.lanes.Remove(id)
	slog.Info("document deleted", "document_id", id)
	return nil
}

// Outcome values reported by bulk actions.
const (
	OutcomeQueued  = "queued"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Outcome is the per-document result of a bulk action.
type Outcome struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// Process marks documents as processed, scheduling their ingestion.
func (m *Manager) Process(ctx context.Context, ids ...string) []Outcome {
	return m.setProcessed(ctx, true, ids)
}

// Unprocess marks documents as not processed, scheduling chunk removal.
func (m *Manager) Unprocess(ctx context.Context, ids ...string) []Outcome {
	return m.setProcessed(ctx, false, ids)
}

func (m *Manager) setProcessed(ctx context.Context, want bool, ids []string) []Outcome {
	out := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		doc, err := m.Get(ctx, id)
		if err != nil {
			out = append(out, Outcome{ID: id, Result: OutcomeFailed, Reason: err.Error()})
			continue
		}
		if doc.IsProcessed == want {
			reason := "already processed"
			if !want {
				reason = "already removed"
			}
			out = append(out, Outcome{ID: id, Name: doc.Name, Result: OutcomeSkipped, Reason: reason})
			continue
		}
		doc.IsProcessed = want
		if _, err := m.Save(ctx, doc); err != nil {
			out = append(out, Outcome{ID: id, Name: doc.Name, Result: OutcomeFailed, Reason: err.Error()})
			continue
		}
		out = append(out, Outcome{ID: id, Name: doc.Name, Result: OutcomeQueued})
	}
	return out
}

// SyncNow synchronises one document on its lane and waits for the result.
func (m *Manager) SyncNow(ctx context.Context, id string) (*store.Document, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	var doc *store.Document
	err := m.lanes.Get(id).Submit(ctx, func(ctx context.Context) error {
		var err error
		doc, err = m.sync(ctx, id)
		return err
	})
	return doc, err
}

// FileChanged re-fingerprints a document's file. When the content differs
// the record goes back to pending, old chunks are removed and a processed
// document is re-ingested.
func (m *Manager) FileChanged(ctx context.Context, id string) error {
	doc, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = m.Save(ctx, doc)
	return err
}

// Summary counts records per status.
type Summary struct {
	Total          int    `json:"total"`
	Pending        int    `json:"pending"`
	Processing     int    `json:"processing"`
	Processed      int    `json:"processed"`
	Error          int    `json:"error"`
	IndexedChunks  int    `json:"indexed_chunks"`
	IndexStatus    string `json:"index_status"`
	CollectionName string `json:"collection_name"`
}

// Summary reports record counts per status and the index chunk count.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	counts, err := m.docs.CountByStatus(ctx)
	if err != nil {
		return Summary{}, err
	}
	stats := m.ingest.Stats(ctx)
	s := Summary{
		Pending:        counts[store.DocumentStatusPending],
		Processing:     counts[store.DocumentStatusProcessing],
		Processed:      counts[store.DocumentStatusProcessed],
		Error:          counts[store.DocumentStatusError],
		IndexedChunks:  stats.TotalDocuments,
		IndexStatus:    stats.Status,
		CollectionName: stats.CollectionName,
	}
	s.Total = s.Pending + s.Processing + s.Processed + s.Error
	return s, nil
}

// Wait blocks until every scheduled job has finished.
func (m *Manager) Wait() { m.lanes.Wait() }

// ActiveLanes reports how many documents currently hold a sync lane.
func (m *Manager) ActiveLanes() int { return m.lanes.Len() }

// Close drains and stops all lanes.
func (m *Manager) Close() { m.lanes.Close() }
