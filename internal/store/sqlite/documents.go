// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Compile-time interface check.
var _ store.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements store.DocumentStore on SQLite through sqlx.
type DocumentStore struct {
	db *sqlx.DB
}

// documentRow is the column mapping of the documents table.
type documentRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	File         string `db:"file"`
	DocumentType string `db:"document_type"`
	Description  string `db:"description"`
	IsProcessed  bool   `db:"is_processed"`
	Status       string `db:"status"`
	IndexIDs     string `db:"index_ids"`
	FileSize     int64  `db:"file_size"`
	FileHash     string `db:"file_hash"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

const documentColumns = `id, name, file, document_type, description, is_processed, status,
index_ids, file_size, file_hash, created_at, updated_at`

// NewDocumentStore opens (or creates) the documents database at dbPath.
func NewDocumentStore(dbPath string) (*DocumentStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "opening documents db", ragerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "pinging documents db", ragerr.FieldPath(dbPath))
	}

	if err := migrateDocuments(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DocumentStore{db: db}, nil
}

func migrateDocuments(db *sqlx.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	file          TEXT NOT NULL,
	document_type TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	is_processed  INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	index_ids     TEXT NOT NULL DEFAULT '[]',
	file_size     INTEGER NOT NULL DEFAULT 0,
	file_hash     TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_file   ON documents(file);
`
	if _, err := db.Exec(ddl); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "migrating documents db")
	}
	return nil
}

func toRow(d *store.Document) (documentRow, error) {
	ids := d.IndexIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return documentRow{}, ragerr.Wrap(err, ragerr.CodeStoreInvalidInput, "marshalling index ids")
	}
	return documentRow{
		ID:           d.ID,
		Name:         d.Name,
		File:         d.File,
		DocumentType: string(d.DocumentType),
		Description:  d.Description,
		IsProcessed:  d.IsProcessed,
		Status:       string(d.Status),
		IndexIDs:     string(raw),
		FileSize:     d.FileSize,
		FileHash:     d.FileHash,
		CreatedAt:    formatTime(d.CreatedAt),
		UpdatedAt:    formatTime(d.UpdatedAt),
	}, nil
}

func (r documentRow) toDocument() (*store.Document, error) {
	d := &store.Document{
		ID:           r.ID,
		Name:         r.Name,
		File:         r.File,
		DocumentType: store.DocumentType(r.DocumentType),
		Description:  r.Description,
		IsProcessed:  r.IsProcessed,
		Status:       store.DocumentStatus(r.Status),
		FileSize:     r.FileSize,
		FileHash:     r.FileHash,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
	if r.IndexIDs != "" {
		if err := json.Unmarshal([]byte(r.IndexIDs), &d.IndexIDs); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "decoding index ids",
				ragerr.FieldDocumentID(r.ID))
		}
	}
	if len(d.IndexIDs) == 0 {
		d.IndexIDs = nil
	}
	return d, nil
}

func (s *DocumentStore) Create(ctx context.Context, doc *store.Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if err := doc.Validate(); err != nil {
		return err
	}

	row, err := toRow(doc)
	if err != nil {
		return err
	}

	q := `INSERT INTO documents (` + documentColumns + `) VALUES (:id, :name, :file, :document_type,
:description, :is_processed, :status, :index_ids, :file_size, :file_hash, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return ragerr.Wrap(err, ragerr.CodeStoreConflict, "document already exists", ragerr.FieldDocumentID(doc.ID))
		}
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating document", ragerr.FieldDocumentID(doc.ID))
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*store.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ragerr.New(ragerr.CodeStoreEntityNotFound, "document "+id+" not found", ragerr.FieldDocumentID(id))
	}
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "getting document", ragerr.FieldDocumentID(id))
	}
	return row.toDocument()
}

func (s *DocumentStore) Update(ctx context.Context, doc *store.Document) error {
	doc.UpdatedAt = time.Now()
	if err := doc.Validate(); err != nil {
		return err
	}

	row, err := toRow(doc)
	if err != nil {
		return err
	}

	const q = `UPDATE documents SET name = :name, file = :file, document_type = :document_type,
description = :description, is_processed = :is_processed, status = :status, index_ids = :index_ids,
file_size = :file_size, file_hash = :file_hash, updated_at = :updated_at WHERE id = :id`
	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "updating document", ragerr.FieldDocumentID(doc.ID))
	}
	return requireAffected(result, doc.ID)
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "deleting document", ragerr.FieldDocumentID(id))
	}
	return requireAffected(result, id)
}

func (s *DocumentStore) List(ctx context.Context, filter store.DocumentFilter) ([]*store.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.IsProcessed != nil {
		where = append(where, "is_processed = ?")
		args = append(args, *filter.IsProcessed)
	}

	q := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "listing documents")
	}
	return toDocuments(rows)
}

func (s *DocumentStore) FindByFile(ctx context.Context, file string) ([]*store.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+documentColumns+` FROM documents WHERE file = ? ORDER BY created_at, id`, file)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "finding documents by file", ragerr.FieldPath(file))
	}
	return toDocuments(rows)
}

func (s *DocumentStore) CountByStatus(ctx context.Context) (map[store.DocumentStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM documents GROUP BY status`); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "counting documents")
	}

	counts := map[store.DocumentStatus]int{
		store.DocumentStatusPending:    0,
		store.DocumentStatusProcessing: 0,
		store.DocumentStatusProcessed:  0,
		store.DocumentStatusError:      0,
	}
	for _, r := range rows {
		counts[store.DocumentStatus(r.Status)] = r.N
	}
	return counts, nil
}

// Close closes the underlying database connection.
func (s *DocumentStore) Close() error { return s.db.Close() }

func toDocuments(rows []documentRow) ([]*store.Document, error) {
	docs := make([]*store.Document, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "checking rows affected", ragerr.FieldDocumentID(id))
	}
	if n == 0 {
		return ragerr.New(ragerr.CodeStoreEntityNotFound, "document "+id+" not found", ragerr.FieldDocumentID(id))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
