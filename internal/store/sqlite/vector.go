// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// VectorStore implements store.VectorStore backed by SQLite with sqlite-vec.
// A collection is a vec0 virtual table "<collection>_vectors" holding the
// embeddings plus a companion table "<collection>_records" holding text and
// metadata.
type VectorStore struct {
	db         *sql.DB
	dimensions int
	collection string
}

// NewVectorStore opens (or creates) a SQLite database at dbPath and
// initialises the collection tables.
func NewVectorStore(dbPath, collection string, dimensions int) (*VectorStore, error) {
	if !collectionName.MatchString(collection) {
		return nil, ragerr.Errorf(ragerr.CodeStoreInvalidInput, "invalid collection name %q", collection)
	}
	if dimensions <= 0 {
		return nil, ragerr.Errorf(ragerr.CodeStoreInvalidInput, "vector dimensions must be positive, got %d", dimensions)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "opening sqlite db", ragerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "pinging sqlite db", ragerr.FieldPath(dbPath))
	}

	v := &VectorStore{db: db, dimensions: dimensions, collection: collection}
	if err := v.migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return v, nil
}

func (v *VectorStore) vectorsTable() string { return v.collection + "_vectors" }
func (v *VectorStore) recordsTable() string { return v.collection + "_records" }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (v *VectorStore) migrate(ctx context.Context, db execer) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		v.vectorsTable(), v.dimensions,
	)
	if _, err := db.ExecContext(ctx, vecDDL); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating vectors virtual table",
			ragerr.FieldCollection(v.collection))
	}

	recDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
)`, v.recordsTable())
	if _, err := db.ExecContext(ctx, recDDL); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating records table",
			ragerr.FieldCollection(v.collection))
	}
	return nil
}

// Upsert inserts or replaces all records in a single transaction.
func (v *VectorStore) Upsert(ctx context.Context, records []store.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(v.dimensions); err != nil {
			return err
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for _, r := range records {
		blob, err := sqlite_vec.SerializeFloat32(r.Embedding)
		if err != nil {
			return ragerr.Wrapf(err, ragerr.CodeStoreInvalidInput, "serializing embedding %s", r.ID)
		}

		metaJSON := []byte("{}")
		if len(r.Metadata) > 0 {
			metaJSON, err = json.Marshal(r.Metadata)
			if err != nil {
				return ragerr.Wrapf(err, ragerr.CodeStoreInvalidInput, "marshalling metadata %s", r.ID)
			}
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.vectorsTable()+` WHERE id = ?`, r.ID); err != nil {
			return ragerr.Wrapf(err, ragerr.CodeStoreDatabaseFailure, "deleting existing vector %s", r.ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+v.vectorsTable()+`(id, embedding) VALUES (?, ?)`, r.ID, blob); err != nil {
			return ragerr.Wrapf(err, ragerr.CodeStoreDatabaseFailure, "inserting vector %s", r.ID)
		}

		recQ := `INSERT INTO ` + v.recordsTable() + `(id, document, metadata, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET document = excluded.document, metadata = excluded.metadata`
		if _, err := tx.ExecContext(ctx, recQ, r.ID, r.Document, string(metaJSON), now); err != nil {
			return ragerr.Wrapf(err, ragerr.CodeStoreDatabaseFailure, "upserting record %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "committing vector upsert")
	}
	return nil
}

// Search performs a k-nearest-neighbour search by cosine distance.
func (v *VectorStore) Search(ctx context.Context, query []float32, k int) ([]store.VectorResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != v.dimensions {
		return nil, ragerr.Errorf(ragerr.CodeStoreInvalidInput,
			"query has %d dimensions, want %d", len(query), v.dimensions)
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreInvalidInput, "serializing query vector")
	}

	q := `WITH knn AS (
	SELECT id, distance FROM ` + v.vectorsTable() + `
	WHERE embedding MATCH ? AND k = ?
)
SELECT knn.id, knn.distance, COALESCE(r.document, ''), COALESCE(r.metadata, '{}')
FROM knn
LEFT JOIN ` + v.recordsTable() + ` r ON r.id = knn.id
ORDER BY knn.distance`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "searching vectors",
			ragerr.FieldCollection(v.collection))
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var r store.VectorResult
		var metaStr string
		if err := rows.Scan(&r.ID, &r.Distance, &r.Document, &metaStr); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "scanning vector result")
		}
		if r.Metadata, err = decodeMetadata(metaStr); err != nil {
			return nil, err
		}
		if r.Distance < 0 {
			r.Distance = 0
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "iterating vector results")
	}
	return results, nil
}

// Get returns the records for ids. Unknown ids are skipped.
func (v *VectorStore) Get(ctx context.Context, ids []string) ([]store.VectorResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, document, metadata FROM `+v.recordsTable()+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "getting records")
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var r store.VectorResult
		var metaStr string
		if err := rows.Scan(&r.ID, &r.Document, &metaStr); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "scanning record")
		}
		if r.Metadata, err = decodeMetadata(metaStr); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "iterating records")
	}
	return results, nil
}

// Delete removes vectors and their records by ID.
func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.vectorsTable()+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "deleting vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+v.recordsTable()+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "deleting records")
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "committing vector delete")
	}
	return nil
}

// Count returns the number of stored records.
func (v *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+v.recordsTable()).Scan(&n); err != nil {
		return 0, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "counting records",
			ragerr.FieldCollection(v.collection))
	}
	return n, nil
}

// List returns up to limit records in insertion order.
func (v *VectorStore) List(ctx context.Context, limit int) ([]store.VectorResult, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT id, document, metadata FROM `+v.recordsTable()+` ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "listing records")
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var r store.VectorResult
		var metaStr string
		if err := rows.Scan(&r.ID, &r.Document, &metaStr); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "scanning record")
		}
		if r.Metadata, err = decodeMetadata(metaStr); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "iterating records")
	}
	return results, nil
}

// Reset drops both collection tables and recreates them empty.
func (v *VectorStore) Reset(ctx context.Context) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{v.vectorsTable(), v.recordsTable()} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "dropping "+table)
		}
	}
	if err := v.migrate(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "committing reset")
	}
	return nil
}

// Ping verifies the database connection.
func (v *VectorStore) Ping(ctx context.Context) error {
	if err := v.db.PingContext(ctx); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "pinging vector store")
	}
	return nil
}

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	return v.db.Close()
}

func decodeMetadata(raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw == "" || raw == "{}" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "unmarshalling metadata")
	}
	return meta, nil
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
