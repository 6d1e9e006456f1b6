// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// --- Document types ---

// DocumentStatus is the synchronization state between a record and the index.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusError      DocumentStatus = "error"
)

// DocumentType is the source format of a document file.
type DocumentType string

const (
	DocumentTypePDF  DocumentType = "pdf"
	DocumentTypeText DocumentType = "txt"
)

// Document is the relational record of a file managed by the lifecycle
// manager. IndexIDs lists the vector entries created from the file.
type Document struct {
	ID           string
	Name         string
	File         string
	DocumentType DocumentType
	Description  string
	IsProcessed  bool
	Status       DocumentStatus
	IndexIDs     []string
	FileSize     int64
	FileHash     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.IndexIDs = append([]string(nil), d.IndexIDs...)
	return &c
}

// DocumentFilter narrows List results. Zero values match everything.
type DocumentFilter struct {
	Status      DocumentStatus
	IsProcessed *bool
	Limit       int
	Offset      int
}

// --- Vector types ---

// VectorRecord is one embedded chunk to be stored.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]any
}

// VectorResult is a stored chunk returned by a search or listing.
type VectorResult struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64 // cosine distance: lower = more similar; 0.0 = same direction
}
