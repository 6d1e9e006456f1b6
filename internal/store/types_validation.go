// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"path/filepath"
	"strings"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Valid reports whether the status is a known lifecycle state.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusProcessed, DocumentStatusError:
		return true
	default:
		return false
	}
}

// Valid reports whether the type is a supported document format.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypePDF, DocumentTypeText:
		return true
	default:
		return false
	}
}

// DocumentTypeFromPath infers the document type from a file extension.
func DocumentTypeFromPath(path string) (DocumentType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return DocumentTypePDF, true
	case ".txt":
		return DocumentTypeText, true
	default:
		return "", false
	}
}

// Validate checks required fields and the status/IndexIDs invariants.
func (d Document) Validate() error {
	if d.ID == "" {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: ID is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: Name is required", ragerr.FieldDocumentID(d.ID))
	}
	if d.File == "" {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: File is required", ragerr.FieldDocumentID(d.ID))
	}
	if !d.DocumentType.Valid() {
		return ragerr.Errorf(ragerr.CodeStoreInvalidInput, "document: invalid type %q", d.DocumentType)
	}
	if !d.Status.Valid() {
		return ragerr.Errorf(ragerr.CodeStoreInvalidInput, "document: invalid status %q", d.Status)
	}
	if d.Status == DocumentStatusPending && len(d.IndexIDs) > 0 {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: pending document must not carry index ids",
			ragerr.FieldDocumentID(d.ID))
	}
	if d.Status == DocumentStatusProcessed && len(d.IndexIDs) == 0 {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: processed document must carry index ids",
			ragerr.FieldDocumentID(d.ID))
	}
	if d.FileSize < 0 {
		return ragerr.Errorf(ragerr.CodeStoreInvalidInput, "document: FileSize must be >= 0, got %d", d.FileSize)
	}
	if d.CreatedAt.IsZero() {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "document: CreatedAt is required", ragerr.FieldDocumentID(d.ID))
	}
	return nil
}

// Validate checks a vector record before it is written.
func (r VectorRecord) Validate(dims int) error {
	if r.ID == "" {
		return ragerr.New(ragerr.CodeStoreInvalidInput, "vector record: ID is required")
	}
	if len(r.Embedding) != dims {
		return ragerr.Errorf(ragerr.CodeStoreInvalidInput,
			"vector record %s: embedding has %d dimensions, want %d", r.ID, len(r.Embedding), dims)
	}
	return nil
}
