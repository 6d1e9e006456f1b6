// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"testing"
	"time"

	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() store.Document {
	return store.Document{
		ID:           "doc-1",
		Name:         "Qo'llanma",
		File:         "/srv/docs/guide.pdf",
		DocumentType: store.DocumentTypePDF,
		Status:       store.DocumentStatusPending,
		CreatedAt:    time.Now(),
	}
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *store.Document)
		wantErr string
	}{
		{"valid pending", func(*store.Document) {}, ""},
		{"valid processed", func(d *store.Document) {
			d.Status = store.DocumentStatusProcessed
			d.IsProcessed = true
			d.IndexIDs = []string{"a"}
		}, ""},
		{"valid error keeps ids", func(d *store.Document) {
			d.Status = store.DocumentStatusError
			d.IndexIDs = []string{"a"}
		}, ""},
		{"missing id", func(d *store.Document) { d.ID = "" }, "ID is required"},
		{"blank name", func(d *store.Document) { d.Name = "  " }, "Name is required"},
		{"missing file", func(d *store.Document) { d.File = "" }, "File is required"},
		{"bad type", func(d *store.Document) { d.DocumentType = "docx" }, "invalid type"},
		{"bad status", func(d *store.Document) { d.Status = "done" }, "invalid status"},
		{"pending with ids", func(d *store.Document) { d.IndexIDs = []string{"a"} }, "pending document"},
		{"processed without ids", func(d *store.Document) { d.Status = store.DocumentStatusProcessed }, "processed document"},
		{"negative size", func(d *store.Document) { d.FileSize = -1 }, "FileSize"},
		{"missing created", func(d *store.Document) { d.CreatedAt = time.Time{} }, "CreatedAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDocument()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, ragerr.IsInvalidInput(err))
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := validDocument()
	d.IndexIDs = []string{"a", "b"}

	c := d.Clone()
	c.IndexIDs[0] = "z"
	c.Name = "other"

	assert.Equal(t, "a", d.IndexIDs[0])
	assert.Equal(t, "Qo'llanma", d.Name)
	assert.Nil(t, (*store.Document)(nil).Clone())
}

func TestDocumentTypeFromPath(t *testing.T) {
	typ, ok := store.DocumentTypeFromPath("/a/B.PDF")
	assert.True(t, ok)
	assert.Equal(t, store.DocumentTypePDF, typ)

	typ, ok = store.DocumentTypeFromPath("notes.txt")
	assert.True(t, ok)
	assert.Equal(t, store.DocumentTypeText, typ)

	_, ok = store.DocumentTypeFromPath("table.xlsx")
	assert.False(t, ok)
}

func TestVectorRecord_Validate(t *testing.T) {
	assert.NoError(t, store.VectorRecord{ID: "a", Embedding: []float32{1, 0}}.Validate(2))
	assert.Error(t, store.VectorRecord{Embedding: []float32{1, 0}}.Validate(2))
	assert.Error(t, store.VectorRecord{ID: "a", Embedding: []float32{1}}.Validate(2))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []store.DocumentStatus{
		store.DocumentStatusPending, store.DocumentStatusProcessing,
		store.DocumentStatusProcessed, store.DocumentStatusError,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, store.DocumentStatus("archived").Valid())
}
