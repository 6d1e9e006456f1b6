// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/store"
)

func (s *Server) registerDocumentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents",
		Summary:     "List document records",
		Tags:        []string{"documents"},
	}, s.handleListDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-document",
		Method:        http.MethodPost,
		Path:          "/api/v1/documents",
		Summary:       "Register a document file",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "document-summary",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents/summary",
		Summary:     "Document counts per status",
		Tags:        []string{"documents"},
	}, s.handleDocumentSummary)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents/{id}",
		Summary:     "Get a document record",
		Tags:        []string{"documents"},
	}, s.handleGetDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-document",
		Method:      http.MethodPatch,
		Path:        "/api/v1/documents/{id}",
		Summary:     "Update a document record",
		Tags:        []string{"documents"},
	}, s.handleUpdateDocument)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-document",
		Method:        http.MethodDelete,
		Path:          "/api/v1/documents/{id}",
		Summary:       "Delete a document record and its chunks",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "process-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents/{id}/process",
		Summary:     "Mark a document processed and queue its ingestion",
		Tags:        []string{"documents"},
	}, s.handleProcessDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "unprocess-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents/{id}/unprocess",
		Summary:     "Mark a document unprocessed and queue chunk removal",
		Tags:        []string{"documents"},
	}, s.handleUnprocessDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "sync-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents/{id}/sync",
		Summary:     "Synchronise a document with the index now",
		Tags:        []string{"documents"},
	}, s.handleSyncDocument)
}

// Document is the REST view of a document record.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	File         string    `json:"file"`
	DocumentType string    `json:"document_type" enum:"pdf,txt"`
	Description  string    `json:"description"`
	IsProcessed  bool      `json:"is_processed"`
	Status       string    `json:"status" enum:"pending,processing,processed,error"`
	IndexIDs     []string  `json:"index_ids"`
	FileSize     int64     `json:"file_size"`
	SizeLabel    string    `json:"size_label" doc:"Human readable file size"`
	FileHash     string    `json:"file_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDocument(d *store.Document) Document {
	ids := d.IndexIDs
	if ids == nil {
		ids = []string{}
	}
	return Document{
		ID:           d.ID,
		Name:         d.Name,
		File:         d.File,
		DocumentType: string(d.DocumentType),
		Description:  d.Description,
		IsProcessed:  d.IsProcessed,
		Status:       string(d.Status),
		IndexIDs:     ids,
		FileSize:     d.FileSize,
		SizeLabel:    docsync.FormatSize(d.FileSize),
		FileHash:     d.FileHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type listDocumentsInput struct {
	Status    string `query:"status" enum:"pending,processing,processed,error" doc:"Filter by status"`
	Processed string `query:"processed" enum:"true,false" doc:"Filter by the processed flag"`
	Limit     int    `query:"limit" minimum:"0" maximum:"500" doc:"Page size, 0 selects 100"`
	Offset    int    `query:"offset" minimum:"0"`
}

type listDocumentsOutput struct {
	Body struct {
		Documents []Document `json:"documents"`
	}
}

type createDocumentInput struct {
	Body struct {
		Name        string `json:"name,omitempty" doc:"Display name, defaults to the file name"`
		File        string `json:"file" minLength:"1" doc:"Path of a .pdf or .txt file, relative to the documents directory"`
		Description string `json:"description,omitempty"`
		IsProcessed bool   `json:"is_processed,omitempty" doc:"Index the file right away"`
	}
}

type documentIDInput struct {
	ID string `path:"id"`
}

type updateDocumentInput struct {
	ID   string `path:"id"`
	Body struct {
		Name        *string `json:"name,omitempty"`
		File        *string `json:"file,omitempty"`
		Description *string `json:"description,omitempty"`
		IsProcessed *bool   `json:"is_processed,omitempty"`
	}
}

type documentOutput struct {
	Body Document
}

type outcomeOutput struct {
	Body docsync.Outcome
}

type summaryOutput struct {
	Body docsync.Summary
}

func (s *Server) handleListDocuments(ctx context.Context, input *listDocumentsInput) (*listDocumentsOutput, error) {
	filter := store.DocumentFilter{
		Status: store.DocumentStatus(input.Status),
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if input.Processed != "" {
		processed := input.Processed == "true"
		filter.IsProcessed = &processed
	}

	docs, err := s.services.documents.List(ctx, filter)
	if err != nil {
		return nil, apiError("listing documents", err)
	}
	out := &listDocumentsOutput{}
	out.Body.Documents = make([]Document, len(docs))
	for i, d := range docs {
		out.Body.Documents[i] = toDocument(d)
	}
	return out, nil
}

func (s *Server) handleCreateDocument(ctx context.Context, input *createDocumentInput) (*documentOutput, error) {
	doc, err := s.services.documents.Save(ctx, &store.Document{
		Name:        input.Body.Name,
		File:        input.Body.File,
		Description: input.Body.Description,
		IsProcessed: input.Body.IsProcessed,
	})
	if err != nil {
		return nil, apiError("creating document", err)
	}
	return &documentOutput{Body: toDocument(doc)}, nil
}

func (s *Server) handleDocumentSummary(ctx context.Context, _ *struct{}) (*summaryOutput, error) {
	sum, err := s.services.documents.Summary(ctx)
	if err != nil {
		return nil, apiError("summarising documents", err)
	}
	return &summaryOutput{Body: sum}, nil
}

func (s *Server) handleGetDocument(ctx context.Context, input *documentIDInput) (*documentOutput, error) {
	doc, err := s.services.documents.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting document", err)
	}
	return &documentOutput{Body: toDocument(doc)}, nil
}

func (s *Server) handleUpdateDocument(ctx context.Context, input *updateDocumentInput) (*documentOutput, error) {
	doc, err := s.services.documents.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting document", err)
	}
	if v := input.Body.Name; v != nil {
		doc.Name = *v
	}
	if v := input.Body.File; v != nil {
		doc.File = *v
	}
	if v := input.Body.Description; v != nil {
		doc.Description = *v
	}
	if v := input.Body.IsProcessed; v != nil {
		doc.IsProcessed = *v
	}

	saved, err := s.services.documents.Save(ctx, doc)
	if err != nil {
		return nil, apiError("updating document", err)
	}
	return &documentOutput{Body: toDocument(saved)}, nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, input *documentIDInput) (*struct{}, error) {
	if err := s.services.documents.Delete(ctx, input.ID); err != nil {
		return nil, apiError("deleting document", err)
	}
	return nil, nil
}

func (s *Server) handleProcessDocument(ctx context.Context, input *documentIDInput) (*outcomeOutput, error) {
	return s.outcome(ctx, input.ID, s.services.documents.Process)
}

func (s *Server) handleUnprocessDocument(ctx context.Context, input *documentIDInput) (*outcomeOutput, error) {
	return s.outcome(ctx, input.ID, s.services.documents.Unprocess)
}

func (s *Server) outcome(ctx context.Context, id string, action func(context.Context, ...string) []docsync.Outcome) (*outcomeOutput, error) {
	if _, err := s.services.documents.Get(ctx, id); err != nil {
		return nil, apiError("getting document", err)
	}
	results := action(ctx, id)
	if len(results) != 1 {
		return nil, huma.Error500InternalServerError("unexpected outcome count")
	}
	return &outcomeOutput{Body: results[0]}, nil
}

func (s *Server) handleSyncDocument(ctx context.Context, input *documentIDInput) (*documentOutput, error) {
	doc, err := s.services.documents.SyncNow(ctx, input.ID)
	if err != nil {
		return nil, apiError("syncing document", err)
	}
	if doc == nil {
		return nil, huma.Error404NotFound("document " + input.ID + " not found")
	}
	return &documentOutput{Body: toDocument(doc)}, nil
}
