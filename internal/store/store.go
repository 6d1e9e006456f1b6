// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// DocumentStore persists document records for the lifecycle manager.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter DocumentFilter) ([]*Document, error)
	FindByFile(ctx context.Context, file string) ([]*Document, error)
	CountByStatus(ctx context.Context) (map[DocumentStatus]int, error)
	Close() error
}
