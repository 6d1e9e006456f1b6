// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend          string // "sqlite-vec" (default) or "qdrant"
	VectorDimensions int    // 0 uses the default (384)
	Collection       string // defaults to "documents"
	Qdrant           QdrantConfig
}

// QdrantConfig addresses a remote Qdrant instance over gRPC.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}
