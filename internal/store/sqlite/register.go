// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

func init() {
	store.RegisterVectorBackend("sqlite-vec", newVectorStore)
	store.RegisterDocumentBackend("sqlite", newDocumentStore)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating data directory", ragerr.FieldPath(path))
	}
	return nil
}

func newVectorStore(cfg store.StorageConfig, dataPath string) (store.VectorStore, error) {
	if err := ensureDir(dataPath); err != nil {
		return nil, err
	}
	return NewVectorStore(filepath.Join(dataPath, "index.db"), cfg.Collection, cfg.VectorDimensions)
}

func newDocumentStore(dataPath string) (store.DocumentStore, error) {
	if err := ensureDir(dataPath); err != nil {
		return nil, err
	}
	return NewDocumentStore(filepath.Join(dataPath, "documents.db"))
}
