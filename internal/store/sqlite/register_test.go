// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/ragbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredBackends_CreateDataDir(t *testing.T) {
	dir := filepath.Join(testDir(t), "nested", "data")

	vs, err := store.NewVectorStore(store.StorageConfig{Backend: "sqlite-vec", VectorDimensions: 3}, dir)
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	ds, err := store.NewDocumentStore("sqlite", dir)
	require.NoError(t, err)
	defer func() { _ = ds.Close() }()

	assert.FileExists(t, filepath.Join(dir, "index.db"))
	assert.FileExists(t, filepath.Join(dir, "documents.db"))
}

func TestRegisteredBackends_FailOnUnusablePath(t *testing.T) {
	dir := testDir(t)
	// A directory where the database file should be makes opening fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "index.db"), 0o755))

	_, err := store.NewVectorStore(store.StorageConfig{VectorDimensions: 3}, dir)
	assert.Error(t, err)
}
