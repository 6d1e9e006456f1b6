// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chunker splits extracted text into overlapping word windows.
package chunker

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sigil-dev/ragbot/internal/extract"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Metadata keys attached to every chunk produced from a file.
const (
	MetaFilePath      = "file_path"
	MetaFileName      = "file_name"
	MetaChunkIndex    = "chunk_index"
	MetaTotalChunks   = "total_chunks"
	MetaFileExtension = "file_extension"
)

// DocumentChunk is one window of a source file together with its provenance.
type DocumentChunk struct {
	Text     string
	Metadata map[string]any
}

// Validate checks the window configuration.
func Validate(size, overlap int) error {
	switch {
	case size <= 0:
		return ragerr.New(ragerr.CodeChunkConfigInvalid, "chunk size must be positive",
			ragerr.Field("chunk_size", size))
	case overlap < 0:
		return ragerr.New(ragerr.CodeChunkConfigInvalid, "chunk overlap must not be negative",
			ragerr.Field("chunk_overlap", overlap))
	case overlap >= size:
		return ragerr.New(ragerr.CodeChunkConfigInvalid, "chunk overlap must be smaller than chunk size",
			ragerr.Field("chunk_size", size), ragerr.Field("chunk_overlap", overlap))
	}
	return nil
}

// Chunk splits text into windows of size words advancing by size-overlap.
// Text with at most size words is returned unchanged as the only chunk.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(words)-overlap+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// Chunker chunks files discovered through an extractor registry.
type Chunker struct {
	Size      int
	Overlap   int
	Extractor *extract.Registry
}

// New returns a Chunker after validating the window configuration.
func New(size, overlap int, reg *extract.Registry) (*Chunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = extract.NewDefaultRegistry()
	}
	return &Chunker{Size: size, Overlap: overlap, Extractor: reg}, nil
}

// ChunkFile extracts path and returns its chunks. Unreadable or empty files
// yield no chunks.
func (c *Chunker) ChunkFile(ctx context.Context, path string) ([]DocumentChunk, error) {
	text := c.Extractor.ExtractText(ctx, path)
	if strings.TrimSpace(text) == "" {
		slog.Debug("skipping file without text", "path", path)
		return nil, nil
	}

	parts, err := Chunk(text, c.Size, c.Overlap)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	out := make([]DocumentChunk, len(parts))
	for i, part := range parts {
		out[i] = DocumentChunk{
			Text: part,
			Metadata: map[string]any{
				MetaFilePath:      path,
				MetaFileName:      filepath.Base(path),
				MetaChunkIndex:    i,
				MetaTotalChunks:   len(parts),
				MetaFileExtension: ext,
			},
		}
	}
	return out, nil
}

// Files returns every supported file below root in lexicographic path order.
func (c *Chunker) Files(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, ragerr.New(ragerr.CodeChunkDirectoryNotFound, "document directory not found",
			ragerr.FieldPath(root))
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type().IsRegular() && c.Extractor.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, ragerr.Wrap(walkErr, ragerr.CodeChunkDirectoryWalkFailed, "walking document directory",
			ragerr.FieldPath(root))
	}

	sort.Strings(files)
	return files, nil
}

// ChunkDirectory chunks every supported file below root, in path order.
func (c *Chunker) ChunkDirectory(ctx context.Context, root string) ([]DocumentChunk, error) {
	files, err := c.Files(ctx, root)
	if err != nil {
		return nil, err
	}

	var all []DocumentChunk
	for _, path := range files {
		chunks, err := c.ChunkFile(ctx, path)
		if err != nil {
			return nil, err
		}
		slog.Debug("file chunked", "path", path, "chunks", len(chunks))
		all = append(all, chunks...)
	}
	return all, nil
}
