// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package extract turns source files into plain text. Each supported format
// is an Extractor registered under its file extensions.
package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Extractor converts one file format to plain text.
type Extractor interface {
	// Extract returns the text content of the file at path.
	Extract(ctx context.Context, path string) (string, error)
	// Extensions lists the lower-cased extensions handled, including the dot.
	Extensions() []string
}

// Registry dispatches extraction by file extension.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// NewDefaultRegistry creates a registry with the PDF and plain text extractors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDF())
	r.Register(NewText())
	return r
}

// Register adds e under every extension it reports, replacing earlier entries.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range e.Extensions() {
		r.extractors[normalizeExt(ext)] = e
	}
}

// Lookup returns the extractor for path's extension.
func (r *Registry) Lookup(path string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[normalizeExt(filepath.Ext(path))]
	return e, ok
}

// Supported reports whether path has a registered extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.Lookup(path)
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract returns the text of path or a coded error describing why it could
// not be read.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	e, ok := r.Lookup(path)
	if !ok {
		return "", ragerr.New(ragerr.CodeExtractFormatUnsupported,
			"unsupported file type "+filepath.Ext(path), ragerr.FieldPath(path))
	}
	return e.Extract(ctx, path)
}

// ExtractText is the soft boundary: failures are logged and yield "".
func (r *Registry) ExtractText(ctx context.Context, path string) string {
	text, err := r.Extract(ctx, path)
	if err != nil {
		slog.Error("text extraction failed", "path", path, "code", ragerr.CodeOf(err), "error", err)
		return ""
	}
	slog.Debug("text extracted", "path", path, "bytes", len(text))
	return text
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
