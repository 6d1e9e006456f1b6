// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package docsync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultRescan   = 30 * time.Second
	listPageSize    = 200
)

// WatcherOptions tunes a Watcher. Zero values select the defaults.
type WatcherOptions struct {
	Debounce time.Duration
	Rescan   time.Duration
	// Dirs are watched even when no tracked document lives there yet.
	Dirs []string
}

// Watcher re-runs the file-changed path when a tracked document file is
// written, created or renamed on disk.
type Watcher struct {
	mgr  *Manager
	fsw  *fsnotify.Watcher
	opts WatcherOptions

	mu      sync.Mutex
	dirs    map[string]struct{}
	tracked map[string][]string // resolved path -> document ids
	timers  map[string]*time.Timer
}

// NewWatcher creates a watcher over the manager's records.
func NewWatcher(mgr *Manager, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Rescan <= 0 {
		opts.Rescan = DefaultRescan
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeDocumentWatchFailure, "creating file watcher")
	}
	return &Watcher{
		mgr:     mgr,
		fsw:     fsw,
		opts:    opts,
		dirs:    make(map[string]struct{}),
		tracked: make(map[string][]string),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	if err := w.Refresh(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.opts.Rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", "error", err)
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				slog.Warn("file watcher rescan failed", "error", err)
			}
		}
	}
}

// Refresh reloads the tracked file set and watches any new directories.
func (w *Watcher) Refresh(ctx context.Context) error {
	tracked := make(map[string][]string)
	for offset := 0; ; offset += listPageSize {
		page, err := w.mgr.List(ctx, store.DocumentFilter{Limit: listPageSize, Offset: offset})
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodeDocumentWatchFailure, "listing documents to watch")
		}
		for _, doc := range page {
			path := w.mgr.Resolve(doc.File)
			tracked[path] = append(tracked[path], doc.ID)
		}
		if len(page) < listPageSize {
			break
		}
	}

	dirs := append([]string(nil), w.opts.Dirs...)
	for path := range tracked {
		dirs = append(dirs, filepath.Dir(path))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = tracked
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			slog.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		w.dirs[dir] = struct{}{}
		slog.Debug("watching directory", "dir", dir)
	}
	return nil
}

// Tracked reports whether path belongs to a document record.
func (w *Watcher) Tracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tracked[filepath.Clean(path)]
	return ok
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
	case ev.Has(fsnotify.Rename), ev.Has(fsnotify.Remove):
		// An editor that saves by rename produces Create for the new file.
		if w.Tracked(ev.Name) {
			slog.Info("tracked document file moved or removed", "path", ev.Name)
		}
		return
	default:
		return
	}

	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[path]; !ok {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() { w.fire(ctx, path) })
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	ids := append([]string(nil), w.tracked[path]...)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	for _, id := range ids {
		if err := w.mgr.FileChanged(ctx, id); err != nil {
			slog.Warn("document file change not applied", "document_id", id, "path", path, "error", err)
			continue
		}
		slog.Info("document file changed", "document_id", id, "path", path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		slog.Warn("closing file watcher", "error", err)
	}
}
