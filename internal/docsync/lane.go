// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package docsync

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// workItem represents a unit of work submitted to a Lane.
type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error // nil for fire-and-forget work
}

// Lane serialises work for a single document. Tasks are executed one at a
// time in FIFO order by a background goroutine.
type Lane struct {
	key     string
	queue   chan workItem
	done    chan struct{}
	closing chan struct{} // Closed immediately when Close() is called
	pending *sync.WaitGroup

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool
	once   sync.Once
}

// NewLane creates a Lane for key and starts its background goroutine.
// pending, when non-nil, is incremented for every accepted item and
// decremented when the item finishes. Call Close when the lane is no longer
// needed.
func NewLane(key string, pending *sync.WaitGroup) *Lane {
	if pending == nil {
		pending = &sync.WaitGroup{}
	}
	l := &Lane{
		key:     key,
		queue:   make(chan workItem, 256),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		pending: pending,
	}
	go l.run()
	return l
}

// run processes work items sequentially until the lane is closed.
func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.executeWork(w)
		case <-l.closing:
			// Drain any remaining queued items before exiting.
			for {
				select {
				case w := <-l.queue:
					l.executeWork(w)
				default:
					return
				}
			}
		}
	}
}

// executeWork runs a work item with panic recovery.
func (l *Lane) executeWork(w workItem) {
	defer l.pending.Done()

	// Skip execution if the submitter's context is already cancelled.
	if err := w.ctx.Err(); err != nil {
		l.report(w, err)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("lane worker panic recovered",
					"document_id", l.key,
					"panic", r,
					"stack", string(debug.Stack()))
				err = ragerr.Errorf(ragerr.CodeDocumentSyncFailure, "worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	l.report(w, err)
}

func (l *Lane) report(w workItem, err error) {
	if w.result != nil {
		w.result <- err
		return
	}
	if err != nil {
		slog.Error("background document job failed",
			"document_id", l.key,
			"code", ragerr.CodeOf(err),
			"error", err)
	}
}

func (l *Lane) closedErr() error {
	return ragerr.New(ragerr.CodeDocumentLaneClosed, "lane is closed", ragerr.FieldDocumentID(l.key))
}

// enqueue hands w to the worker. The pending counter is incremented before
// the send so Wait never misses an item.
func (l *Lane) enqueue(ctx context.Context, w workItem) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return l.closedErr()
	}

	l.pending.Add(1)
	select {
	case <-ctx.Done():
		l.pending.Done()
		return ctx.Err()
	case l.queue <- w:
		return nil
	}
}

// Submit enqueues fn for execution on this lane and blocks until it completes.
// If ctx is cancelled before the work item can be enqueued or before execution
// begins, ctx.Err() is returned without executing fn.
// Returns an error if the lane has been closed.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	// Fast path: bail immediately if context is already done.
	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)
	if err := l.enqueue(ctx, workItem{fn: fn, ctx: ctx, result: result}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Enqueue schedules fn and returns without waiting for it. Failures are
// logged. fn runs with ctx, so callers detach it from request lifetimes.
func (l *Lane) Enqueue(ctx context.Context, fn func(context.Context) error) error {
	return l.enqueue(ctx, workItem{fn: fn, ctx: ctx})
}

// Close shuts down the lane's background goroutine and waits for it to finish
// processing any already-enqueued work. Close is idempotent and safe for
// concurrent calls.
func (l *Lane) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.closing) // Worker drains remaining items, then exits
		l.mu.Unlock()
		<-l.done // Wait for worker to finish processing
	})
}

// LanePool manages a set of Lanes keyed by document ID. It creates lanes on
// first access and is safe for concurrent use.
type LanePool struct {
	mu      sync.Mutex
	lanes   map[string]*Lane
	pending sync.WaitGroup
	closed  bool
}

// NewLanePool returns an empty LanePool.
func NewLanePool() *LanePool {
	return &LanePool{
		lanes: make(map[string]*Lane),
	}
}

// Get returns the Lane for key, creating one if it does not already exist.
// After Close the returned lane rejects all work.
func (p *LanePool) Get(key string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.lanes[key]; ok {
		return l
	}

	l := NewLane(key, &p.pending)
	if p.closed {
		l.Close()
		return l
	}
	p.lanes[key] = l
	return l
}

// Remove drops the lane for key and closes it after its queued work has
// drained. A later Get creates a fresh lane. Remove must not be called from
// work running on that lane.
func (p *LanePool) Remove(key string) {
	p.mu.Lock()
	l, ok := p.lanes[key]
	delete(p.lanes, key)
	p.mu.Unlock()

	if ok {
		l.Close()
	}
}

// Len reports the number of live lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Wait blocks until every accepted item on every lane has finished.
func (p *LanePool) Wait() {
	p.pending.Wait()
}

// Close shuts down all lanes managed by the pool after draining them.
func (p *LanePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.lanes {
		l.Close()
	}
	p.lanes = make(map[string]*Lane)
	p.closed = true
}
