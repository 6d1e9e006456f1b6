// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package docsync_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-dev/ragbot/internal/docsync"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLane_SerializesJobs(t *testing.T) {
	lane := docsync.NewLane("doc-1", nil)
	defer lane.Close()

	var mu sync.Mutex
	var order []int

	// Staggered submission makes the FIFO order deterministic.
	var wg sync.WaitGroup
	for i := range 3 {
		time.Sleep(5 * time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lane.Submit(context.Background(), func(_ context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order, "jobs must execute in FIFO submission order")
}

func TestLane_EnqueueDoesNotBlock(t *testing.T) {
	pool := docsync.NewLanePool()
	defer pool.Close()

	release := make(chan struct{})
	var ran atomic.Int32
	lane := pool.Get("doc-1")

	require.NoError(t, lane.Enqueue(context.Background(), func(context.Context) error {
		<-release
		ran.Add(1)
		return nil
	}))
	require.NoError(t, lane.Enqueue(context.Background(), func(context.Context) error {
		ran.Add(1)
		return nil
	}))
	assert.Zero(t, ran.Load(), "enqueue returns before jobs run")

	close(release)
	pool.Wait()
	assert.Equal(t, int32(2), ran.Load())
}

func TestLane_ConcurrentDocuments(t *testing.T) {
	pool := docsync.NewLanePool()
	defer pool.Close()

	var peak atomic.Int32
	var running atomic.Int32

	var wg sync.WaitGroup
	for _, id := range []string{"doc-a", "doc-b", "doc-c"} {
		lane := pool.Get(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lane.Submit(context.Background(), func(_ context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.GreaterOrEqual(t, peak.Load(), int32(2), "at least 2 lanes should have run concurrently")
	assert.Equal(t, 3, pool.Len())
	assert.Same(t, pool.Get("doc-a"), pool.Get("doc-a"))
}

func TestLane_ContextCancellation(t *testing.T) {
	lane := docsync.NewLane("doc-cancel", nil)
	defer lane.Close()

	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := lane.Submit(context.Background(), func(_ context.Context) error {
			close(started)
			time.Sleep(200 * time.Millisecond)
			return nil
		})
		assert.NoError(t, err)
	}()

	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := lane.Submit(ctx, func(_ context.Context) error {
		t.Error("should not execute")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	wg.Wait()
}

func TestLane_PanicIsRecovered(t *testing.T) {
	lane := docsync.NewLane("doc-panic", nil)
	defer lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeDocumentSyncFailure))

	// The lane keeps working after a panic.
	assert.NoError(t, lane.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestLanePool_RemoveDrainsAndReleases(t *testing.T) {
	pool := docsync.NewLanePool()
	defer pool.Close()

	var ran atomic.Int32
	for _, key := range []string{"doc-1", "doc-2"} {
		require.NoError(t, pool.Get(key).Enqueue(context.Background(), func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return nil
		}))
	}
	require.Equal(t, 2, pool.Len())

	old := pool.Get("doc-1")
	pool.Remove("doc-1")
	assert.Equal(t, 1, pool.Len())
	assert.GreaterOrEqual(t, ran.Load(), int32(1), "queued work runs before the lane closes")

	err := old.Submit(context.Background(), func(context.Context) error { return nil })
	assert.True(t, ragerr.HasCode(err, ragerr.CodeDocumentLaneClosed))

	// A removed key gets a fresh, working lane.
	require.NoError(t, pool.Get("doc-1").Submit(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, 2, pool.Len())

	pool.Remove("never-created")
	assert.Equal(t, 2, pool.Len())
}

func TestLane_ClosedRejectsWork(t *testing.T) {
	pool := docsync.NewLanePool()
	var ran atomic.Int32
	require.NoError(t, pool.Get("doc-1").Enqueue(context.Background(), func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ran.Add(1)
		return nil
	}))

	pool.Close()
	assert.Equal(t, int32(1), ran.Load(), "close drains queued work")

	err := pool.Get("doc-1").Submit(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeDocumentLaneClosed))
	assert.Zero(t, pool.Len())
}
