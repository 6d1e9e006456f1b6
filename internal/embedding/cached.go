// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cached memoizes vectors per text with least-recently-used eviction.
type Cached struct {
	inner Embedder
	max   int

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	text string
	vec  []float32
}

var _ Embedder = (*Cached)(nil)

func NewCached(inner Embedder, size int) *Cached {
	return &Cached{
		inner:   inner,
		max:     size,
		order:   list.New(),
		entries: make(map[string]*list.Element, size),
	}
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Len reports the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Embed serves hits from the cache and sends only the misses upstream.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing []string
		slots   = map[string][]int{}
	)

	c.mu.Lock()
	for i, text := range texts {
		if el, ok := c.entries[text]; ok {
			c.order.MoveToFront(el)
			out[i] = el.Value.(*cacheEntry).vec
			continue
		}
		if _, queued := slots[text]; !queued {
			missing = append(missing, text)
		}
		slots[text] = append(slots[text], i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(c.Name(), vecs, len(missing), c.Dimensions()); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, text := range missing {
		for _, i := range slots[text] {
			out[i] = vecs[j]
		}
		c.put(text, vecs[j])
	}
	return out, nil
}

// put stores vec under text. Caller must hold c.mu.
func (c *Cached) put(text string, vec []float32) {
	if el, ok := c.entries[text]; ok {
		el.Value.(*cacheEntry).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.entries[text] = c.order.PushFront(&cacheEntry{text: text, vec: vec})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).text)
	}
}
