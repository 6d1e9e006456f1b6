// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Hashing is an offline bag-of-words embedder using signed feature hashing.
// Texts that share words end up close under cosine distance.
type Hashing struct {
	dims int
}

var _ Embedder = (*Hashing)(nil)

func NewHashing(dims int) (*Hashing, error) {
	if dims <= 0 {
		return nil, ragerr.Errorf(ragerr.CodeEmbedConfigInvalid,
			"hashing embedder needs positive dimensions, got %d", dims)
	}
	return &Hashing{dims: dims}, nil
}

func (h *Hashing) Name() string    { return "hashing" }
func (h *Hashing) Dimensions() int { return h.dims }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeEmbedRequestInvalid, "embedding cancelled")
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		hs := fnv.New64a()
		_, _ = hs.Write([]byte(tok))
		sum := hs.Sum64()
		bucket := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		// Cosine distance is undefined for the zero vector.
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
