// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint. Ollama, LM Studio
// and vLLM expose the same API.
type OpenAI struct {
	client openaisdk.Client
	model  string
	dims   int
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates the backend. An empty endpoint selects the local Ollama
// default.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.Endpoint),
		option.WithMaxRetries(2),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local servers ignore the key but the SDK always sends one.
		opts = append(opts, option.WithAPIKey("unused"))
	}

	return &OpenAI{
		client: openaisdk.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (e *OpenAI) Name() string    { return "openai:" + e.model }
func (e *OpenAI) Dimensions() int { return e.dims }

// Embed sends all texts in one request.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          e.model,
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a dimensions override.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeEmbedUpstreamFailure, "embedding request failed",
			ragerr.FieldProvider(e.Name()))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, ragerr.Errorf(ragerr.CodeEmbedResponseInvalid,
				"%s: embedding index %d out of range", e.Name(), d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}

	if err := checkVectors(e.Name(), out, len(texts), e.dims); err != nil {
		return nil, err
	}
	return out, nil
}
