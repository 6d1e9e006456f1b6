// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package groq

import (
	"github.com/sigil-dev/ragbot/internal/provider/openai"
)

// BaseURL is Groq's OpenAI-compatible API root.
const BaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is the model used when none is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// Config holds Groq provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// New creates a Groq provider on top of the OpenAI-compatible backend.
// Returns an error if the API key is missing.
func New(cfg Config) (*openai.Provider, error) {
	base := BaseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	return openai.New(openai.Config{
		Name:    "groq",
		APIKey:  cfg.APIKey,
		BaseURL: base,
	})
}
