// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// ProviderName identifies a supported LLM provider for key validation.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderGoogle    ProviderName = "google"
	ProviderGroq      ProviderName = "groq"
)

// KnownProviders lists every provider with a built-in backend.
var KnownProviders = []ProviderName{ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

// ModelsURL returns the models endpoint used to check a key.
func ModelsURL(provider ProviderName, key string) string {
	switch provider {
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1/models"
	case ProviderOpenAI:
		return "https://api.openai.com/v1/models"
	case ProviderGoogle:
		// Google's Generative Language API authenticates via query parameter.
		// The key will appear in HTTP proxy access logs.
		return "https://generativelanguage.googleapis.com/v1/models?key=" + key
	case ProviderGroq:
		return "https://api.groq.com/openai/v1/models"
	default:
		return ""
	}
}

// ValidateKey makes a lightweight HTTP call to the provider's models endpoint
// to confirm the API key is valid.
func ValidateKey(ctx context.Context, client *http.Client, provider ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, provider, key, "")
}

// ValidateKeyWithURL is a testable version of ValidateKey. When url is
// non-empty it overrides the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, provider ProviderName, key, url string) error {
	if url == "" {
		url = ModelsURL(provider, key)
	}
	if url == "" {
		return ragerr.Errorf(ragerr.CodeProviderKeyInvalid, "unknown provider: %s", provider)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ragerr.Errorf(ragerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	switch provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOpenAI, ProviderGroq:
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ragerr.Errorf(ragerr.CodeProviderKeyCheckFailed, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ragerr.Errorf(ragerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return ragerr.Errorf(ragerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}

	return nil
}
