// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sigil-dev/ragbot/internal/provider"
	"github.com/sigil-dev/ragbot/internal/provider/google"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ provider.Provider = (*google.Provider)(nil)

func TestProvider_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeProviderRequestInvalid))
}

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Salom "}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 1, "totalTokenCount": 10}
		}`))
	}))
	defer srv.Close()

	p, err := google.New(google.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), provider.CompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "Salom"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Salom", resp.Text)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, 1, resp.Usage.OutputTokens)
}

func TestConvertMessages(t *testing.T) {
	contents, err := google.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleUser, Content: "q"},
		{Role: provider.MessageRoleAssistant, Content: "a"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "a", contents[1].Parts[0].Text)

	_, err = google.ConvertMessages([]provider.Message{{Role: "system", Content: "x"}})
	require.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	cfg := google.BuildConfig(provider.CompletionRequest{
		SystemPrompt: "sys",
		Options:      provider.CompletionOptions{MaxTokens: 1024, Temperature: 0.3, TopP: 0.9},
	})
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-6)
	require.NotNil(t, cfg.TopP)
	assert.InDelta(t, 0.9, *cfg.TopP, 1e-6)
	assert.Equal(t, int32(1024), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)

	empty := google.BuildConfig(provider.CompletionRequest{})
	assert.Nil(t, empty.Temperature)
	assert.Nil(t, empty.SystemInstruction)
}
