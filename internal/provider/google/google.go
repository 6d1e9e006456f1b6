// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/sigil-dev/ragbot/internal/provider"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeProviderRequestInvalid, "google: missing api_key in config", ragerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	return &Provider{
		client: client,
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.HealthMetrics() }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if req.Model == "" {
		return nil, ragerr.New(ragerr.CodeProviderRequestInvalid, "google: model is required")
	}
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeProviderUpstreamFailure,
			"google: generate content failed", ragerr.FieldProvider("google"))
	}

	var sb strings.Builder
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return nil, ragerr.New(ragerr.CodeProviderResponseInvalid,
			"google: response has no text content", ragerr.FieldProvider("google"))
	}

	resp := &provider.CompletionResponse{
		Text:     strings.TrimSpace(sb.String()),
		Model:    req.Model,
		Provider: "google",
	}
	if result.UsageMetadata != nil {
		resp.Usage = provider.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

func (p *Provider) Close() error { return nil }

// buildConfig converts request options into a genai.GenerateContentConfig.
func buildConfig(req provider.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Options.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Options.Temperature))
	}
	if req.Options.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.Options.TopP))
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.SystemPrompt},
			},
		}
	}
	return cfg
}

// convertMessages transforms provider messages into genai.Content slices.
// Assistant turns use the "model" role.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	result := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case provider.MessageRoleUser:
			role = "user"
		case provider.MessageRoleAssistant:
			role = "model"
		default:
			return nil, ragerr.Errorf(ragerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return result, nil
}
