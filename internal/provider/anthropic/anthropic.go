// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sigil-dev/ragbot/internal/provider"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// defaultMaxTokens is sent when the request leaves MaxTokens unset; the
// Messages API requires it.
const defaultMaxTokens = 1024

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeProviderRequestInvalid,
			"anthropic: missing api_key in config", ragerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.HealthMetrics() }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeProviderUpstreamFailure,
			"anthropic: messages request failed", ragerr.FieldProvider("anthropic"))
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, ragerr.New(ragerr.CodeProviderResponseInvalid,
			"anthropic: response has no text content", ragerr.FieldProvider("anthropic"))
	}

	model := string(msg.Model)
	if model == "" {
		model = req.Model
	}
	return &provider.CompletionResponse{
		Text:     strings.TrimSpace(sb.String()),
		Model:    model,
		Provider: "anthropic",
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.CompletionRequest) (anthropicsdk.MessageNewParams, error) {
	if req.Model == "" {
		return anthropicsdk.MessageNewParams{}, ragerr.New(ragerr.CodeProviderRequestInvalid, "anthropic: model is required")
	}
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = anthropicsdk.Float(req.Options.TopP)
	}
	return params, nil
}

// convertMessages transforms provider messages into Anthropic SDK message params.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	result := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		block := anthropicsdk.NewTextBlock(msg.Content)
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(block))
		case provider.MessageRoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(block))
		default:
			return nil, ragerr.Errorf(ragerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}
