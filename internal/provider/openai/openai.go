// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/sigil-dev/ragbot/internal/provider"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Config holds configuration for any OpenAI-compatible chat completions API.
type Config struct {
	// Name is reported by Provider.Name. Defaults to "openai".
	Name    string
	APIKey  string
	BaseURL string // optional, useful for compatible APIs and mock servers
}

// Provider implements provider.Provider using the OpenAI Chat Completions API.
type Provider struct {
	client openaisdk.Client
	name   string
	health *provider.HealthTracker
}

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeProviderRequestInvalid,
			name+": missing api_key in config", ragerr.FieldProvider(name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openaisdk.NewClient(opts...),
		name:   name,
		health: provider.NewHealthTracker(provider.DefaultHealthCooldown),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

// RecordFailure marks the provider unhealthy for the cooldown period.
func (p *Provider) RecordFailure() { p.health.RecordFailure() }

// RecordSuccess marks the provider healthy.
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

// HealthMetrics reports the tracker snapshot.
func (p *Provider) HealthMetrics() provider.HealthMetrics { return p.health.HealthMetrics() }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeProviderUpstreamFailure,
			p.name+": chat completion failed", ragerr.FieldProvider(p.name))
	}
	if len(resp.Choices) == 0 {
		return nil, ragerr.New(ragerr.CodeProviderResponseInvalid,
			p.name+": response has no choices", ragerr.FieldProvider(p.name))
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &provider.CompletionResponse{
		Text:     strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:    model,
		Provider: p.name,
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) Close() error { return nil }

// buildParams converts a provider.CompletionRequest into SDK ChatCompletionNewParams.
func buildParams(req provider.CompletionRequest) (openaisdk.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openaisdk.ChatCompletionNewParams{}, ragerr.New(ragerr.CodeProviderRequestInvalid, "openai: model is required")
	}
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = param.NewOpt(req.Options.TopP)
	}
	return params, nil
}

// convertMessages transforms provider messages into SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		default:
			return nil, ragerr.Errorf(ragerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}
