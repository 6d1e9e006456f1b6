// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package completion builds the question-plus-context prompt and calls the
// configured LLM provider chain with fixed sampling parameters.
package completion

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/ragbot/internal/provider"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.3
	DefaultTopP        = 0.9

	// FallbackAnswer is returned by Generate when the provider call fails.
	FallbackAnswer = "Kechirasiz, texnik muammo tufayli hozir javob berolmayman. Iltimos, keyinroq urinib ko'ring."

	connectionCheckPrompt    = "Salom"
	connectionCheckSystem    = "Test uchun 'Salom' deb javob bering."
	connectionCheckMaxTokens = 16
)

// Completer runs one completion request. *provider.Registry and every
// provider backend satisfy it.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error)
}

// Options configures the completion request. Zero values select defaults.
type Options struct {
	// Model is a "provider/model" ref for a registry, or a bare model name for
	// a single backend. Empty uses the registry default.
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	// Timeout bounds a single Complete call. Zero means no extra deadline.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.TopP <= 0 {
		o.TopP = DefaultTopP
	}
	return o
}

// Client turns a question and its retrieved context into an answer.
type Client struct {
	backend Completer
	opts    Options
}

// New creates a Client over backend.
func New(backend Completer, opts Options) *Client {
	return &Client{backend: backend, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// BuildUserMessage formats the user turn: the question, then a numbered list
// of context documents when any are given.
func BuildUserMessage(question string, contextDocuments []string) string {
	var sb strings.Builder
	sb.WriteString("Savol: ")
	sb.WriteString(question)
	if len(contextDocuments) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\nKontekst ma'lumotlari:\n")
	for i, doc := range contextDocuments {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(doc)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Complete sends exactly one system and one user message and returns the
// generated text.
func (c *Client) Complete(ctx context.Context, question string, contextDocuments []string, systemPrompt string) (string, error) {
	req := provider.CompletionRequest{
		Model:        c.opts.Model,
		SystemPrompt: systemPrompt,
		Messages: []provider.Message{
			{Role: provider.MessageRoleUser, Content: BuildUserMessage(question, contextDocuments)},
		},
		Options: provider.CompletionOptions{
			MaxTokens:   c.opts.MaxTokens,
			Temperature: c.opts.Temperature,
			TopP:        c.opts.TopP,
		},
	}
	return c.do(ctx, req)
}

// Generate is Complete with the failure policy applied: any error is logged
// and replaced by FallbackAnswer.
func (c *Client) Generate(ctx context.Context, question string, contextDocuments []string, systemPrompt string) string {
	text, err := c.Complete(ctx, question, contextDocuments, systemPrompt)
	if err != nil {
		slog.Error("completion failed, returning fallback answer",
			"code", ragerr.CodeOf(err),
			"error", err,
		)
		return FallbackAnswer
	}
	return text
}

// CheckConnection sends a short greeting and reports whether any answer came back.
func (c *Client) CheckConnection(ctx context.Context) bool {
	req := provider.CompletionRequest{
		Model:        c.opts.Model,
		SystemPrompt: connectionCheckSystem,
		Messages: []provider.Message{
			{Role: provider.MessageRoleUser, Content: connectionCheckPrompt},
		},
		Options: provider.CompletionOptions{MaxTokens: connectionCheckMaxTokens},
	}
	if _, err := c.do(ctx, req); err != nil {
		slog.Warn("LLM connection check failed", "error", err)
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if c.backend == nil {
		return "", ragerr.New(ragerr.CodeProviderNoDefault, "no completion backend configured")
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.backend.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ragerr.New(ragerr.CodeProviderResponseInvalid, "empty completion response")
	}
	slog.Debug("completion done",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}
