// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
)

// Provider is the core interface for LLM completion backends.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Close() error
}

// HealthReporter is implemented by providers that track their own health.
// The registry reports outcomes so failing providers cool down.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
}

// CompletionRequest is a single non-streaming completion call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Options      CompletionOptions
}

// CompletionOptions contains sampling parameters. Zero values leave the
// provider default in place.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Message is one conversation turn.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// CompletionResponse carries the generated text.
type CompletionResponse struct {
	Text     string
	Model    string
	Provider string
	Usage    Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Name      string
	Available bool
	Health    HealthMetrics
}
