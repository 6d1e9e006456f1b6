// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"errors"
	"sync"

	"github.com/sigil-dev/ragbot/internal/provider"
)

// mockProviderBase provides a reusable base implementation of provider.Provider
// for use in tests. Embed this in test-specific mocks and override methods as needed.
type mockProviderBase struct {
	name      string
	available bool

	mu       sync.Mutex
	requests []provider.CompletionRequest
}

func newMockProviderBase(name string, available bool) *mockProviderBase {
	return &mockProviderBase{
		name:      name,
		available: available,
	}
}

func (m *mockProviderBase) Name() string {
	return m.name
}

func (m *mockProviderBase) Available(_ context.Context) bool {
	return m.available
}

func (m *mockProviderBase) Complete(_ context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return &provider.CompletionResponse{
		Text:     "hello from " + m.name,
		Model:    req.Model,
		Provider: m.name,
		Usage:    provider.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (m *mockProviderBase) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CompletionRequest(nil), m.requests...)
}

func (m *mockProviderBase) Close() error {
	return nil
}

// mockProviderWithHealth extends mockProviderBase with health tracking
// and an optional failing Complete.
type mockProviderWithHealth struct {
	*mockProviderBase
	healthTracker *provider.HealthTracker
	fail          bool
}

func (m *mockProviderWithHealth) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if m.fail {
		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()
		return nil, errors.New(m.name + " exploded")
	}
	return m.mockProviderBase.Complete(ctx, req)
}

func (m *mockProviderWithHealth) RecordFailure() {
	m.healthTracker.RecordFailure()
}

func (m *mockProviderWithHealth) RecordSuccess() {
	m.healthTracker.RecordSuccess()
}

func (m *mockProviderWithHealth) HealthMetrics() provider.HealthMetrics {
	return m.healthTracker.HealthMetrics()
}

func (m *mockProviderWithHealth) Available(_ context.Context) bool {
	return m.healthTracker.IsHealthy()
}
