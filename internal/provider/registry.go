// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Registry manages provider registration, lookup, and routing with
// failover.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string   // "provider/model" format
	failover   []string // ordered list of "provider/model" refs
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, ragerr.New(
			ragerr.CodeProviderNotFound,
			"provider not found: "+name,
			ragerr.FieldProvider(name),
		)
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the default "provider/model" reference. Returns an error
// if the provider portion of the ref is not registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provName, _ := parseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return ragerr.New(
			ragerr.CodeProviderNotFound,
			"SetDefault: provider not registered: "+provName,
			ragerr.FieldProvider(provName),
		)
	}
	r.defaultRef = ref
	return nil
}

// DefaultRef returns the default "provider/model" reference.
func (r *Registry) DefaultRef() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRef
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
// Returns an error if any provider portion of the refs is not registered.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		provName, _ := parseRef(ref)
		if _, ok := r.providers[provName]; !ok {
			return ragerr.New(
				ragerr.CodeProviderNotFound,
				"SetFailover: provider not registered: "+provName,
				ragerr.FieldProvider(provName),
			)
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// MaxAttempts returns 1 (primary) + len(failover chain).
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route selects a provider for modelRef ("provider/model"). An empty ref
// uses the default. Providers named in exclude and unavailable providers
// are skipped in favour of the failover chain.
func (r *Registry) Route(ctx context.Context, modelRef string, exclude []string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRef(modelRef)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return nil, "", ragerr.New(
			ragerr.CodeProviderNoDefault,
			"no default provider configured",
		)
	}

	provName, _ := parseRef(ref)
	if !slices.Contains(exclude, provName) {
		p, model, err := r.tryRef(ctx, ref)
		if err == nil {
			return p, model, nil
		}
	}

	for _, fallback := range r.failover {
		fbProv, _ := parseRef(fallback)
		if slices.Contains(exclude, fbProv) {
			continue
		}
		p, model, err := r.tryRef(ctx, fallback)
		if err == nil {
			return p, model, nil
		}
	}

	return nil, "", ragerr.New(
		ragerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found",
	)
}

// Complete routes req and walks the failover chain until one provider
// answers. req.Model may be empty (default) or a "provider/model" ref.
func (r *Registry) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var (
		tried   []string
		lastErr error
	)
	ref := req.Model
	for attempt := 0; attempt < r.MaxAttempts(); attempt++ {
		p, model, err := r.Route(ctx, ref, tried)
		if err != nil {
			if lastErr != nil {
				return nil, ragerr.Wrap(lastErr, ragerr.CodeProviderAllUnavailable, "all providers failed")
			}
			return nil, err
		}

		routed := req
		routed.Model = model
		resp, err := p.Complete(ctx, routed)
		if err == nil {
			if hr, ok := p.(HealthReporter); ok {
				hr.RecordSuccess()
			}
			return resp, nil
		}

		if hr, ok := p.(HealthReporter); ok {
			hr.RecordFailure()
		}
		slog.Warn("provider completion failed", "provider", p.Name(), "model", model,
			"attempt", attempt+1, "error", err)
		tried = append(tried, p.Name())
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Statuses reports availability and health of every registered provider.
func (r *Registry) Statuses(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.providers))
	for name, p := range r.providers {
		st := ProviderStatus{Name: name, Available: p.Available(ctx)}
		if hm, ok := p.(interface{ HealthMetrics() HealthMetrics }); ok {
			st.Health = hm.HealthMetrics()
		} else {
			st.Health.Available = st.Available
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return ragerr.Join(errs...)
}

// resolveRef determines which "provider/model" ref to use.
// Caller must hold r.mu (at least RLock).
func (r *Registry) resolveRef(modelRef string) (string, error) {
	if modelRef != "" && modelRef != "default" {
		if !strings.Contains(modelRef, "/") {
			return "", ragerr.Errorf(
				ragerr.CodeProviderInvalidModelRef,
				"model name %q must use provider/model format", modelRef,
			)
		}
		return modelRef, nil
	}
	return r.defaultRef, nil
}

// tryRef parses a "provider/model" ref, looks up the provider, and checks
// availability. Caller must hold r.mu (at least RLock).
func (r *Registry) tryRef(ctx context.Context, ref string) (Provider, string, error) {
	providerName, model := parseRef(ref)

	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", ragerr.New(
			ragerr.CodeProviderNotFound,
			"provider not found: "+providerName,
			ragerr.FieldProvider(providerName),
		)
	}

	if !p.Available(ctx) {
		return nil, "", ragerr.New(
			ragerr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName,
			ragerr.FieldProvider(providerName),
		)
	}

	return p, model, nil
}

// ParseRef splits a "provider/model" reference on the first "/".
func ParseRef(ref string) (providerName, model string) {
	return parseRef(ref)
}

func parseRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
