// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/sigil-dev/ragbot/pkg/health"
)

func (s *Server) registerQueryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/api/v1/ask",
		Summary:     "Answer a question from the indexed documents",
		Tags:        []string{"query"},
	}, s.handleAsk)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Nearest chunks for a query",
		Tags:        []string{"query"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "index-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Index statistics",
		Tags:        []string{"index"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "connection-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/connection",
		Summary:     "LLM and index connectivity",
		Tags:        []string{"system"},
	}, s.handleConnection)

	huma.Register(s.api, huma.Operation{
		OperationID:   "add-text",
		Method:        http.MethodPost,
		Path:          "/api/v1/index/documents",
		Summary:       "Chunk and index raw text",
		Tags:          []string{"index"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddText)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-index",
		Method:      http.MethodDelete,
		Path:        "/api/v1/index",
		Summary:     "Delete every indexed chunk",
		Tags:        []string{"index"},
	}, s.handleClear)
}

func (s *Server) registerProviderRoutes() {
	if s.services.providers == nil {
		return
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers",
		Summary:     "LLM provider health",
		Tags:        []string{"system"},
	}, s.handleProviders)
}

// --- Request/Response types for huma ---

// Source is one retrieved chunk.
type Source struct {
	ID       string         `json:"id" doc:"Chunk id"`
	Text     string         `json:"text" doc:"Chunk text"`
	Metadata map[string]any `json:"metadata" doc:"Chunk metadata"`
	Distance float64        `json:"distance" doc:"Cosine distance, lower is closer"`
}

func toSources(results []index.SearchResult) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{ID: r.ID, Text: r.Document, Metadata: r.Metadata, Distance: r.Distance}
	}
	return out
}

type askInput struct {
	Body struct {
		Question  string   `json:"question" minLength:"1" maxLength:"4000" doc:"Question text"`
		Threshold *float64 `json:"threshold,omitempty" minimum:"0" maximum:"2" doc:"Maximum cosine distance; omitted uses the configured value"`
		K         int      `json:"k,omitempty" minimum:"0" maximum:"50" doc:"Chunks to retrieve; 0 uses the configured value"`
	}
}

type askOutput struct {
	Body struct {
		Answer  string   `json:"answer" doc:"Generated answer, refusal or apology"`
		Sources []Source `json:"sources" doc:"Chunks the answer was grounded on"`
		Refused bool     `json:"refused" doc:"No chunk passed the distance threshold"`
		Failed  bool     `json:"failed" doc:"The answer path hit an internal error"`
	}
}

type searchInput struct {
	Body struct {
		Query string `json:"query" minLength:"1" doc:"Search text"`
		K     int    `json:"k,omitempty" minimum:"0" maximum:"50" doc:"Result count; 0 uses the configured value"`
	}
}

type searchOutput struct {
	Body struct {
		Results []Source `json:"results"`
	}
}

type statsOutput struct {
	Body rag.Stats
}

type connectionOutput struct {
	Body rag.ConnectionStatus
}

type addTextInput struct {
	Body struct {
		Text     string         `json:"text" minLength:"1" doc:"Raw text to chunk and index"`
		Metadata map[string]any `json:"metadata,omitempty" doc:"Metadata stored on every chunk"`
	}
}

type addTextOutput struct {
	Body struct {
		IDs []string `json:"ids" doc:"Ids of the created chunks"`
	}
}

type clearOutput struct {
	Body struct {
		Status string `json:"status" example:"cleared"`
	}
}

// ProviderHealth is the REST view of one provider.
type ProviderHealth struct {
	Name      string         `json:"name"`
	Available bool           `json:"available"`
	Health    health.Metrics `json:"health"`
}

type providersOutput struct {
	Body struct {
		Providers []ProviderHealth `json:"providers"`
	}
}

// --- Handlers ---

func (s *Server) handleAsk(ctx context.Context, input *askInput) (*askOutput, error) {
	ans := s.services.query.Ask(ctx, input.Body.Question, rag.AskOptions{
		Threshold: input.Body.Threshold,
		K:         input.Body.K,
	})
	out := &askOutput{}
	out.Body.Answer = ans.Text
	out.Body.Sources = toSources(ans.Sources)
	out.Body.Refused = ans.Refused
	out.Body.Failed = ans.Failed
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	k := input.Body.K
	if k == 0 {
		k = rag.DefaultK
	}
	out := &searchOutput{}
	out.Body.Results = toSources(s.services.query.SearchDocuments(ctx, input.Body.Query, k))
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	return &statsOutput{Body: s.services.query.Stats(ctx)}, nil
}

func (s *Server) handleConnection(ctx context.Context, _ *struct{}) (*connectionOutput, error) {
	return &connectionOutput{Body: s.services.query.TestConnection(ctx)}, nil
}

func (s *Server) handleAddText(ctx context.Context, input *addTextInput) (*addTextOutput, error) {
	ids, err := s.services.query.AddDocument(ctx, input.Body.Text, input.Body.Metadata)
	if err != nil {
		return nil, apiError("adding text", err)
	}
	out := &addTextOutput{}
	out.Body.IDs = ids
	return out, nil
}

func (s *Server) handleClear(ctx context.Context, _ *struct{}) (*clearOutput, error) {
	if err := s.services.query.Clear(ctx); err != nil {
		return nil, apiError("clearing index", err)
	}
	out := &clearOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

func (s *Server) handleProviders(ctx context.Context, _ *struct{}) (*providersOutput, error) {
	statuses := s.services.providers.Statuses(ctx)
	out := &providersOutput{}
	out.Body.Providers = make([]ProviderHealth, len(statuses))
	for i, st := range statuses {
		out.Body.Providers[i] = ProviderHealth{Name: st.Name, Available: st.Available, Health: st.Health}
	}
	return out, nil
}
