// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rag ties chunking, the embedding index and the completion client
// into the ingest and answer pipeline.
package rag

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/sigil-dev/ragbot/internal/chunker"
	"github.com/sigil-dev/ragbot/internal/index"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

const (
	DefaultThreshold = 0.7
	DefaultK         = 5

	// DefaultSystemPrompt asks for grounded Uzbek answers and names the refusal phrase.
	DefaultSystemPrompt = "Siz o'zbek tilida javob beradigan yordamchi assistentsiz. \n" +
		"Berilgan kontekst ma'lumotlari asosida aniq, foydali va tushunarli javoblar bering. \n" +
		"Kontekstda mavjud bo'lgan ma'lumotlarni ishlatib javob yarating.\n" +
		"Agar savol kontekstdagi ma'lumotlarga mos kelmasa, \"Kechirasiz, sizning savolingizga javob berolmayman\" deb javob bering."

	// RefusalAnswer is returned when no indexed chunk is close enough.
	RefusalAnswer = "Kechirasiz, sizning savolingizga javob berolmayman. Boshqa savol bering."

	// ErrorAnswer is returned when the answer path fails unexpectedly.
	ErrorAnswer = "Texnik muammo tufayli hozir javob berolmayman. Iltimos, keyinroq urinib ko'ring."
)

// Index status values reported by Stats.
const (
	StatusEmpty  = "empty"
	StatusActive = "active"
	StatusError  = "error"
)

// VectorIndex is the subset of *index.Index the orchestrator needs.
type VectorIndex interface {
	Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) ([]string, error)
	Search(ctx context.Context, query string, k int) ([]index.SearchResult, error)
	Delete(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Collection() string
}

// Generator produces answers from retrieved context. *completion.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, question string, contextDocuments []string, systemPrompt string) string
	CheckConnection(ctx context.Context) bool
}

// Deps are the collaborators of a Service.
type Deps struct {
	Index     VectorIndex
	Generator Generator
	Chunker   *chunker.Chunker
}

// Options tunes retrieval. Zero values select the package defaults.
type Options struct {
	// Threshold is the maximum cosine distance of a context chunk. Nil
	// selects DefaultThreshold; zero is a valid literal gate.
	Threshold    *float64
	K            int
	SystemPrompt string
}

// Service is the RAG orchestrator. It is safe for concurrent use.
type Service struct {
	index     VectorIndex
	generator Generator
	chunker   *chunker.Chunker
	opts      Options
}

// New builds a Service. A nil chunker gets the default window size.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Index == nil {
		return nil, ragerr.New(ragerr.CodeRAGInputInvalid, "rag: index is required")
	}
	if deps.Generator == nil {
		return nil, ragerr.New(ragerr.CodeRAGInputInvalid, "rag: generator is required")
	}
	ch := deps.Chunker
	if ch == nil {
		var err error
		ch, err = chunker.New(chunker.DefaultSize, chunker.DefaultOverlap, nil)
		if err != nil {
			return nil, err
		}
	}
	if opts.Threshold == nil {
		opts.Threshold = Threshold(DefaultThreshold)
	}
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}

	slog.Info("rag service ready",
		"collection", deps.Index.Collection(),
		"threshold", *opts.Threshold,
		"k", opts.K,
	)
	return &Service{index: deps.Index, generator: deps.Generator, chunker: ch, opts: opts}, nil
}

// Options returns the effective retrieval options.
func (s *Service) Options() Options { return s.opts }

// Chunker returns the chunker used for ingestion.
func (s *Service) Chunker() *chunker.Chunker { return s.chunker }

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	Files  int      `json:"files"`
	Chunks int      `json:"chunks"`
	IDs    []string `json:"ids"`
}

// IngestDirectory chunks every supported file below root and indexes all
// chunks in one call.
func (s *Service) IngestDirectory(ctx context.Context, root string) (IngestReport, error) {
	chunks, err := s.chunker.ChunkDirectory(ctx, root)
	if err != nil {
		return IngestReport{}, ragerr.Wrap(err, ragerr.CodeRAGIngestFailure, "chunking directory", ragerr.FieldPath(root))
	}
	if len(chunks) == 0 {
		slog.Warn("no documents to ingest", "path", root)
		return IngestReport{}, ragerr.New(ragerr.CodeRAGIngestNoChunks, "no chunks found", ragerr.FieldPath(root))
	}

	texts, metas := split(chunks, nil)
	ids, err := s.index.Add(ctx, texts, metas, nil)
	if err != nil {
		return IngestReport{}, ragerr.Wrap(err, ragerr.CodeRAGIngestFailure, "indexing chunks", ragerr.FieldPath(root))
	}

	files := make(map[string]struct{})
	for _, c := range chunks {
		if p, ok := c.Metadata[chunker.MetaFilePath].(string); ok {
			files[p] = struct{}{}
		}
	}
	report := IngestReport{Files: len(files), Chunks: len(chunks), IDs: ids}
	slog.Info("directory ingested", "path", root, "files", report.Files, "chunks", report.Chunks)
	return report, nil
}

// IngestFile indexes one file. extra is merged into every chunk's metadata.
func (s *Service) IngestFile(ctx context.Context, path string, extra map[string]any) ([]string, error) {
	chunks, err := s.chunker.ChunkFile(ctx, path)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeRAGIngestFailure, "chunking file", ragerr.FieldPath(path))
	}
	if len(chunks) == 0 {
		return nil, ragerr.New(ragerr.CodeRAGIngestNoChunks, "no chunks found", ragerr.FieldPath(path))
	}

	texts, metas := split(chunks, extra)
	ids, err := s.index.Add(ctx, texts, metas, nil)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeRAGIngestFailure, "indexing chunks", ragerr.FieldPath(path))
	}
	slog.Info("file ingested", "path", path, "chunks", len(ids))
	return ids, nil
}

// RemoveChunks deletes indexed chunks by id. Unknown ids are ignored.
func (s *Service) RemoveChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.index.Delete(ctx, ids...)
}

func split(chunks []chunker.DocumentChunk, extra map[string]any) ([]string, []map[string]any) {
	texts := make([]string, len(chunks))
	metas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		meta := maps.Clone(c.Metadata)
		if meta == nil {
			meta = make(map[string]any, len(extra))
		}
		maps.Copy(meta, extra)
		metas[i] = meta
	}
	return texts, metas
}

// AskOptions overrides retrieval for one question. A nil Threshold or a
// non-positive K falls back to the service options.
type AskOptions struct {
	Threshold *float64
	K         int
}

// Threshold returns a pointer to d for use in Options and AskOptions.
func Threshold(d float64) *float64 { return &d }

// Answer is the structured result of Ask.
type Answer struct {
	Text    string               `json:"answer"`
	Sources []index.SearchResult `json:"sources"`
	// Refused is set when no chunk passed the threshold gate.
	Refused bool `json:"refused"`
	// Failed is set when the answer path hit an unexpected error.
	Failed bool `json:"failed"`
}

// Ask retrieves the k nearest chunks, keeps those whose cosine distance is
// at most the threshold, and generates an answer from them. With no
// survivors the refusal is returned without calling the generator.
func (s *Service) Ask(ctx context.Context, question string, opts AskOptions) (ans Answer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in answer path", "panic", r)
			ans = Answer{Text: ErrorAnswer, Failed: true}
		}
	}()

	threshold := *s.opts.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	k := opts.K
	if k <= 0 {
		k = s.opts.K
	}

	results := s.SearchDocuments(ctx, question, k)

	var (
		sources  []index.SearchResult
		contexts []string
	)
	for _, r := range results {
		if r.Distance <= threshold {
			sources = append(sources, r)
			contexts = append(contexts, r.Document)
		}
	}
	if len(contexts) == 0 {
		slog.Info("no context within threshold", "threshold", threshold, "candidates", len(results))
		return Answer{Text: RefusalAnswer, Refused: true}
	}

	text := s.generator.Generate(ctx, question, contexts, s.opts.SystemPrompt)
	slog.Info("answer generated", "context_documents", len(contexts))
	return Answer{Text: text, Sources: sources}
}

// Answer is Ask reduced to its text. threshold is applied as given.
func (s *Service) Answer(ctx context.Context, question string, threshold float64, k int) string {
	return s.Ask(ctx, question, AskOptions{Threshold: Threshold(threshold), K: k}).Text
}

// SearchDocuments returns up to k nearest chunks. Errors are logged and
// yield an empty result.
func (s *Service) SearchDocuments(ctx context.Context, query string, k int) []index.SearchResult {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	results, err := s.index.Search(ctx, query, k)
	if err != nil {
		slog.Error("search failed", "code", ragerr.CodeOf(err), "error", err)
		return []index.SearchResult{}
	}
	return results
}

// Stats describes the index.
type Stats struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
	Status         string `json:"status"`
}

// Stats reports the chunk count and a derived status.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{CollectionName: s.index.Collection()}
	n, err := s.index.Count(ctx)
	if err != nil {
		slog.Error("counting index failed", "code", ragerr.CodeOf(err), "error", err)
		st.Status = StatusError
		return st
	}
	st.TotalDocuments = n
	st.Status = StatusActive
	if n == 0 {
		st.Status = StatusEmpty
	}
	return st
}

// Clear drops and recreates the collection. Irreversible.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.index.Reset(ctx); err != nil {
		return err
	}
	slog.Info("index cleared", "collection", s.index.Collection())
	return nil
}

// AddDocument chunks and indexes an ad hoc text. Metadata defaults to
// {source: manual}; each chunk also gets chunk_index and total_chunks.
func (s *Service) AddDocument(ctx context.Context, text string, metadata map[string]any) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ragerr.New(ragerr.CodeRAGInputInvalid, "document text is empty")
	}
	if len(metadata) == 0 {
		metadata = map[string]any{"source": "manual"}
	}

	parts, err := chunker.Chunk(text, s.chunker.Size, s.chunker.Overlap)
	if err != nil {
		return nil, err
	}
	metas := make([]map[string]any, len(parts))
	for i := range parts {
		meta := maps.Clone(metadata)
		meta[chunker.MetaChunkIndex] = i
		meta[chunker.MetaTotalChunks] = len(parts)
		metas[i] = meta
	}

	ids, err := s.index.Add(ctx, parts, metas, nil)
	if err != nil {
		return nil, err
	}
	slog.Info("document added", "chunks", len(ids))
	return ids, nil
}

// ConnectionStatus aggregates component health.
type ConnectionStatus struct {
	LLM     bool `json:"llm"`
	Index   bool `json:"index"`
	Overall bool `json:"overall"`
}

// TestConnection checks the completion provider and the index.
func (s *Service) TestConnection(ctx context.Context) ConnectionStatus {
	st := ConnectionStatus{LLM: s.generator.CheckConnection(ctx)}
	if err := s.index.Ping(ctx); err != nil {
		slog.Warn("index ping failed", "code", ragerr.CodeOf(err), "error", err)
	} else if _, err := s.index.Count(ctx); err != nil {
		slog.Warn("index count failed", "code", ragerr.CodeOf(err), "error", err)
	} else {
		st.Index = true
	}
	st.Overall = st.LLM && st.Index
	return st
}
