// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (RAGBOT_RAG_K=3).
const EnvPrefix = "RAGBOT"

// Config is the top-level ragbot configuration.
type Config struct {
	DataDir    string                    `mapstructure:"data_dir"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Server     ServerConfig              `mapstructure:"server"`
	Index      IndexConfig               `mapstructure:"index"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Completion CompletionConfig          `mapstructure:"completion"`
	RAG        RAGConfig                 `mapstructure:"rag"`
	Documents  DocumentsConfig           `mapstructure:"documents"`
	Telegram   TelegramConfig            `mapstructure:"telegram"`
}

// LoggingConfig controls the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen       string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets the per-client request budget for query endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// IndexConfig selects and configures the embedding index backend.
type IndexConfig struct {
	Backend    string       `mapstructure:"backend"`
	Path       string       `mapstructure:"path"`
	Collection string       `mapstructure:"collection"`
	Qdrant     QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig holds the connection settings for the qdrant backend.
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
	CacheSize  int    `mapstructure:"cache_size"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// CompletionConfig controls the completion request sent for every answer.
type CompletionConfig struct {
	Model       string        `mapstructure:"model"`
	Failover    []string      `mapstructure:"failover"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RAGConfig controls chunking and the retrieval gate.
type RAGConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	K                   int     `mapstructure:"k"`
	SystemPrompt        string  `mapstructure:"system_prompt"`
}

// DocumentsConfig controls the document lifecycle manager.
type DocumentsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// TelegramConfig controls the Telegram front end.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	RatePerChat float64       `mapstructure:"rate_per_chat"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.rate_limit.requests_per_second", 2.0)
	v.SetDefault("server.rate_limit.burst", 5)

	v.SetDefault("index.backend", "sqlite-vec")
	v.SetDefault("index.collection", "documents")
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.endpoint", "http://localhost:11434/v1")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.cache_size", 1024)

	v.SetDefault("completion.model", "groq/llama-3.3-70b-versatile")
	v.SetDefault("completion.max_tokens", 1024)
	v.SetDefault("completion.temperature", 0.3)
	v.SetDefault("completion.top_p", 0.9)
	v.SetDefault("completion.timeout", 60*time.Second)

	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.similarity_threshold", 0.7)
	v.SetDefault("rag.k", 5)

	v.SetDefault("documents.dir", "documents")
	v.SetDefault("documents.watch", false)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.poll_timeout", 30*time.Second)
	v.SetDefault("telegram.rate_per_chat", 0.5)
}

// SetupEnv enables RAGBOT_* environment overrides on v.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ragerr.Errorf(ragerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix RAGBOT_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors.
// It returns all validation errors found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateCompletion()...)
	errs = append(errs, c.validateRAG()...)
	errs = append(errs, c.validateTelegram()...)

	return errs
}

func invalid(format string, args ...any) error {
	return ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, invalid("server.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	}

	port, err := strconv.Atoi(portStr)
	switch {
	case err != nil:
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	case port < 1 || port > 65535:
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", c.Server.RateLimit.RequestsPerSecond))
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be positive when a rate is set, got %d", c.Server.RateLimit.Burst))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	switch c.Index.Backend {
	case "sqlite-vec":
	case "qdrant":
		if c.Index.Qdrant.Host == "" {
			errs = append(errs, invalid("index.qdrant.host must not be empty when index.backend is qdrant"))
		}
		if c.Index.Qdrant.Port < 1 || c.Index.Qdrant.Port > 65535 {
			errs = append(errs, invalid("index.qdrant.port must be between 1 and 65535, got %d", c.Index.Qdrant.Port))
		}
	default:
		errs = append(errs, invalid("index.backend must be one of [sqlite-vec, qdrant], got %q", c.Index.Backend))
	}

	if c.Index.Collection == "" {
		errs = append(errs, invalid("index.collection must not be empty"))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	switch c.Embedding.Provider {
	case "hashing":
	case "openai":
		if c.Embedding.Model == "" {
			errs = append(errs, invalid("embedding.model must not be empty"))
		}
	default:
		errs = append(errs, invalid("embedding.provider must be one of [openai, hashing], got %q", c.Embedding.Provider))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.CacheSize < 0 {
		errs = append(errs, invalid("embedding.cache_size must not be negative, got %d", c.Embedding.CacheSize))
	}

	return errs
}

func (c *Config) validateCompletion() []error {
	var errs []error

	refs := append([]string{c.Completion.Model}, c.Completion.Failover...)
	for i, ref := range refs {
		field := "completion.model"
		if i > 0 {
			field = "completion.failover[" + strconv.Itoa(i-1) + "]"
		}
		if !strings.Contains(ref, "/") {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			continue
		}
		// A nil providers map means defaults only, which is valid on a fresh install.
		if c.Providers != nil {
			name := providerFromModel(ref)
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", field, ref, name))
			}
		}
	}

	if c.Completion.MaxTokens <= 0 {
		errs = append(errs, invalid("completion.max_tokens must be greater than 0, got %d", c.Completion.MaxTokens))
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		errs = append(errs, invalid("completion.temperature must be between 0 and 2, got %g", c.Completion.Temperature))
	}
	if c.Completion.TopP <= 0 || c.Completion.TopP > 1 {
		errs = append(errs, invalid("completion.top_p must be in (0, 1], got %g", c.Completion.TopP))
	}

	return errs
}

func (c *Config) validateRAG() []error {
	var errs []error

	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, invalid("rag.chunk_size must be greater than 0, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 {
		errs = append(errs, invalid("rag.chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap))
	}
	// The window advances by chunk_size - chunk_overlap words; zero or less never terminates.
	if c.RAG.ChunkSize > 0 && c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, invalid("rag.chunk_overlap (%d) must be less than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 2 {
		errs = append(errs, invalid("rag.similarity_threshold is a cosine distance and must be between 0 and 2, got %g", c.RAG.SimilarityThreshold))
	}
	if c.RAG.K <= 0 {
		errs = append(errs, invalid("rag.k must be greater than 0, got %d", c.RAG.K))
	}

	return errs
}

func (c *Config) validateTelegram() []error {
	var errs []error

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		errs = append(errs, invalid("telegram.token must be set when telegram.enabled is true"))
	}
	if c.Telegram.RatePerChat < 0 {
		errs = append(errs, invalid("telegram.rate_per_chat must not be negative, got %g", c.Telegram.RatePerChat))
	}

	return errs
}

// providerFromModel extracts the provider prefix from a "provider/model" string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
