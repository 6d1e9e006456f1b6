// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sigil-dev/ragbot/internal/secrets"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/require"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // account -> value (service is always "ragbot")
}

func newMockSecretStore(accounts ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, a := range accounts {
		m.data[a] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Set(_, account, value string) error {
	m.data[account] = value
	return nil
}

func (m *mockSecretStore) Get(_, account string) (string, error) {
	v, ok := m.data[account]
	if !ok {
		return "", ragerr.Errorf(ragerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, account string) error {
	if _, ok := m.data[account]; !ok {
		return ragerr.Errorf(ragerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, account)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	accounts := make([]string, 0, len(m.data))
	for a := range m.data {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	return accounts, nil
}

// useSecretStore swaps the CLI's secret store for the duration of the test.
func useSecretStore(t *testing.T, store secrets.Store) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = old })
}

// testEnv is an isolated home, data directory and config file.
type testEnv struct {
	home    string
	dataDir string
	docsDir string
	cfgPath string
}

// newTestEnv writes a config using the offline hashing embedder and the
// sqlite-vec index. extra is appended verbatim to the YAML.
func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()
	env := testEnv{home: t.TempDir()}
	env.dataDir = filepath.Join(env.home, "data")
	env.docsDir = filepath.Join(env.home, "docs")
	env.cfgPath = filepath.Join(env.home, "ragbot.yaml")
	t.Setenv("HOME", env.home)
	useSecretStore(t, newMockSecretStore())

	require.NoError(t, os.MkdirAll(env.docsDir, 0o755))
	cfg := strings.Join([]string{
		"data_dir: " + env.dataDir,
		"logging:",
		"  level: error",
		"embedding:",
		"  provider: hashing",
		"  dimensions: 64",
		"index:",
		"  backend: sqlite-vec",
		"  collection: test",
		"rag:",
		"  chunk_size: 50",
		"  chunk_overlap: 10",
		"  similarity_threshold: 0.9",
		"  k: 3",
		"documents:",
		"  dir: " + env.docsDir,
		"",
	}, "\n") + extra
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))
	return env
}

// writeDoc creates a file under the env's documents directory.
func (e testEnv) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.docsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the root command with --config set and returns its stdout.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCmd(t, context.Background(), "", append([]string{"--config", e.cfgPath}, args...)...)
}

func runCmd(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// newChatServer fakes an OpenAI-compatible chat completions endpoint that
// always answers with reply.
func newChatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "llama-3.3-70b-versatile",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "` + reply + `"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// groqConfig points the groq provider at srv.
func groqConfig(srv *httptest.Server) string {
	return strings.Join([]string{
		"providers:",
		"  groq:",
		"    api_key: test-key",
		"    endpoint: " + srv.URL,
		"completion:",
		"  model: groq/llama-3.3-70b-versatile",
		"",
	}, "\n")
}
