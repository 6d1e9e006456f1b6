// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/ragbot/internal/chunker"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/rag"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capitalFact = "paris is the capital of france."

func TestIngestCommand(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeDoc(t, "capital.txt", capitalFact)
	env.writeDoc(t, "notes.txt", "ragbot answers questions from documents.")

	out, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 file(s)")
	assert.Contains(t, out, "Collection: test")
	assert.Contains(t, out, "Sample search")

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Chunks:\s+[1-9]`, out)

	out, err = env.run(t, "stats", "--tree")
	require.NoError(t, err)
	assert.Contains(t, out, "capital.txt (")
	assert.Contains(t, out, "notes.txt (")
}

func TestIngestCommand_MissingDirectory(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "ingest", env.docsDir+"/missing")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeRAGIngestFailure) || ragerr.IsNotFound(err))
}

func TestSearchCommand(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeDoc(t, "capital.txt", capitalFact)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	out, err := env.run(t, "search", "-k", "1", capitalFact)
	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "capital.txt")
	assert.NotContains(t, out, "2. ")
}

func TestSearchCommand_EmptyIndex(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.run(t, "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "no results")
}

func TestAskCommand(t *testing.T) {
	chat := newChatServer(t, "Paris")
	env := newTestEnv(t, groqConfig(chat))
	env.writeDoc(t, "capital.txt", capitalFact)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	out, err := env.run(t, "ask", "--sources", capitalFact)
	require.NoError(t, err)
	assert.Contains(t, out, "Paris")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "capital.txt")
}

func TestAskCommand_ZeroThresholdRefuses(t *testing.T) {
	chat := newChatServer(t, "Paris")
	env := newTestEnv(t, groqConfig(chat))
	env.writeDoc(t, "capital.txt", capitalFact)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	out, err := env.run(t, "ask", "--threshold", "0", "which city is the capital of france")
	require.NoError(t, err)
	assert.Contains(t, out, rag.RefusalAnswer)
	assert.NotContains(t, out, "Paris")
}

func TestClearCommand(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeDoc(t, "capital.txt", capitalFact)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	_, err = runCmd(t, context.Background(), "n\n", "--config", env.cfgPath, "clear")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeCLIInputInvalid))

	out, err := env.run(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Index cleared.")

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Chunks:\s+0`, out)
}

var createdID = regexp.MustCompile(`Created document (\S+) `)

func TestDocumentsLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	path := env.writeDoc(t, "capital.txt", capitalFact)

	out, err := env.run(t, "documents", "add", path, "--description", "geography", "--process")
	require.NoError(t, err)
	m := createdID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]
	assert.Contains(t, out, "(capital)")

	out, err = env.run(t, "documents", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Description: geography")
	assert.Contains(t, out, "Status:      processed")
	assert.Contains(t, out, "Processed:   true")

	out, err = env.run(t, "docs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "capital")
	assert.Contains(t, out, "STATUS")

	out, err = env.run(t, "documents", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents.")

	out, err = env.run(t, "documents", "summary")
	require.NoError(t, err)
	assert.Regexp(t, `Processed:\s+1`, out)

	out, err = env.run(t, "documents", "process", id)
	require.NoError(t, err)
	assert.Contains(t, out, "already processed")

	out, err = env.run(t, "documents", "unprocess", id)
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `Chunks:\s+0`, out)

	out, err = env.run(t, "documents", "sync", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed:   false")

	out, err = env.run(t, "documents", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted document "+id)

	_, err = env.run(t, "documents", "show", id)
	require.Error(t, err)
	assert.True(t, ragerr.IsNotFound(err))
}

func TestDocumentsProcess_MissingID(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.run(t, "documents", "process", "missing")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeCLIRequestFailure))
	assert.Contains(t, out, "failed")
}

func TestDocumentsAdd_MissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "documents", "add", env.docsDir+"/nope.pdf")
	require.Error(t, err)
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := runCmd(t, ctx, "", "--config", env.cfgPath, "serve", "--listen", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "serving on 127.0.0.1:0")
}

func TestServeCommand_TelegramWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := runCmd(t, ctx, "", "--config", env.cfgPath, "serve", "--listen", "127.0.0.1:0", "--telegram")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeChannelTokenInvalid))
}

func TestSourceTree(t *testing.T) {
	chunks := []index.SearchResult{
		{ID: "1", Metadata: map[string]any{chunker.MetaFilePath: "/docs/a.txt"}},
		{ID: "2", Metadata: map[string]any{chunker.MetaFilePath: "/docs/a.txt"}},
		{ID: "3", Metadata: map[string]any{chunker.MetaFilePath: "/docs/sub/b.pdf"}},
		{ID: "4"},
	}

	tree := sourceTree("docs", chunks)
	assert.True(t, strings.HasPrefix(tree, "docs"))
	assert.Contains(t, tree, "/docs")
	assert.Contains(t, tree, "a.txt (2)")
	assert.Contains(t, tree, "b.pdf (1)")
	assert.Contains(t, tree, "(text) (1)")
	assert.Less(t, strings.Index(tree, "a.txt"), strings.Index(tree, "b.pdf"))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		w := new(bytes.Buffer)
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), w, "Sure?"), "input %q", tt.input)
		assert.Equal(t, "Sure? [y/N]: ", w.String())
	}
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t\tc", 10))
	assert.Equal(t, "abc…", snippet("abcdef", 3))
	assert.Equal(t, "", snippet("", 3))
}

func TestPrintResults(t *testing.T) {
	w := new(bytes.Buffer)
	printResults(w, nil)
	assert.Equal(t, "  no results\n", w.String())

	w.Reset()
	printResults(w, []index.SearchResult{
		{ID: "c1", Document: "hello world", Distance: 0.25, Metadata: map[string]any{chunker.MetaFileName: "a.txt"}},
		{ID: "c2", Document: "bye"},
	})
	out := w.String()
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "0.2500")
	assert.Contains(t, out, "2. ")
	assert.Contains(t, out, "c2")
}
