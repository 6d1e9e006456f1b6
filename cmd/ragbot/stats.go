// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sigil-dev/ragbot/internal/chunker"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/rag"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			rt, err := Wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			out := cmd.OutOrStdout()
			st := rt.RAG.Stats(cmd.Context())
			printStats(out, st)

			if tree, _ := cmd.Flags().GetBool("tree"); !tree || st.TotalDocuments == 0 {
				return nil
			}
			limit, _ := cmd.Flags().GetInt("limit")
			chunks, err := rt.Index.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprint(out, sourceTree(st.CollectionName, chunks))
			return nil
		},
	}

	cmd.Flags().Bool("tree", false, "print a tree of indexed source files")
	cmd.Flags().Int("limit", 10000, "maximum number of chunks to scan for --tree")

	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every chunk from the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete every indexed chunk?") {
				return ragerr.New(ragerr.CodeCLIInputInvalid, "aborted")
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			rt, err := Wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.RAG.Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func printStats(w io.Writer, st rag.Stats) {
	_, _ = fmt.Fprintf(w, "  Collection: %s\n", st.CollectionName)
	_, _ = fmt.Fprintf(w, "  Chunks:     %d\n", st.TotalDocuments)
	_, _ = fmt.Fprintf(w, "  Status:     %s\n", st.Status)
}

// sourceTree groups chunks by source directory and file.
func sourceTree(collection string, chunks []index.SearchResult) string {
	counts := make(map[string]int)
	for _, c := range chunks {
		path, _ := c.Metadata[chunker.MetaFilePath].(string)
		if path == "" {
			path = "(text)"
		}
		counts[path]++
	}

	byDir := make(map[string][]string)
	for path := range counts {
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	tree := treeprint.New()
	tree.SetValue(collection)
	for _, dir := range dirs {
		branch := tree.AddBranch(dir)
		files := byDir[dir]
		sort.Strings(files)
		for _, f := range files {
			branch.AddNode(fmt.Sprintf("%s (%d)", filepath.Base(f), counts[f]))
		}
	}
	return tree.String()
}

// confirm asks a yes/no question on w and reads the answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	_, _ = fmt.Fprintf(w, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
