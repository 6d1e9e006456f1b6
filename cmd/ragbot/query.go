// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sigil-dev/ragbot/internal/chunker"
	"github.com/sigil-dev/ragbot/internal/index"
	"github.com/sigil-dev/ragbot/internal/rag"
	"github.com/spf13/cobra"
)

// snippetLen bounds the chunk text printed per search result, in runes.
const snippetLen = 160

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			rt, err := Wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			opts := rag.AskOptions{}
			if cmd.Flags().Changed("threshold") {
				threshold, _ := cmd.Flags().GetFloat64("threshold")
				opts.Threshold = rag.Threshold(threshold)
			}
			opts.K, _ = cmd.Flags().GetInt("k")
			showSources, _ := cmd.Flags().GetBool("sources")

			ans := rt.RAG.Ask(cmd.Context(), strings.Join(args, " "), opts)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, ans.Text)
			if showSources && len(ans.Sources) > 0 {
				_, _ = fmt.Fprintf(out, "\n%s\n", dimStyle.Render("Sources:"))
				printResults(out, ans.Sources)
			}
			return nil
		},
	}

	cmd.Flags().Float64("threshold", 0, "maximum cosine distance (default: rag.similarity_threshold)")
	cmd.Flags().IntP("k", "k", 0, "number of chunks to retrieve (default: rag.k)")
	cmd.Flags().Bool("sources", false, "print the chunks the answer was built from")

	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the nearest indexed chunks for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			rt, err := Wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			k, _ := cmd.Flags().GetInt("k")
			if k <= 0 {
				k = cfg.RAG.K
			}
			printResults(cmd.OutOrStdout(), rt.RAG.SearchDocuments(cmd.Context(), strings.Join(args, " "), k))
			return nil
		},
	}

	cmd.Flags().IntP("k", "k", 0, "number of results (default: rag.k)")

	return cmd
}

// printResults writes one ranked line per result plus a text snippet.
func printResults(w io.Writer, results []index.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "  no results")
		return
	}
	for i, r := range results {
		source, _ := r.Metadata[chunker.MetaFileName].(string)
		if source == "" {
			source = r.ID
		}
		_, _ = fmt.Fprintf(w, "  %d. %s %s\n", i+1, promptStyle.Render(source),
			dimStyle.Render(fmt.Sprintf("(distance %.4f)", r.Distance)))
		_, _ = fmt.Fprintf(w, "     %s\n", snippet(r.Document, snippetLen))
	}
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
