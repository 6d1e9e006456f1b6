// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
)

// ingestProbeQuery is searched after ingestion to show the index answers.
const ingestProbeQuery = "test"

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index every PDF and text file under a directory",
		Long: "Check the LLM and index connections, optionally clear the index, ingest\n" +
			"every supported file under dir (default: documents.dir), then print the\n" +
			"index statistics and a sample search.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, a, args)
		},
	}

	cmd.Flags().Bool("clear", false, "clear the index before ingesting")

	return cmd
}

func runIngest(cmd *cobra.Command, a *app, args []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rt, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	dir := documentsDir(cfg)
	if len(args) == 1 {
		dir = args[0]
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintln(out, titleStyle.Render("Checking connections"))
	conn := rt.RAG.TestConnection(ctx)
	_, _ = fmt.Fprintf(out, "  LLM:   %s\n", okLabel(conn.LLM))
	_, _ = fmt.Fprintf(out, "  Index: %s\n", okLabel(conn.Index))
	if !conn.Index {
		return ragerr.New(ragerr.CodeCLISetupFailure, "index is not reachable")
	}

	if clear, _ := cmd.Flags().GetBool("clear"); clear {
		if err := rt.RAG.Clear(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "Index cleared.")
	}

	_, _ = fmt.Fprintf(out, "\n%s\n", titleStyle.Render("Ingesting "+dir))
	report, err := rt.RAG.IngestDirectory(ctx, dir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "  %d file(s), %d chunk(s) indexed\n", report.Files, report.Chunks)

	st := rt.RAG.Stats(ctx)
	_, _ = fmt.Fprintf(out, "\n%s\n", titleStyle.Render("Index"))
	printStats(out, st)

	_, _ = fmt.Fprintf(out, "\n%s\n", titleStyle.Render(fmt.Sprintf("Sample search: %q", ingestProbeQuery)))
	printResults(out, rt.RAG.SearchDocuments(ctx, ingestProbeQuery, 3))
	return nil
}

func okLabel(ok bool) string {
	if ok {
		return successStyle.Render("ok")
	}
	return errorStyle.Render("unavailable")
}
