// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sigil-dev/ragbot/internal/docsync"
	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
)

func newDocumentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage document records and their index synchronisation",
		Long: "Document records track source files. A record marked as processed has its\n" +
			"file chunked into the index; unprocessing or deleting it removes the chunks.",
	}

	cmd.AddCommand(
		newDocumentsAddCmd(a),
		newDocumentsListCmd(a),
		newDocumentsShowCmd(a),
		newDocumentsActionCmd(a, "process", "Ingest documents into the index", (*docsync.Manager).Process),
		newDocumentsActionCmd(a, "unprocess", "Remove documents' chunks from the index", (*docsync.Manager).Unprocess),
		newDocumentsSyncCmd(a),
		newDocumentsDeleteCmd(a),
		newDocumentsSummaryCmd(a),
	)

	return cmd
}

// withRuntime wires the runtime for one document command and waits for every
// scheduled job before closing it.
func (a *app) withRuntime(cmd *cobra.Command, fn func(rt *Runtime) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	rt, err := Wire(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := fn(rt); err != nil {
		return err
	}
	rt.Manager.Wait()
	return nil
}

func newDocumentsAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Create a document record for a PDF or text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return ragerr.Wrapf(err, ragerr.CodeCLIInputInvalid, "resolving %s", args[0])
			}
			name, _ := cmd.Flags().GetString("name")
			desc, _ := cmd.Flags().GetString("description")
			process, _ := cmd.Flags().GetBool("process")

			return a.withRuntime(cmd, func(rt *Runtime) error {
				doc, err := rt.Manager.Save(cmd.Context(), &store.Document{
					Name:        name,
					File:        path,
					Description: desc,
					IsProcessed: process,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created document %s (%s)\n", doc.ID, doc.Name)
				return nil
			})
		},
	}

	cmd.Flags().String("name", "", "display name (default: file name without extension)")
	cmd.Flags().String("description", "", "free-form description")
	cmd.Flags().Bool("process", false, "ingest the file into the index right away")

	return cmd
}

func newDocumentsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List document records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			filter := store.DocumentFilter{
				Status: store.DocumentStatus(status),
				Limit:  limit,
				Offset: offset,
			}
			if cmd.Flags().Changed("processed") {
				processed, _ := cmd.Flags().GetBool("processed")
				filter.IsProcessed = &processed
			}

			return a.withRuntime(cmd, func(rt *Runtime) error {
				docs, err := rt.Manager.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				printDocuments(cmd.OutOrStdout(), docs)
				return nil
			})
		},
	}

	cmd.Flags().String("status", "", "filter by status (pending, processing, processed, error)")
	cmd.Flags().Bool("processed", false, "filter by the processed flag")
	cmd.Flags().Int("limit", 100, "maximum number of records")
	cmd.Flags().Int("offset", 0, "records to skip")

	return cmd
}

func newDocumentsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one document record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(rt *Runtime) error {
				doc, err := rt.Manager.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc)
				return nil
			})
		},
	}
}

type documentAction func(m *docsync.Manager, ctx context.Context, ids ...string) []docsync.Outcome

func newDocumentsActionCmd(a *app, use, short string, action documentAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(rt *Runtime) error {
				outcomes := action(rt.Manager, cmd.Context(), args...)
				printOutcomes(cmd.OutOrStdout(), outcomes)
				for _, o := range outcomes {
					if o.Result == docsync.OutcomeFailed {
						return ragerr.Errorf(ragerr.CodeCLIRequestFailure, "%s failed for %s: %s", use, o.ID, o.Reason)
					}
				}
				return nil
			})
		},
	}
}

func newDocumentsSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <id>",
		Short: "Synchronise a document with the index and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(rt *Runtime) error {
				doc, err := rt.Manager.SyncNow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printDocument(cmd.OutOrStdout(), doc)
				return nil
			})
		},
	}
}

func newDocumentsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document record and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(rt *Runtime) error {
				if err := rt.Manager.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s\n", args[0])
				return nil
			})
		},
	}
}

func newDocumentsSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count document records per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd, func(rt *Runtime) error {
				s, err := rt.Manager.Summary(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "  Total:      %d\n", s.Total)
				_, _ = fmt.Fprintf(w, "  Pending:    %d\n", s.Pending)
				_, _ = fmt.Fprintf(w, "  Processing: %d\n", s.Processing)
				_, _ = fmt.Fprintf(w, "  Processed:  %d\n", s.Processed)
				_, _ = fmt.Fprintf(w, "  Error:      %d\n", s.Error)
				_, _ = fmt.Fprintf(w, "  Index:      %s, %d chunk(s) in %s\n", s.IndexStatus, s.IndexedChunks, s.CollectionName)
				return nil
			})
		},
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func printDocuments(w io.Writer, docs []*store.Document) {
	if len(docs) == 0 {
		_, _ = fmt.Fprintln(w, "No documents.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "NAME", "TYPE", "STATUS", "PROCESSED", "CHUNKS", "SIZE")
	for _, d := range docs {
		t.Row(d.ID, d.Name, string(d.DocumentType), string(d.Status),
			strconv.FormatBool(d.IsProcessed), strconv.Itoa(len(d.IndexIDs)), docsync.FormatSize(d.FileSize))
	}
	_, _ = fmt.Fprintln(w, t.String())
}

func printDocument(w io.Writer, d *store.Document) {
	_, _ = fmt.Fprintf(w, "ID:          %s\n", d.ID)
	_, _ = fmt.Fprintf(w, "Name:        %s\n", d.Name)
	_, _ = fmt.Fprintf(w, "File:        %s\n", d.File)
	_, _ = fmt.Fprintf(w, "Type:        %s\n", d.DocumentType)
	if d.Description != "" {
		_, _ = fmt.Fprintf(w, "Description: %s\n", d.Description)
	}
	_, _ = fmt.Fprintf(w, "Status:      %s\n", d.Status)
	_, _ = fmt.Fprintf(w, "Processed:   %t\n", d.IsProcessed)
	_, _ = fmt.Fprintf(w, "Chunks:      %d\n", len(d.IndexIDs))
	_, _ = fmt.Fprintf(w, "Size:        %s\n", docsync.FormatSize(d.FileSize))
	_, _ = fmt.Fprintf(w, "Updated:     %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printOutcomes(w io.Writer, outcomes []docsync.Outcome) {
	for _, o := range outcomes {
		label := o.ID
		if o.Name != "" {
			label = o.Name + " (" + o.ID + ")"
		}
		line := fmt.Sprintf("%-8s %s", o.Result, label)
		if o.Reason != "" {
			line += ": " + o.Reason
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
