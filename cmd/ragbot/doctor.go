// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/sigil-dev/ragbot/internal/channel/telegram"
	"github.com/sigil-dev/ragbot/internal/config"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check config, data directory, disk space, index, LLM and embedding connections, and the Telegram token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, a)
		},
	}

	cmd.Flags().String("address", defaultServerAddr, "server address to check")

	return cmd
}

type doctorCheck struct {
	name string
	fn   func() string
}

func runDoctor(cmd *cobra.Command, a *app) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	addr, _ := cmd.Flags().GetString("address")

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Server", func() string { return checkServer(addr) }},
		{"Config", func() string { return checkConfig(a) }},
	}

	cfg, cfgErr := a.config()
	if cfgErr != nil {
		checks = append(checks, doctorCheck{"Config error", fixed(cfgErr.Error())})
	} else {
		checks = append(checks,
			doctorCheck{"Data Dir", func() string { return cfg.DataDir }},
			doctorCheck{"Disk Space", func() string { return checkDiskSpace(cfg.DataDir) }},
		)
		checks = append(checks, runtimeChecks(ctx, cfg)...)
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// runtimeChecks wires the runtime once and probes each external dependency
// before closing it again.
func runtimeChecks(ctx context.Context, cfg *config.Config) []doctorCheck {
	rt, err := Wire(ctx, cfg)
	if err != nil {
		return []doctorCheck{{"Runtime", fixed("error: " + err.Error())}}
	}
	defer func() { _ = rt.Close() }()

	indexState := "error: "
	if err := rt.Index.Ping(ctx); err != nil {
		indexState += err.Error()
	} else {
		st := rt.RAG.Stats(ctx)
		indexState = fmt.Sprintf("%s (%s, %d chunks in %s)", st.Status, cfg.Index.Backend, st.TotalDocuments, st.CollectionName)
	}

	e := rt.Index.Embedder()
	embeddings := fmt.Sprintf("ok (%s, %d dims)", e.Name(), e.Dimensions())
	if _, err := e.Embed(ctx, []string{"ragbot doctor"}); err != nil {
		embeddings = "error: " + err.Error()
	}

	llm := fmt.Sprintf("ok (%s)", cfg.Completion.Model)
	if !rt.RAG.TestConnection(ctx).LLM {
		llm = fmt.Sprintf("unavailable (%s)", cfg.Completion.Model)
	}

	return []doctorCheck{
		{"Providers", fixed(fmt.Sprintf("%d registered", len(rt.Registry.Names())))},
		{"Index", fixed(indexState)},
		{"Embeddings", fixed(embeddings)},
		{"LLM", fixed(llm)},
		{"Telegram", fixed(checkTelegram(ctx, cfg))},
	}
}

func fixed(s string) func() string {
	return func() string { return s }
}

func checkBinary() string {
	return fmt.Sprintf("ragbot %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkServer(addr string) string {
	var body healthBody
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if ragerr.HasCode(err, ragerr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'ragbot serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig(a *app) string {
	if cfgFile := a.v.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkTelegram(ctx context.Context, cfg *config.Config) string {
	if cfg.Telegram.Token == "" {
		return "not configured"
	}
	user, err := telegram.ValidateToken(ctx, initHTTPClient, cfg.Telegram.Token)
	if err != nil {
		return "error: " + err.Error()
	}
	state := "disabled"
	if cfg.Telegram.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("@%s (%s)", user.Username, state)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
