// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
)

// defaultServerAddr matches the server.listen default.
const defaultServerAddr = "127.0.0.1:8080"

// healthBody is the /health response of a running server.
type healthBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server",
		Long:  "Query the health endpoint of a running ragbot server.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultServerAddr, "server address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var body healthBody
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if ragerr.HasCode(err, ragerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s (version %s)\n", addr, body.Status, body.Version)
	return nil
}
