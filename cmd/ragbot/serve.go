// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sigil-dev/ragbot/internal/channel/telegram"
	"github.com/sigil-dev/ragbot/internal/docsync"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
)

// telegramHTTPClient is used for Bot API calls. Long polls carry their own
// timeout, so no client-wide deadline is set.
var telegramHTTPClient = &http.Client{}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the enabled front ends",
		Long: "Load configuration, wire the index, completion providers and document manager,\n" +
			"then serve the HTTP API. The Telegram bot and the document file watcher start\n" +
			"when enabled in config.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, a)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("telegram", false, "start the Telegram bot even if telegram.enabled is false")
	cmd.Flags().Bool("watch", false, "watch document files even if documents.watch is false")

	return cmd
}

func runServe(cmd *cobra.Command, a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("closing runtime", "error", err)
		}
	}()

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Server.Listen
	}
	srv, err := rt.NewServer(listen)
	if err != nil {
		return err
	}

	forceTelegram, _ := cmd.Flags().GetBool("telegram")
	forceWatch, _ := cmd.Flags().GetBool("watch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	runAside := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				slog.Error("background component stopped", "component", name, "error", err)
				errs <- err
				cancel()
			}
		}()
	}

	if cfg.Telegram.Enabled || forceTelegram {
		if cfg.Telegram.Token == "" {
			return ragerr.New(ragerr.CodeChannelTokenInvalid, "telegram.token is not set")
		}
		bot := telegram.NewBot(
			telegram.NewClient(telegramHTTPClient, "", cfg.Telegram.Token),
			rt.RAG,
			telegram.BotConfig{
				Threshold:   cfg.RAG.SimilarityThreshold,
				K:           cfg.RAG.K,
				PollTimeout: cfg.Telegram.PollTimeout,
				RatePerChat: cfg.Telegram.RatePerChat,
			},
		)
		runAside("telegram", bot.Run)
	}

	if cfg.Documents.Watch || forceWatch {
		w, err := docsync.NewWatcher(rt.Manager, docsync.WatcherOptions{})
		if err != nil {
			return err
		}
		runAside("watcher", w.Run)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ragbot %s serving on %s\n", version, listen)

	serveErr := srv.Start(ctx)
	cancel()
	wg.Wait()
	close(errs)

	if serveErr != nil {
		return serveErr
	}
	return <-errs
}
