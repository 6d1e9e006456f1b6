// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/sigil-dev/ragbot/internal/config"
	"github.com/sigil-dev/ragbot/internal/secrets"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by every subcommand of one root command.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd creates the root ragbot command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{v: viper.New()})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbot",
		Short: "ragbot: answer questions from your documents",
		Long: "ragbot indexes PDF and text documents and answers questions about them\n" +
			"over HTTP and Telegram, refusing when nothing relevant was found.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(a),
		newIngestCmd(a),
		newAskCmd(a),
		newSearchCmd(a),
		newStatsCmd(a),
		newClearCmd(a),
		newDocumentsCmd(a),
		newStatusCmd(),
		newDoctorCmd(a),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up defaults, env bindings, flag bindings, and the optional
// config file so the standard precedence (flag > env > file > defaults)
// applies to every command.
func (a *app) initViper(cmd *cobra.Command) error {
	v := a.v

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper never matches the bare ./ragbot binary.
		v.SetConfigName("ragbot")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ragbot")
		v.AddConfigPath("/etc/ragbot")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// init writes its own config; everything else gets the commented default.
			if cmd.Name() == "init" {
				return a.bindFlags(cmd)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}

	return a.bindFlags(cmd)
}

// bindFlags binds the persistent flags to viper keys and installs logging.
func (a *app) bindFlags(cmd *cobra.Command) error {
	v := a.v
	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	setupLogging(cmd.ErrOrStderr(), v.GetString("logging.level"), v.GetString("logging.format"), v.GetBool("verbose"))
	return nil
}

// config resolves keyring references and returns the validated configuration.
// It is loaded once per command invocation.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	if err := secrets.ResolveViper(a.v, secretStoreFactory()); err != nil {
		return nil, err
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir()
	}
	a.cfg = cfg
	return cfg, nil
}

// setupLogging installs the process-wide slog handler.
func setupLogging(w io.Writer, level, format string, verbose bool) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
