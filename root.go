package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lawdeskhq/lawdesk/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout bounds metadata requests so a hung connection
// never blocks a CLI command indefinitely. Blob transfers use a
// separate untimed client.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func transferHTTPClient() *http.Client {
	return &http.Client{}
}

// newRootCmd builds the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lawdesk",
		Short:   "Offline-first business-record manager",
		Long:    "lawdesk keeps clients, cases, sessions, tasks, invoices, and documents usable offline and reconciles with the remote store whenever connectivity allows.",
		Version: version,
		// We print errors ourselves with context.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: ~/.config/lawdesk/config.toml)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")

	cmd.AddCommand(
		newSyncCmd(),
		newStatusCmd(),
		newExportCmd(),
		newWatchCmd(),
		newDocsCmd(),
	)

	return cmd
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return cfg, nil
}

// newLogger builds the process logger: human-readable text on a TTY,
// JSON otherwise, optionally teed into a rotating file for the watch
// daemon.
func newLogger(cfg *config.LoggingConfig, rotating bool) *slog.Logger {
	level := slog.LevelInfo

	switch {
	case flagVerbose:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelError
	case cfg != nil:
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	var w io.Writer = os.Stderr

	if rotating && cfg != nil && cfg.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}
