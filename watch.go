package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lawdeskhq/lawdesk/internal/config"
	"github.com/lawdeskhq/lawdesk/internal/remote"
	"github.com/lawdeskhq/lawdesk/internal/sync"
)

// newWatchCmd builds the long-running daemon: all trigger loops plus
// the realtime subscription, until SIGINT/SIGTERM or a config file
// change.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(true, transferHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := watchConfigFile(ctx, cancel, a.logger); err != nil {
				a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
			}

			var realtime sync.RealtimeSource
			if a.cfg.RemoteConfigured() {
				realtime = a.remote
			}

			triggers := sync.NewTriggers(a.svc, realtime, a.cfg.Sync, a.logger)

			a.logger.Info("daemon started",
				slog.String("status", string(a.svc.Status())),
				slog.Bool("online", a.svc.Online()))

			triggers.Run(ctx)

			a.logger.Info("daemon stopped")

			return nil
		},
	}
}

// watchConfigFile cancels the daemon context when the config file is
// rewritten, so a supervisor restart picks up the new settings. An
// invalid rewrite is logged and ignored; the daemon keeps running on
// the old configuration.
func watchConfigFile(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	path := flagConfigPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors replace config files
	// by rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}

				if _, err := config.Load(path); err != nil {
					logger.Warn("ignoring invalid config change", slog.String("error", err.Error()))
					continue
				}

				logger.Info("config changed, shutting down for restart", slog.String("path", path))
				cancel()
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// compile-time check that the realtime client satisfies the trigger
// interface.
var _ sync.RealtimeSource = (*remote.Client)(nil)
