package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lawdeskhq/lawdesk/internal/config"
	"github.com/lawdeskhq/lawdesk/internal/remote"
	"github.com/lawdeskhq/lawdesk/internal/store"
	"github.com/lawdeskhq/lawdesk/internal/sync"
)

// app bundles the wired components every subcommand needs: config,
// local store, remote client, and the sync service.
type app struct {
	cfg    *config.Config
	store  *store.Store
	remote *remote.Client
	svc    *sync.Service
	logger *slog.Logger
}

// newApp loads configuration, opens the local store, builds the
// remote client, and hydrates the sync service. An initial
// reachability probe seeds the online flag before hydration so the
// loading-state transitions see real connectivity. httpClient is the
// timed metadata client for one-shot commands, or the untimed
// transfer client for commands that move document blobs.
func newApp(rotatingLogs bool, httpClient *http.Client) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(&cfg.Logging, rotatingLogs)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "lawdesk.db"), logger)
	if err != nil {
		return nil, err
	}

	rc := remote.NewClient(cfg.Remote.Endpoint, cfg.Remote.ServiceKey, cfg.Remote.Bucket, httpClient, logger)
	svc := sync.NewService(cfg, st, rc, logger)

	if cfg.RemoteConfigured() {
		probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		svc.SetOnline(rc.Ping(probeCtx) == nil)
		cancel()
	}

	if err := svc.Initialize(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, remote: rc, svc: svc, logger: logger}, nil
}

// Close flushes pending saves and closes the store.
func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.logger.Warn("flushing pending save", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing local store", slog.String("error", err.Error()))
	}
}
