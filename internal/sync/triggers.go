package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/lawdeskhq/lawdesk/internal/config"
	"github.com/lawdeskhq/lawdesk/internal/remote"
)

// RealtimeSource delivers remote change notifications, satisfied by
// *remote.Client.
type RealtimeSource interface {
	Subscribe(ctx context.Context, ownerID string) <-chan remote.ChangeEvent
}

// dailyExportCheckInterval is how often the daily-export marker is
// re-examined; the export itself still runs at most once per
// calendar day.
const dailyExportCheckInterval = time.Hour

// Triggers implements the policy deciding when reconciliation runs:
// debounced auto-sync on dirty data, reconnect-triggered sync,
// realtime-notification-triggered refresh, the periodic blob pass,
// and the once-daily export. All loops stop when the context given
// to Run is canceled. There is no unbounded retry anywhere: a failed
// cycle waits for the next trigger evaluation.
type Triggers struct {
	svc      *Service
	realtime RealtimeSource
	syncCfg  config.SyncConfig
	logger   *slog.Logger

	mutated  chan struct{}
	notified chan struct{}

	// sleepFunc is overridable in tests to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewTriggers wires the trigger policy onto a Service. realtime may
// be nil (no subscription, e.g. one-shot CLI commands).
func NewTriggers(svc *Service, realtime RealtimeSource, syncCfg config.SyncConfig, logger *slog.Logger) *Triggers {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Triggers{
		svc:       svc,
		realtime:  realtime,
		syncCfg:   syncCfg,
		logger:    logger,
		mutated:   make(chan struct{}, 1),
		notified:  make(chan struct{}, 1),
		sleepFunc: sleepCtx,
	}

	svc.SetOnMutation(t.onMutation)

	return t
}

// onMutation arms the auto-sync debounce. Non-blocking: an
// already-armed timer just keeps running from the latest signal.
func (t *Triggers) onMutation() {
	select {
	case t.mutated <- struct{}{}:
	default:
	}
}

// Run starts all trigger loops and blocks until ctx is canceled.
func (t *Triggers) Run(ctx context.Context) {
	go t.autoSyncLoop(ctx)
	go t.connectivityLoop(ctx)
	go t.blobLoop(ctx)

	if t.syncCfg.DailyExport {
		go t.dailyExportLoop(ctx)
	}

	if t.realtime != nil {
		go t.realtimeLoop(ctx)
	}

	<-ctx.Done()
}

// autoSyncLoop waits for mutation quiescence, then runs a full
// cycle. The timer resets on every new mutation, so a burst of edits
// produces one sync.
func (t *Triggers) autoSyncLoop(ctx context.Context) {
	timer := time.NewTimer(t.syncCfg.Debounce())
	timer.Stop()
	defer timer.Stop()

	timerActive := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.mutated:
			if !timer.Stop() && timerActive {
				<-timer.C
			}

			timer.Reset(t.syncCfg.Debounce())
			timerActive = true

		case <-timer.C:
			timerActive = false
			t.maybeAutoSync(ctx)
		}
	}
}

func (t *Triggers) maybeAutoSync(ctx context.Context) {
	if !t.syncCfg.AutoSync {
		return
	}
	if !t.svc.IsDirty() || !t.svc.Online() || t.svc.Status() == StatusSyncing {
		return
	}

	t.logger.Debug("auto-sync trigger fired")

	if err := t.svc.ManualSync(ctx, false); err != nil {
		t.logger.Warn("auto-sync cycle failed", slog.String("error", err.Error()))
	}
}

// connectivityLoop probes backend reachability on an interval and
// reacts to offline-to-online transitions: after a short settle
// delay, a dirty client pushes (full cycle) and a clean one just
// refreshes.
func (t *Triggers) connectivityLoop(ctx context.Context) {
	ticker := time.NewTicker(t.syncCfg.ConnectivityInterval())
	defer ticker.Stop()

	t.probeConnectivity(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.probeConnectivity(ctx)
		}
	}
}

func (t *Triggers) probeConnectivity(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	online := t.svc.remote.Ping(probeCtx) == nil
	cancel()

	wasOffline := !t.svc.Online()
	if !t.svc.SetOnline(online) {
		return
	}

	if !online {
		t.logger.Info("connectivity lost")
		return
	}

	if !wasOffline {
		return
	}

	t.logger.Info("connectivity regained")

	if err := t.sleepFunc(ctx, t.syncCfg.ReconnectSettle()); err != nil {
		return
	}

	var err error
	if t.svc.IsDirty() {
		err = t.svc.ManualSync(ctx, false)
	} else {
		err = t.svc.FetchAndRefresh(ctx)
	}

	if err != nil {
		t.logger.Warn("reconnect sync failed", slog.String("error", err.Error()))
	}
}

// realtimeLoop debounces inbound change notifications into pull-only
// refreshes. A notification arriving while our own push is in flight
// is skipped: the pull at the end of that cycle will pick up the
// change anyway.
func (t *Triggers) realtimeLoop(ctx context.Context) {
	events := t.realtime.Subscribe(ctx, t.svc.cfg.OwnerID)

	go func() {
		for ev := range events {
			t.logger.Debug("realtime change received",
				slog.String("table", ev.Table),
				slog.String("op", ev.Op),
			)

			select {
			case t.notified <- struct{}{}:
			default:
			}
		}
	}()

	timer := time.NewTimer(t.syncCfg.RealtimeDebounce())
	timer.Stop()
	defer timer.Stop()

	timerActive := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.notified:
			if !timer.Stop() && timerActive {
				<-timer.C
			}

			timer.Reset(t.syncCfg.RealtimeDebounce())
			timerActive = true

		case <-timer.C:
			timerActive = false

			if t.svc.PushInFlight() {
				t.logger.Debug("realtime refresh skipped: push in flight")
				continue
			}

			if err := t.svc.FetchAndRefresh(ctx); err != nil {
				t.logger.Warn("realtime refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// blobLoop periodically runs a blob pass while documents are
// pending. The pass itself is single-flight guarded.
func (t *Triggers) blobLoop(ctx context.Context) {
	ticker := time.NewTicker(blobPassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.svc.Online() && t.svc.HasPendingBlobs() {
				t.svc.RunBlobPass(ctx)
			}
		}
	}
}

// dailyExportLoop checks the once-per-day export marker hourly.
func (t *Triggers) dailyExportLoop(ctx context.Context) {
	ticker := time.NewTicker(dailyExportCheckInterval)
	defer ticker.Stop()

	t.svc.MaybeDailyExport(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.svc.MaybeDailyExport(ctx)
		}
	}
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
