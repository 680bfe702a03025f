package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

// DefaultSaveDebounce is the coalescing window for snapshot writes.
// Mutations arriving within the window collapse into one write. A
// crash inside the window loses at most that window of mutations;
// this is the documented bounded data-loss risk of the local cache.
const DefaultSaveDebounce = 1500 * time.Millisecond

// SnapshotWriter is the subset of Store the saver needs. Taking the
// interface lets the sync service run the saver over test doubles.
type SnapshotWriter interface {
	Save(ctx context.Context, ownerID string, snap *model.Snapshot) error
}

// DebouncedSaver coalesces snapshot writes. Request replaces the
// pending snapshot and (re)arms the debounce timer; when the timer
// expires with no new request, the latest snapshot is written. Flush
// forces an immediate write of anything pending. All methods are
// safe for concurrent use. Callers pass snapshot clones so a save in
// flight never races with setter mutations.
type DebouncedSaver struct {
	store   SnapshotWriter
	ownerID string
	window  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending *model.Snapshot
	notify  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewDebouncedSaver starts the saver goroutine. window <= 0 uses
// DefaultSaveDebounce.
func NewDebouncedSaver(s SnapshotWriter, ownerID string, window time.Duration, logger *slog.Logger) *DebouncedSaver {
	if window <= 0 {
		window = DefaultSaveDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	ds := &DebouncedSaver{
		store:   s,
		ownerID: ownerID,
		window:  window,
		logger:  logger,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	go ds.loop(ctx)

	return ds
}

// Request schedules snap for persistence after the debounce window.
// A later Request supersedes an earlier unsaved one.
func (ds *DebouncedSaver) Request(snap *model.Snapshot) {
	ds.mu.Lock()
	ds.pending = snap
	ds.mu.Unlock()

	select {
	case ds.notify <- struct{}{}:
	default:
		// Already signaled; the loop will pick up the latest pending.
	}
}

// Flush writes any pending snapshot immediately.
func (ds *DebouncedSaver) Flush(ctx context.Context) error {
	return ds.savePending(ctx)
}

// Close flushes pending state and stops the goroutine.
func (ds *DebouncedSaver) Close() error {
	err := ds.savePending(context.Background())
	ds.cancel()
	<-ds.done

	return err
}

func (ds *DebouncedSaver) loop(ctx context.Context) {
	defer close(ds.done)

	timer := time.NewTimer(ds.window)
	timer.Stop() // start idle, nothing pending yet
	defer timer.Stop()

	timerActive := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-ds.notify:
			// New request arrived; reset the debounce timer.
			if !timer.Stop() && timerActive {
				<-timer.C
			}

			timer.Reset(ds.window)
			timerActive = true

		case <-timer.C:
			timerActive = false

			if err := ds.savePending(ctx); err != nil && ctx.Err() == nil {
				ds.logger.Error("debounced save failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (ds *DebouncedSaver) savePending(ctx context.Context) error {
	ds.mu.Lock()
	snap := ds.pending
	ds.pending = nil
	ds.mu.Unlock()

	if snap == nil {
		return nil
	}

	return ds.store.Save(ctx, ds.ownerID, snap)
}
