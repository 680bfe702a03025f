package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/lawdeskhq/lawdesk/internal/config"
	"github.com/lawdeskhq/lawdesk/internal/model"
	"github.com/lawdeskhq/lawdesk/internal/store"
)

// LocalStore is the durable-cache surface the Service consumes,
// satisfied by *store.Store. Defined at the consumer so tests inject
// fakes.
type LocalStore interface {
	Load(ctx context.Context, ownerID string) (*model.Snapshot, error)
	Save(ctx context.Context, ownerID string, snap *model.Snapshot) error
	GetBlob(ctx context.Context, docID string) ([]byte, error)
	PutBlob(ctx context.Context, docID string, content []byte) error
	DeleteBlob(ctx context.Context, docID string) error
	GetMeta(ctx context.Context, ownerID, key string) (string, error)
	SetMeta(ctx context.Context, ownerID, key, value string) error
}

// Service owns the offline-first sync state machine: the in-memory
// snapshot, the dirty tracker, the single sync-execution slot, and
// the document blob controller. The UI layer holds one Service and
// talks to it through typed setters, sync triggers, and read
// accessors; it never touches the stores directly.
type Service struct {
	cfg     *config.Config
	local   LocalStore
	saver   *store.DebouncedSaver
	remote  Remote
	tracker *Tracker
	logger  *slog.Logger

	mu             gosync.Mutex
	snap           *model.Snapshot
	status         Status
	lastErr        string
	lastGoodStatus Status // status to restore when connectivity returns

	// runSlot is the single sync-execution queue: one push+pull cycle
	// or pull-only refresh at a time. Holding the slot makes the
	// advisory status checks race-free in practice.
	runSlot chan struct{}

	online       atomic.Bool
	pushInFlight atomic.Bool
	blobPass     atomic.Bool

	// onMutation is invoked after every setter, outside the snapshot
	// lock. The trigger policy uses it to arm the auto-sync debounce.
	onMutation func()

	now func() time.Time
}

// NewService wires a Service. The caller runs Initialize before any
// other method.
func NewService(cfg *config.Config, local LocalStore, r Remote, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:     cfg,
		local:   local,
		saver:   store.NewDebouncedSaver(local, cfg.OwnerID, cfg.Sync.SaveDebounce(), logger),
		remote:  r,
		tracker: NewTracker(),
		logger:  logger,
		snap:    model.NewSnapshot(),
		status:  StatusLoading,
		runSlot: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// SetOnMutation registers the trigger-policy hook. Must be called
// before Initialize.
func (s *Service) SetOnMutation(fn func()) {
	s.onMutation = fn
}

// Initialize hydrates the in-memory snapshot from the local cache.
// Hydration never marks dirty. The resulting status is synced when a
// non-empty cache exists, offline when there is neither cache nor
// connectivity, and loading when an online first run still needs its
// initial pull.
func (s *Service) Initialize(ctx context.Context) error {
	s.tracker.BeginHydration()
	defer s.tracker.EndHydration()

	snap, err := s.local.Load(ctx, s.cfg.OwnerID)
	if err != nil {
		s.setStatus(StatusError, fmt.Sprintf("loading local cache: %v", err))
		return fmt.Errorf("sync: hydrating: %w", err)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	switch {
	case !snap.Empty():
		s.setStatus(StatusSynced, "")
	case !s.online.Load():
		s.setStatus(StatusOffline, "")
	default:
		// Online first run: status stays loading until the initial
		// fetch populates the cache.
	}

	s.logger.Info("hydrated local snapshot",
		slog.Int("entities", snap.EntityCount()),
		slog.String("status", string(s.Status())),
	)

	return nil
}

// ManualSync runs one full push+pull cycle. With forceFullRefresh,
// documents stuck in the error state that still have a storage path
// are reset to pending_download before the pull, giving the operator
// a retry affordance for failed downloads.
func (s *Service) ManualSync(ctx context.Context, forceFullRefresh bool) error {
	if !s.cfg.RemoteConfigured() {
		s.setStatus(StatusUnconfigured, "no remote endpoint or service key configured")
		return ErrUnconfigured
	}

	select {
	case s.runSlot <- struct{}{}:
	default:
		return ErrSyncInFlight
	}
	defer func() { <-s.runSlot }()

	if !s.online.Load() {
		s.setStatus(StatusOffline, "")
		return ErrOffline
	}

	s.setStatus(StatusSyncing, "")

	// Schema probe: push must never run against a half-provisioned
	// backend, where some levels would commit and others fail.
	if err := s.remote.Probe(ctx, model.AllTables); err != nil {
		st := statusForError(err)
		s.setStatus(st, fmt.Sprintf("schema probe: %v", err))

		if st == StatusUninitialized {
			return fmt.Errorf("%w: %v", ErrRemoteUninitialized, err)
		}

		return fmt.Errorf("sync: schema probe: %w", err)
	}

	if err := s.runPushPhase(ctx); err != nil {
		// Dirty stays set: nothing is confirmed until a full cycle
		// completes.
		s.setStatus(statusForError(err), err.Error())
		return err
	}

	if forceFullRefresh {
		s.resetErroredDownloads()
	}

	if err := s.runPullPhase(ctx); err != nil {
		// Push already committed but the cycle is unconfirmed; dirty
		// stays set and the next trigger retries (push is idempotent).
		s.setStatus(statusForError(err), err.Error())
		return err
	}

	s.tracker.Clear()
	s.setStatus(StatusSynced, "")

	go s.RunBlobPass(context.WithoutCancel(ctx))

	return nil
}

// FetchAndRefresh runs a pull-only cycle: fetch the remote snapshot,
// merge, persist. Best-effort guarded; it skips silently when a
// cycle is already syncing.
func (s *Service) FetchAndRefresh(ctx context.Context) error {
	if s.Status() == StatusSyncing {
		return nil
	}
	if !s.cfg.RemoteConfigured() {
		s.setStatus(StatusUnconfigured, "no remote endpoint or service key configured")
		return ErrUnconfigured
	}

	select {
	case s.runSlot <- struct{}{}:
	default:
		return ErrSyncInFlight
	}
	defer func() { <-s.runSlot }()

	if !s.online.Load() {
		s.setStatus(StatusOffline, "")
		return ErrOffline
	}

	s.setStatus(StatusSyncing, "")

	if err := s.runPullPhase(ctx); err != nil {
		s.setStatus(statusForError(err), err.Error())
		return err
	}

	s.tracker.Clear()
	s.setStatus(StatusSynced, "")

	go s.RunBlobPass(context.WithoutCancel(ctx))

	return nil
}

// runPushPhase pushes a clone of the live snapshot, then applies the
// confirmed tombstone purges back to the live ledger. Mutations that
// land during the push keep their tombstones.
func (s *Service) runPushPhase(ctx context.Context) error {
	s.mu.Lock()
	clone := s.snap.Clone()
	s.mu.Unlock()

	confirmed := make(map[string][]string, len(model.AllTables))
	for _, table := range model.AllTables {
		if ids := idList(clone.Deleted.ByTable(table)); len(ids) > 0 {
			confirmed[table] = ids
		}
	}

	s.pushInFlight.Store(true)
	err := runPush(ctx, s.remote, s.cfg.OwnerID, clone, s.logger)
	s.pushInFlight.Store(false)

	if err != nil {
		return err
	}

	s.mu.Lock()
	for table, ids := range confirmed {
		s.snap.Deleted.Purge(table, ids)
	}
	s.mu.Unlock()

	return nil
}

// runPullPhase pulls the canonical dataset, swaps it in, and
// persists it immediately (not debounced: a completed cycle should
// survive a crash).
func (s *Service) runPullPhase(ctx context.Context) error {
	s.mu.Lock()
	local := s.snap.Clone()
	s.mu.Unlock()

	fresh, err := runPull(ctx, s.remote, s.cfg.OwnerID, local, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = fresh
	persist := fresh.Clone()
	s.mu.Unlock()

	if err := s.local.Save(ctx, s.cfg.OwnerID, persist); err != nil {
		return fmt.Errorf("sync: persisting pulled snapshot: %w", err)
	}

	return nil
}

// resetErroredDownloads gives documents stuck in the error state
// another chance when the operator forces a full refresh.
func (s *Service) resetErroredDownloads() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.snap.Documents {
		if doc.LocalState == model.DocError && doc.StoragePath != "" {
			doc.LocalState = model.DocPendingDownload
		}
	}
}

// SetOnline records a connectivity transition and reports whether
// anything changed. Loss parks the status at offline; regain
// restores the pre-offline status.
func (s *Service) SetOnline(online bool) bool {
	if s.online.Swap(online) == online {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !online {
		if s.status == StatusSynced || s.status == StatusError {
			s.lastGoodStatus = s.status
			s.status = StatusOffline
		}
		return true
	}

	if s.status == StatusOffline {
		if s.lastGoodStatus != "" {
			s.status = s.lastGoodStatus
		} else if !s.snap.Empty() {
			s.status = StatusSynced
		} else {
			s.status = StatusLoading
		}
	}

	return true
}

// Online reports current connectivity as last probed.
func (s *Service) Online() bool {
	return s.online.Load()
}

// Status returns the process-wide sync status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSyncError returns the operator-facing message for the last
// failed cycle, or "".
func (s *Service) LastSyncError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// IsDirty reports whether unconfirmed mutations exist.
func (s *Service) IsDirty() bool {
	return s.tracker.IsDirty()
}

// PushInFlight reports whether the push phase of a cycle is running.
// The realtime trigger skips refreshes while it is.
func (s *Service) PushInFlight() bool {
	return s.pushInFlight.Load()
}

func (s *Service) setStatus(st Status, errMsg string) {
	s.mu.Lock()
	prev := s.status
	s.status = st
	s.lastErr = errMsg
	s.mu.Unlock()

	if prev != st {
		s.logger.Info("sync status changed",
			slog.String("from", string(prev)),
			slog.String("to", string(st)),
		)
	}
	if errMsg != "" {
		s.logger.Error("sync failure", slog.String("error", errMsg))
	}
}

// Close flushes any pending debounced save.
func (s *Service) Close() error {
	return s.saver.Close()
}

// mutate applies fn to the live snapshot under the lock, marks
// dirty, schedules a debounced save of a clone, and fires the
// trigger hook.
func (s *Service) mutate(fn func(*model.Snapshot)) {
	s.mu.Lock()
	fn(s.snap)
	clone := s.snap.Clone()
	s.mu.Unlock()

	s.tracker.MarkDirty()
	s.saver.Request(clone)

	if s.onMutation != nil {
		s.onMutation()
	}
}

// View returns a consistent clone of the snapshot for reads.
func (s *Service) View() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// AllSessions returns every session joined with its containment
// context.
func (s *Service) AllSessions() []model.SessionView {
	return s.View().AllSessions()
}

// UnpostponedSessions returns past, unpostponed sessions whose stage
// has no decision yet.
func (s *Service) UnpostponedSessions() []model.SessionView {
	return s.View().UnpostponedSessions(s.now())
}
