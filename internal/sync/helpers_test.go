package sync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lawdeskhq/lawdesk/internal/config"
	"github.com/lawdeskhq/lawdesk/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// remoteCall records one backend operation for ordering assertions.
type remoteCall struct {
	op    string // probe, select, upsert, delete, upload, download, remove, ping
	table string
	path  string
	ids   []string
	rows  int
}

// fakeRemote is an in-memory Remote with per-table error injection
// and a call log.
type fakeRemote struct {
	mu    sync.Mutex
	calls []remoteCall

	probeErr error
	pingErr  error

	rows      map[string][]json.RawMessage // table -> select result
	selectErr map[string]error
	upsertErr map[string]error
	deleteErr map[string]error

	objects     map[string][]byte // storage path -> content
	uploadErr   error
	downloadErr map[string]error
	removeErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:        make(map[string][]json.RawMessage),
		selectErr:   make(map[string]error),
		upsertErr:   make(map[string]error),
		deleteErr:   make(map[string]error),
		objects:     make(map[string][]byte),
		downloadErr: make(map[string]error),
	}
}

func (f *fakeRemote) record(c remoteCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeRemote) callLog() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

func (f *fakeRemote) Probe(_ context.Context, tables []string) error {
	f.record(remoteCall{op: "probe", rows: len(tables)})
	return f.probeErr
}

func (f *fakeRemote) SelectRows(_ context.Context, table, _ string) ([]json.RawMessage, error) {
	f.record(remoteCall{op: "select", table: table})
	if err := f.selectErr[table]; err != nil {
		return nil, err
	}
	return f.rows[table], nil
}

func (f *fakeRemote) UpsertRows(_ context.Context, table string, rows []any) error {
	f.record(remoteCall{op: "upsert", table: table, rows: len(rows)})
	return f.upsertErr[table]
}

func (f *fakeRemote) DeleteRows(_ context.Context, table, _ string, ids []string) error {
	f.record(remoteCall{op: "delete", table: table, ids: ids})
	return f.deleteErr[table]
}

func (f *fakeRemote) UploadObject(_ context.Context, path, _ string, data []byte) error {
	f.record(remoteCall{op: "upload", path: path})
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	f.objects[path] = append([]byte(nil), data...)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) DownloadObject(_ context.Context, path string) ([]byte, error) {
	f.record(remoteCall{op: "download", path: path})
	if err := f.downloadErr[path]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.objects[path]; ok {
		return append([]byte(nil), data...), nil
	}
	return nil, errDownloadMissing
}

func (f *fakeRemote) RemoveObject(_ context.Context, path string) error {
	f.record(remoteCall{op: "remove", path: path})
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	delete(f.objects, path)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) Ping(context.Context) error {
	f.record(remoteCall{op: "ping"})
	return f.pingErr
}

var errDownloadMissing = &fakeNetErr{msg: "object not stored"}

type fakeNetErr struct{ msg string }

func (e *fakeNetErr) Error() string { return e.msg }

// fakeStore is an in-memory LocalStore.
type fakeStore struct {
	mu sync.Mutex

	loadSnap *model.Snapshot
	loadErr  error

	saved   *model.Snapshot
	saves   int
	saveErr error

	blobs      map[string][]byte
	putBlobErr error

	meta map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loadSnap: model.NewSnapshot(),
		blobs:    make(map[string][]byte),
		meta:     make(map[string]string),
	}
}

func (f *fakeStore) Load(context.Context, string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loadSnap, nil
}

func (f *fakeStore) Save(_ context.Context, _ string, snap *model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = snap
	f.saves++
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeStore) lastSaved() *model.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func (f *fakeStore) GetBlob(_ context.Context, docID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.blobs[docID]; ok {
		return append([]byte(nil), data...), nil
	}
	return nil, errBlobMissing
}

func (f *fakeStore) PutBlob(_ context.Context, docID string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putBlobErr != nil {
		return f.putBlobErr
	}
	f.blobs[docID] = append([]byte(nil), content...)
	return nil
}

func (f *fakeStore) DeleteBlob(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, docID)
	return nil
}

func (f *fakeStore) GetMeta(_ context.Context, _, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[key], nil
}

func (f *fakeStore) SetMeta(_ context.Context, _, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[key] = value
	return nil
}

var errBlobMissing = &fakeNetErr{msg: "blob not cached"}

func testConfig(t *testing.T, configured bool) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.OwnerID = "owner1"
	cfg.DataDir = t.TempDir()
	cfg.Sync.SaveDebounceMS = 10

	if configured {
		cfg.Remote.Endpoint = "https://api.example.com"
		cfg.Remote.ServiceKey = "test-key"
	}

	require.NoError(t, cfg.Validate())

	return cfg
}

// newTestService wires a Service over the fakes, hydrated and online.
func newTestService(t *testing.T, fs *fakeStore, fr *fakeRemote) *Service {
	t.Helper()

	svc := NewService(testConfig(t, true), fs, fr, testLogger())
	svc.now = func() time.Time { return testNow }
	t.Cleanup(func() { svc.Close() })

	require.NoError(t, svc.Initialize(context.Background()))
	svc.SetOnline(true)

	return svc
}
