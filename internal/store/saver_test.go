package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

// recordingWriter counts saves and remembers the last snapshot.
type recordingWriter struct {
	mu    sync.Mutex
	saves int
	last  *model.Snapshot
}

func (w *recordingWriter) Save(_ context.Context, _ string, snap *model.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saves++
	w.last = snap
	return nil
}

func (w *recordingWriter) stats() (int, *model.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saves, w.last
}

func snapWithClients(n int) *model.Snapshot {
	snap := model.NewSnapshot()
	for i := 0; i < n; i++ {
		id := model.NewID()
		snap.Clients[id] = &model.Client{ID: id}
	}
	return snap
}

func TestDebouncedSaverCoalesces(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	ds := NewDebouncedSaver(w, testOwner, 30*time.Millisecond, testLogger())
	defer ds.Close()

	for i := 1; i <= 5; i++ {
		ds.Request(snapWithClients(i))
	}

	require.Eventually(t, func() bool {
		saves, _ := w.stats()
		return saves == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, last := w.stats()
	assert.Len(t, last.Clients, 5, "only the latest requested snapshot is written")
}

func TestDebouncedSaverFlush(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	ds := NewDebouncedSaver(w, testOwner, time.Hour, testLogger())
	defer ds.Close()

	ds.Request(snapWithClients(2))
	require.NoError(t, ds.Flush(context.Background()))

	saves, last := w.stats()
	assert.Equal(t, 1, saves)
	assert.Len(t, last.Clients, 2)

	// Nothing pending: Flush is a no-op.
	require.NoError(t, ds.Flush(context.Background()))
	saves, _ = w.stats()
	assert.Equal(t, 1, saves)
}

func TestDebouncedSaverCloseWritesPending(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	ds := NewDebouncedSaver(w, testOwner, time.Hour, testLogger())

	ds.Request(snapWithClients(3))
	require.NoError(t, ds.Close())

	saves, last := w.stats()
	assert.Equal(t, 1, saves)
	assert.Len(t, last.Clients, 3)
}
