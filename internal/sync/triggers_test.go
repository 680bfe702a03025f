package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

func newTestTriggers(t *testing.T, svc *Service) *Triggers {
	t.Helper()

	tr := NewTriggers(svc, nil, svc.cfg.Sync, testLogger())
	tr.sleepFunc = func(context.Context, time.Duration) error { return nil }
	return tr
}

func TestTriggersArmOnMutation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newFakeStore(), newFakeRemote())
	tr := newTestTriggers(t, svc)

	svc.PutClient(&model.Client{Name: "Acme"})

	select {
	case <-tr.mutated:
	default:
		t.Fatal("a setter call must arm the auto-sync debounce")
	}
}

func TestMaybeAutoSyncGuards(t *testing.T) {
	t.Parallel()

	syncedCalls := func(fr *fakeRemote) int {
		n := 0
		for _, c := range fr.callLog() {
			if c.op == "probe" {
				n++
			}
		}
		return n
	}

	t.Run("clean client does not sync", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		svc := newTestService(t, newFakeStore(), fr)
		tr := newTestTriggers(t, svc)

		tr.maybeAutoSync(context.Background())
		assert.Zero(t, syncedCalls(fr))
	})

	t.Run("disabled auto-sync never fires", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		svc := newTestService(t, newFakeStore(), fr)
		svc.PutClient(&model.Client{Name: "Acme"})

		tr := newTestTriggers(t, svc)
		tr.syncCfg.AutoSync = false

		tr.maybeAutoSync(context.Background())
		assert.Zero(t, syncedCalls(fr))
	})

	t.Run("dirty online client syncs", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		svc := newTestService(t, newFakeStore(), fr)
		svc.PutClient(&model.Client{Name: "Acme"})

		tr := newTestTriggers(t, svc)

		tr.maybeAutoSync(context.Background())
		assert.Equal(t, 1, syncedCalls(fr))
		assert.False(t, svc.IsDirty())
	})
}

func TestProbeConnectivity(t *testing.T) {
	t.Parallel()

	t.Run("loss parks the engine offline", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		fs := newFakeStore()
		fs.loadSnap.Clients["cl1"] = &model.Client{ID: "cl1"}

		svc := newTestService(t, fs, fr)
		tr := newTestTriggers(t, svc)

		fr.pingErr = errDownloadMissing

		tr.probeConnectivity(context.Background())

		assert.False(t, svc.Online())
		assert.Equal(t, StatusOffline, svc.Status())
	})

	t.Run("reconnect with dirty data runs a full cycle", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		svc := newTestService(t, newFakeStore(), fr)
		svc.SetOnline(false)

		svc.PutClient(&model.Client{Name: "Acme"})
		require.True(t, svc.IsDirty())

		tr := newTestTriggers(t, svc)
		tr.probeConnectivity(context.Background())

		assert.True(t, svc.Online())
		assert.False(t, svc.IsDirty(), "the queued mutation pushed on reconnect")
		assert.Equal(t, StatusSynced, svc.Status())

		var pushed bool
		for _, c := range fr.callLog() {
			if c.op == "upsert" && c.table == model.TableClients {
				pushed = true
			}
		}
		assert.True(t, pushed)
	})

	t.Run("reconnect clean just refreshes", func(t *testing.T) {
		t.Parallel()

		fr := newFakeRemote()
		fr.rows[model.TableClients] = rawRows(`{"id":"cl1","name":"Acme"}`)

		svc := newTestService(t, newFakeStore(), fr)
		svc.SetOnline(false)

		tr := newTestTriggers(t, svc)
		tr.probeConnectivity(context.Background())

		assert.Contains(t, svc.View().Clients, "cl1")

		for _, c := range fr.callLog() {
			assert.NotEqual(t, "upsert", c.op, "a clean reconnect must not push")
		}
	})
}
