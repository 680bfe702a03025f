package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

const testOwner = "owner1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	postponedTo := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	snap := model.NewSnapshot()
	snap.Clients["cl1"] = &model.Client{ID: "cl1", Name: "Acme", Email: "acme@example.com"}
	snap.Cases["c1"] = &model.Case{ID: "c1", ClientID: "cl1", Title: "Acme v. Roe", Court: "district"}
	snap.Stages["st1"] = &model.Stage{ID: "st1", CaseID: "c1", Name: "first instance"}
	snap.Sessions["s1"] = &model.Session{
		ID: "s1", StageID: "st1",
		Date:        time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		Postponed:   true,
		PostponedTo: &postponedTo,
		Reason:      "expert report pending",
	}
	snap.Entries["e1"] = &model.AccountingEntry{
		ID: "e1", ClientID: "cl1",
		Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Amount: 1200.50, Kind: model.EntryIncome,
	}
	snap.AdminTasks["t1"] = &model.AdminTask{ID: "t1", Title: "file brief", Due: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	snap.Documents["d1"] = &model.CaseDocument{
		ID: "d1", CaseID: "c1", OwnerID: testOwner, Name: "contract.pdf",
		StoragePath: "owner1/c1/d1.pdf", LocalState: model.DocPendingUpload, Size: 8,
	}
	snap.Deleted.Record(model.TableSessions, "gone-session")
	snap.Deleted.Record(model.TableDocuments, "gone-doc")
	snap.Deleted.DocumentPaths = map[string]string{"gone-doc": "owner1/c1/gone-doc.pdf"}

	require.NoError(t, s.Save(ctx, testOwner, snap))

	got, err := s.Load(ctx, testOwner)
	require.NoError(t, err)

	assert.Equal(t, snap.EntityCount(), got.EntityCount())
	assert.Equal(t, "Acme", got.Clients["cl1"].Name)
	assert.Equal(t, "c1", got.Stages["st1"].CaseID)

	sess := got.Sessions["s1"]
	require.NotNil(t, sess)
	assert.True(t, sess.Postponed)
	require.NotNil(t, sess.PostponedTo)
	assert.True(t, sess.PostponedTo.Equal(postponedTo))

	assert.Equal(t, model.EntryIncome, got.Entries["e1"].Kind)
	assert.InDelta(t, 1200.50, got.Entries["e1"].Amount, 0.001)

	doc := got.Documents["d1"]
	require.NotNil(t, doc)
	assert.Equal(t, model.DocPendingUpload, doc.LocalState, "local replication state must survive a reload")
	assert.Equal(t, "owner1/c1/d1.pdf", doc.StoragePath)

	assert.True(t, got.Deleted.Sessions.Has("gone-session"))
	assert.True(t, got.Deleted.Documents.Has("gone-doc"))
	assert.Equal(t, "owner1/c1/gone-doc.pdf", got.Deleted.DocumentPaths["gone-doc"])
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	first := model.NewSnapshot()
	first.Clients["cl1"] = &model.Client{ID: "cl1", Name: "Acme"}
	first.Clients["cl2"] = &model.Client{ID: "cl2", Name: "Globex"}
	require.NoError(t, s.Save(ctx, testOwner, first))

	second := model.NewSnapshot()
	second.Clients["cl1"] = &model.Client{ID: "cl1", Name: "Acme renamed"}
	require.NoError(t, s.Save(ctx, testOwner, second))

	got, err := s.Load(ctx, testOwner)
	require.NoError(t, err)

	assert.Len(t, got.Clients, 1)
	assert.Equal(t, "Acme renamed", got.Clients["cl1"].Name)
}

func TestSaveIsOwnerScoped(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	mine := model.NewSnapshot()
	mine.Clients["cl1"] = &model.Client{ID: "cl1", Name: "Mine"}
	require.NoError(t, s.Save(ctx, "owner-a", mine))

	theirs := model.NewSnapshot()
	theirs.Clients["cl2"] = &model.Client{ID: "cl2", Name: "Theirs"}
	require.NoError(t, s.Save(ctx, "owner-b", theirs))

	got, err := s.Load(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, got.Clients, 1)
	assert.Contains(t, got.Clients, "cl1")
}

func TestLoadSkipsUndecodableRows(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	snap := model.NewSnapshot()
	snap.Clients["cl1"] = &model.Client{ID: "cl1", Name: "Acme"}
	require.NoError(t, s.Save(ctx, testOwner, snap))

	// A session without a parseable date, as an older version might
	// have written it.
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (owner_id, id, payload) VALUES (?, ?, ?)",
		testOwner, "bad", `{"id":"bad","stage_id":"st1","session_date":"not a date"}`)
	require.NoError(t, err)

	got, err := s.Load(ctx, testOwner)
	require.NoError(t, err)

	assert.Contains(t, got.Clients, "cl1")
	assert.Empty(t, got.Sessions, "the broken row is skipped, not fatal")
}

func TestBlobs(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetBlob(ctx, "missing")
	require.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, s.PutBlob(ctx, "d1", []byte("v1")))

	got, err := s.GetBlob(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Upsert overwrites.
	require.NoError(t, s.PutBlob(ctx, "d1", []byte("v2")))
	got, err = s.GetBlob(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.DeleteBlob(ctx, "d1"))
	_, err = s.GetBlob(ctx, "d1")
	require.ErrorIs(t, err, ErrBlobNotFound)

	// Deleting an absent blob is not an error.
	require.NoError(t, s.DeleteBlob(ctx, "d1"))
}

func TestMeta(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetMeta(ctx, testOwner, "last_export_day")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta(ctx, testOwner, "last_export_day", "2026-09-01"))
	require.NoError(t, s.SetMeta(ctx, testOwner, "last_export_day", "2026-09-02"))

	v, err = s.GetMeta(ctx, testOwner, "last_export_day")
	require.NoError(t, err)
	assert.Equal(t, "2026-09-02", v)

	v, err = s.GetMeta(ctx, "other-owner", "last_export_day")
	require.NoError(t, err)
	assert.Empty(t, v, "meta is owner scoped")
}
