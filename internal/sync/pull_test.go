package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

func rawRows(rows ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestRunPullReplacesSnapshot(t *testing.T) {
	t.Parallel()

	fr := newFakeRemote()
	fr.rows[model.TableClients] = rawRows(`{"id":"cl1","name":"Acme"}`)
	fr.rows[model.TableCases] = rawRows(`{"id":"c1","client_id":"cl1","title":"Acme v. Roe"}`)

	local := model.NewSnapshot()
	local.Clients["stale"] = &model.Client{ID: "stale", Name: "No longer remote"}

	snap, err := runPull(context.Background(), fr, "owner1", local, testLogger())
	require.NoError(t, err)

	assert.Contains(t, snap.Clients, "cl1")
	assert.NotContains(t, snap.Clients, "stale", "pull replaces, it does not merge entity rows")
	assert.Equal(t, "Acme v. Roe", snap.Cases["c1"].Title)
}

func TestRunPullDropsUnplaceableRows(t *testing.T) {
	t.Parallel()

	fr := newFakeRemote()
	fr.rows[model.TableSessions] = rawRows(
		`{"id":"good","stage_id":"st1","session_date":"2026-03-01T10:00:00Z"}`,
		`{"id":"bad","stage_id":"st1","session_date":"someday"}`,
		`{"id":"orphan","session_date":"2026-03-01T10:00:00Z"}`,
	)

	snap, err := runPull(context.Background(), fr, "owner1", model.NewSnapshot(), testLogger())
	require.NoError(t, err)

	assert.Contains(t, snap.Sessions, "good")
	assert.NotContains(t, snap.Sessions, "bad")
	assert.NotContains(t, snap.Sessions, "orphan")
}

func TestRunPullNeverResurrectsTombstonedRows(t *testing.T) {
	t.Parallel()

	fr := newFakeRemote()
	fr.rows[model.TableCases] = rawRows(`{"id":"c1","client_id":"cl1","title":"deleted locally"}`)
	fr.rows[model.TableDocuments] = rawRows(`{"id":"d1","case_id":"c1","name":"x.pdf","storage_path":"o/c1/d1.pdf"}`)

	local := model.NewSnapshot()
	local.Deleted.Record(model.TableCases, "c1")
	local.Deleted.Record(model.TableDocuments, "d1")

	snap, err := runPull(context.Background(), fr, "owner1", local, testLogger())
	require.NoError(t, err)

	assert.NotContains(t, snap.Cases, "c1")
	assert.NotContains(t, snap.Documents, "d1")
	assert.True(t, snap.Deleted.Cases.Has("c1"), "the ledger rides along until a push confirms it")
}

func TestRunPullDocumentMerge(t *testing.T) {
	t.Parallel()

	fr := newFakeRemote()
	fr.rows[model.TableDocuments] = rawRows(
		// Known locally, mid-upload: remote metadata updates but the
		// replication state must not regress.
		`{"id":"uploading","case_id":"c1","name":"a.pdf","storage_path":"o/c1/uploading.pdf"}`,
		// Known locally and synced.
		`{"id":"have","case_id":"c1","name":"b.pdf","storage_path":"o/c1/have.pdf"}`,
		// New to this client, retrievable.
		`{"id":"new","case_id":"c1","name":"c.pdf","storage_path":"o/c1/new.pdf"}`,
		// New to this client, no stored content anywhere.
		`{"id":"pathless","case_id":"c1","name":"d.pdf"}`,
	)

	local := model.NewSnapshot()
	local.Documents["uploading"] = &model.CaseDocument{ID: "uploading", CaseID: "c1", LocalState: model.DocPendingUpload}
	local.Documents["have"] = &model.CaseDocument{ID: "have", CaseID: "c1", LocalState: model.DocSynced}
	local.Documents["local-only"] = &model.CaseDocument{ID: "local-only", CaseID: "c1", LocalState: model.DocPendingUpload}

	snap, err := runPull(context.Background(), fr, "owner1", local, testLogger())
	require.NoError(t, err)

	assert.Equal(t, model.DocPendingUpload, snap.Documents["uploading"].LocalState)
	assert.Equal(t, model.DocSynced, snap.Documents["have"].LocalState)
	assert.Equal(t, model.DocPendingDownload, snap.Documents["new"].LocalState)
	assert.Equal(t, model.DocError, snap.Documents["pathless"].LocalState)

	require.Contains(t, snap.Documents, "local-only", "a document queued for first upload survives the pull")
	assert.Equal(t, model.DocPendingUpload, snap.Documents["local-only"].LocalState)
}

func TestRunPullPropagatesSelectFailure(t *testing.T) {
	t.Parallel()

	fr := newFakeRemote()
	fr.selectErr[model.TableStages] = errDownloadMissing

	_, err := runPull(context.Background(), fr, "owner1", model.NewSnapshot(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages")
}
