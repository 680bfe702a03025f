package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lawdeskhq/lawdesk/internal/model"
	"github.com/lawdeskhq/lawdesk/internal/remote"
)

// Remote is the backend surface the engines consume, satisfied by
// *remote.Client. Defined at the consumer so tests inject fakes.
type Remote interface {
	Probe(ctx context.Context, tables []string) error
	SelectRows(ctx context.Context, table, ownerID string) ([]json.RawMessage, error)
	UpsertRows(ctx context.Context, table string, rows []any) error
	DeleteRows(ctx context.Context, table, ownerID string, ids []string) error
	UploadObject(ctx context.Context, path, contentType string, data []byte) error
	DownloadObject(ctx context.Context, path string) ([]byte, error)
	RemoveObject(ctx context.Context, path string) error
	Ping(ctx context.Context) error
}

// pushLevels are the four strictly sequential dependency levels of
// the upsert phase. Tables within a level have no foreign keys into
// each other and upsert concurrently; a level starts only after the
// previous one fully succeeded. Documents ride at level 3 (they
// reference cases, committed at level 2).
var pushLevels = [][]string{
	{model.TableClients, model.TableAssistants, model.TableAdminTasks, model.TableAppts},
	{model.TableCases, model.TableEntries},
	{model.TableStages, model.TableInvoices, model.TableDocuments},
	{model.TableSessions, model.TableItems},
}

// runPush writes the full entity graph and the tombstone ledger to
// the remote store: deletes first (children before ancestors, so the
// backend's FK constraints hold), then per-table upsert batches in
// dependency order. On full success the confirmed tombstones are
// purged from snap's ledger. Levels already committed when a later
// level fails are not rolled back; the dirty flag stays set and the
// next cycle re-upserts idempotently.
func runPush(ctx context.Context, r Remote, ownerID string, snap *model.Snapshot, logger *slog.Logger) error {
	if err := pushDeletes(ctx, r, ownerID, snap, logger); err != nil {
		return fmt.Errorf("sync: delete phase: %w", err)
	}

	batches := flatten(snap, ownerID)

	for level, tables := range pushLevels {
		g, gctx := errgroup.WithContext(ctx)

		for _, table := range tables {
			rows := batches[table]
			if len(rows) == 0 {
				continue
			}

			g.Go(func() error {
				if err := r.UpsertRows(gctx, table, rows); err != nil {
					return err
				}

				logger.Debug("level upserted",
					slog.Int("level", level+1),
					slog.String("table", table),
					slog.Int("rows", len(rows)),
				)

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return fmt.Errorf("sync: upsert level %d: %w", level+1, err)
		}
	}

	purgeConfirmed(snap)

	return nil
}

// pushDeletes issues remote deletes for every tombstoned id,
// descendants before ancestors. A not-found response is success: the
// row is already absent, which is the state the tombstone wants.
// Document tombstones additionally remove the remote blob.
func pushDeletes(ctx context.Context, r Remote, ownerID string, snap *model.Snapshot, logger *slog.Logger) error {
	for docID := range snap.Deleted.Documents {
		path := snap.Deleted.DocumentPaths[docID]
		if path == "" {
			continue // never uploaded, nothing stored remotely
		}

		if err := r.RemoveObject(ctx, path); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return err
		}
	}

	// Reverse dependency order: leaves first.
	for i := len(model.AllTables) - 1; i >= 0; i-- {
		table := model.AllTables[i]

		ids := idList(snap.Deleted.ByTable(table))
		if len(ids) == 0 {
			continue
		}

		err := r.DeleteRows(ctx, table, ownerID, ids)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return err
		}
		if errors.Is(err, remote.ErrNotFound) {
			logger.Debug("delete target already absent",
				slog.String("table", table),
				slog.Int("ids", len(ids)),
			)
		}
	}

	return nil
}

// flatten denormalizes the snapshot into per-table wire batches.
// Parent ids travel as plain columns on each row, so the remote
// store needs no knowledge of the containment tree beyond its FK
// constraints.
func flatten(snap *model.Snapshot, ownerID string) map[string][]any {
	batches := make(map[string][]any, len(model.AllTables))

	for _, v := range snap.Clients {
		batches[model.TableClients] = append(batches[model.TableClients], model.EncodeClient(v, ownerID))
	}
	for _, v := range snap.Assistants {
		batches[model.TableAssistants] = append(batches[model.TableAssistants], model.EncodeAssistant(v, ownerID))
	}
	for _, v := range snap.AdminTasks {
		batches[model.TableAdminTasks] = append(batches[model.TableAdminTasks], model.EncodeAdminTask(v, ownerID))
	}
	for _, v := range snap.Appointments {
		batches[model.TableAppts] = append(batches[model.TableAppts], model.EncodeAppointment(v, ownerID))
	}
	for _, v := range snap.Cases {
		batches[model.TableCases] = append(batches[model.TableCases], model.EncodeCase(v, ownerID))
	}
	for _, v := range snap.Entries {
		batches[model.TableEntries] = append(batches[model.TableEntries], model.EncodeEntry(v, ownerID))
	}
	for _, v := range snap.Stages {
		batches[model.TableStages] = append(batches[model.TableStages], model.EncodeStage(v, ownerID))
	}
	for _, v := range snap.Invoices {
		batches[model.TableInvoices] = append(batches[model.TableInvoices], model.EncodeInvoice(v, ownerID))
	}
	for _, v := range snap.Documents {
		batches[model.TableDocuments] = append(batches[model.TableDocuments], model.EncodeDocument(v, ownerID))
	}
	for _, v := range snap.Sessions {
		batches[model.TableSessions] = append(batches[model.TableSessions], model.EncodeSession(v, ownerID))
	}
	for _, v := range snap.InvoiceItems {
		batches[model.TableItems] = append(batches[model.TableItems], model.EncodeInvoiceItem(v, ownerID))
	}

	return batches
}

// purgeConfirmed empties the tombstone ledger after the remote store
// confirmed every deletion.
func purgeConfirmed(snap *model.Snapshot) {
	for _, table := range model.AllTables {
		snap.Deleted.Purge(table, idList(snap.Deleted.ByTable(table)))
	}
}

func idList(set model.IDSet) []string {
	if len(set) == 0 {
		return nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}

	return ids
}
