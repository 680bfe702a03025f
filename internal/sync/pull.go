package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lawdeskhq/lawdesk/internal/model"
)

// runPull fetches the remote canonical dataset for ownerID, decodes
// it defensively, merges document sync flags three-way against the
// local snapshot, and returns the replacement snapshot. Records
// whose load-bearing date is unparseable are dropped with a warning;
// cosmetic fields coerce to safe defaults. The local tombstone
// ledger carries over, and rows matching a tombstoned id are skipped
// so a pull can never resurrect an entity the user deleted while the
// deletion was still unconfirmed.
func runPull(ctx context.Context, r Remote, ownerID string, local *model.Snapshot, logger *slog.Logger) (*model.Snapshot, error) {
	snap := model.NewSnapshot()
	snap.Deleted = local.Deleted

	type tableDecode struct {
		table string
		place func(json.RawMessage) error
	}

	plan := []tableDecode{
		{model.TableClients, func(p json.RawMessage) error {
			v, err := model.DecodeClient(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Clients.Has(v.ID) {
				snap.Clients[v.ID] = v
			}
			return nil
		}},
		{model.TableCases, func(p json.RawMessage) error {
			v, err := model.DecodeCase(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Cases.Has(v.ID) {
				snap.Cases[v.ID] = v
			}
			return nil
		}},
		{model.TableStages, func(p json.RawMessage) error {
			v, err := model.DecodeStage(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Stages.Has(v.ID) {
				snap.Stages[v.ID] = v
			}
			return nil
		}},
		{model.TableSessions, func(p json.RawMessage) error {
			v, err := model.DecodeSession(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Sessions.Has(v.ID) {
				snap.Sessions[v.ID] = v
			}
			return nil
		}},
		{model.TableEntries, func(p json.RawMessage) error {
			v, err := model.DecodeEntry(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Entries.Has(v.ID) {
				snap.Entries[v.ID] = v
			}
			return nil
		}},
		{model.TableInvoices, func(p json.RawMessage) error {
			v, err := model.DecodeInvoice(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Invoices.Has(v.ID) {
				snap.Invoices[v.ID] = v
			}
			return nil
		}},
		{model.TableItems, func(p json.RawMessage) error {
			v, err := model.DecodeInvoiceItem(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.InvoiceItems.Has(v.ID) {
				snap.InvoiceItems[v.ID] = v
			}
			return nil
		}},
		{model.TableAdminTasks, func(p json.RawMessage) error {
			v, err := model.DecodeAdminTask(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.AdminTasks.Has(v.ID) {
				snap.AdminTasks[v.ID] = v
			}
			return nil
		}},
		{model.TableAppts, func(p json.RawMessage) error {
			v, err := model.DecodeAppointment(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Appointments.Has(v.ID) {
				snap.Appointments[v.ID] = v
			}
			return nil
		}},
		{model.TableAssistants, func(p json.RawMessage) error {
			v, err := model.DecodeAssistant(p)
			if err != nil {
				return err
			}
			if !snap.Deleted.Assistants.Has(v.ID) {
				snap.Assistants[v.ID] = v
			}
			return nil
		}},
	}

	for _, td := range plan {
		rows, err := r.SelectRows(ctx, td.table, ownerID)
		if err != nil {
			return nil, fmt.Errorf("sync: pull %s: %w", td.table, err)
		}

		dropped := 0
		for _, row := range rows {
			if err := td.place(row); err != nil {
				dropped++
				logger.Warn("dropping unplaceable remote record",
					slog.String("table", td.table),
					slog.String("error", err.Error()),
				)
			}
		}

		logger.Debug("table pulled",
			slog.String("table", td.table),
			slog.Int("rows", len(rows)),
			slog.Int("dropped", dropped),
		)
	}

	docRows, err := r.SelectRows(ctx, model.TableDocuments, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sync: pull %s: %w", model.TableDocuments, err)
	}
	mergeDocuments(snap, local, docRows, logger)

	return snap, nil
}

// mergeDocuments performs the three-way document merge: every
// metadata field comes from remote, but LocalState is client-local
// and never remote-authoritative. A locally known document keeps its
// LocalState verbatim (a pending_upload must never be downgraded to
// pending_download by a pull). A document new to this client starts
// pending_download when a storage path exists, else error (there is
// no retrievable location). Purely local documents absent from the
// remote result, such as those queued for first upload, are
// preserved unchanged.
func mergeDocuments(snap, local *model.Snapshot, rows []json.RawMessage, logger *slog.Logger) {
	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		doc, err := model.DecodeDocument(row)
		if err != nil {
			logger.Warn("dropping unplaceable remote document",
				slog.String("error", err.Error()),
			)
			continue
		}
		if snap.Deleted.Documents.Has(doc.ID) {
			continue
		}

		seen[doc.ID] = struct{}{}

		if prev, ok := local.Documents[doc.ID]; ok {
			doc.LocalState = prev.LocalState
		} else if doc.StoragePath != "" {
			doc.LocalState = model.DocPendingDownload
		} else {
			doc.LocalState = model.DocError
		}

		snap.Documents[doc.ID] = doc
	}

	for id, doc := range local.Documents {
		if _, ok := seen[id]; !ok {
			snap.Documents[id] = doc
		}
	}
}
