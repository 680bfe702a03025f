// Package store implements the durable local cache: the structured
// entity snapshot, the tombstone ledger, document metadata, and
// document blob content, all in one embedded SQLite database with
// WAL mode. Snapshot writes go through a debounced saver with a
// documented 1.5 second coalescing window.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/lawdeskhq/lawdesk/internal/model"
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// ErrBlobNotFound indicates no blob content is cached for a document.
var ErrBlobNotFound = errors.New("store: blob not found")

// Store persists per-owner snapshots, tombstones, and blobs in an
// embedded SQLite database. Use ":memory:" as the path in tests.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	blobStmts blobStatements
	metaStmts metaStatements
}

// Statement groups for the hot paths (blob access during document
// sync, meta reads from triggers). Snapshot load/save build their
// statements per call inside a transaction.
type blobStatements struct {
	get, put, del *sql.Stmt
}

type metaStatements struct {
	get, set *sql.Stmt
}

// Open opens (or creates) the database at dbPath, applies migrations,
// and prepares the hot-path statements.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening local store", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	logger.Info("local store ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	if s.blobStmts.get, err = s.db.PrepareContext(ctx, "SELECT content FROM blobs WHERE doc_id = ?"); err != nil {
		return err
	}
	if s.blobStmts.put, err = s.db.PrepareContext(ctx,
		"INSERT INTO blobs (doc_id, content) VALUES (?, ?) ON CONFLICT(doc_id) DO UPDATE SET content = excluded.content"); err != nil {
		return err
	}
	if s.blobStmts.del, err = s.db.PrepareContext(ctx, "DELETE FROM blobs WHERE doc_id = ?"); err != nil {
		return err
	}
	if s.metaStmts.get, err = s.db.PrepareContext(ctx, "SELECT value FROM meta WHERE owner_id = ? AND key = ?"); err != nil {
		return err
	}
	if s.metaStmts.set, err = s.db.PrepareContext(ctx,
		"INSERT INTO meta (owner_id, key, value) VALUES (?, ?, ?) ON CONFLICT(owner_id, key) DO UPDATE SET value = excluded.value"); err != nil {
		return err
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// decoder adapts a model decode function for loadTable.
type decoder func(snap *model.Snapshot, id string, payload json.RawMessage) error

// Load reads the full snapshot for ownerID. Rows that fail to decode
// are skipped with a warning; they can only appear if an older
// version wrote a shape this version no longer accepts.
func (s *Store) Load(ctx context.Context, ownerID string) (*model.Snapshot, error) {
	snap := model.NewSnapshot()

	tables := map[string]decoder{
		model.TableClients: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeClient(p)
			if err == nil {
				sn.Clients[v.ID] = v
			}
			return err
		},
		model.TableCases: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeCase(p)
			if err == nil {
				sn.Cases[v.ID] = v
			}
			return err
		},
		model.TableStages: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeStage(p)
			if err == nil {
				sn.Stages[v.ID] = v
			}
			return err
		},
		model.TableSessions: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeSession(p)
			if err == nil {
				sn.Sessions[v.ID] = v
			}
			return err
		},
		model.TableEntries: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeEntry(p)
			if err == nil {
				sn.Entries[v.ID] = v
			}
			return err
		},
		model.TableInvoices: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeInvoice(p)
			if err == nil {
				sn.Invoices[v.ID] = v
			}
			return err
		},
		model.TableItems: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeInvoiceItem(p)
			if err == nil {
				sn.InvoiceItems[v.ID] = v
			}
			return err
		},
		model.TableAdminTasks: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeAdminTask(p)
			if err == nil {
				sn.AdminTasks[v.ID] = v
			}
			return err
		},
		model.TableAppts: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeAppointment(p)
			if err == nil {
				sn.Appointments[v.ID] = v
			}
			return err
		},
		model.TableAssistants: func(sn *model.Snapshot, _ string, p json.RawMessage) error {
			v, err := model.DecodeAssistant(p)
			if err == nil {
				sn.Assistants[v.ID] = v
			}
			return err
		},
	}

	for table, dec := range tables {
		if err := s.loadTable(ctx, table, ownerID, snap, dec); err != nil {
			return nil, err
		}
	}

	if err := s.loadDocuments(ctx, ownerID, snap); err != nil {
		return nil, err
	}
	if err := s.loadTombstones(ctx, ownerID, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) loadTable(ctx context.Context, table, ownerID string, snap *model.Snapshot, dec decoder) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, payload FROM %s WHERE owner_id = ?", table), ownerID)
	if err != nil {
		return fmt.Errorf("store: loading %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("store: scanning %s row: %w", table, err)
		}

		if err := dec(snap, id, json.RawMessage(payload)); err != nil {
			s.logger.Warn("skipping undecodable cached row",
				slog.String("table", table),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return rows.Err()
}

func (s *Store) loadDocuments(ctx context.Context, ownerID string, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, local_state FROM documents WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("store: loading documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, payload, localState string
		if err := rows.Scan(&id, &payload, &localState); err != nil {
			return fmt.Errorf("store: scanning document row: %w", err)
		}

		doc, err := model.DecodeDocument(json.RawMessage(payload))
		if err != nil {
			s.logger.Warn("skipping undecodable cached document",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		doc.LocalState = model.DocState(localState)
		snap.Documents[doc.ID] = doc
	}

	return rows.Err()
}

func (s *Store) loadTombstones(ctx context.Context, ownerID string, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT entity_type, id, storage_path FROM tombstones WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("store: loading tombstones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType, id, storagePath string
		if err := rows.Scan(&entityType, &id, &storagePath); err != nil {
			return fmt.Errorf("store: scanning tombstone row: %w", err)
		}

		snap.Deleted.Record(entityType, id)

		if entityType == model.TableDocuments {
			if snap.Deleted.DocumentPaths == nil {
				snap.Deleted.DocumentPaths = make(map[string]string)
			}
			snap.Deleted.DocumentPaths[id] = storagePath
		}
	}

	return rows.Err()
}

// Save atomically replaces the persisted snapshot for ownerID with
// snap: every entity table, the document table, and the tombstone
// ledger, all in one transaction. Blob content is managed separately
// through PutBlob/DeleteBlob and is not touched here.
func (s *Store) Save(ctx context.Context, ownerID string, snap *model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range model.AllTables {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE owner_id = ?", table), ownerID); err != nil {
			return fmt.Errorf("store: clearing %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tombstones WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("store: clearing tombstones: %w", err)
	}

	if err := s.insertEntities(ctx, tx, ownerID, snap); err != nil {
		return err
	}
	if err := s.insertTombstones(ctx, tx, ownerID, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit save tx: %w", err)
	}

	s.logger.Debug("snapshot saved",
		slog.String("owner", ownerID),
		slog.Int("entities", snap.EntityCount()),
	)

	return nil
}

func (s *Store) insertEntities(ctx context.Context, tx *sql.Tx, ownerID string, snap *model.Snapshot) error {
	insert := func(table, id string, row any) error {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("store: encoding %s %s: %w", table, id, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (owner_id, id, payload) VALUES (?, ?, ?)", table),
			ownerID, id, string(payload)); err != nil {
			return fmt.Errorf("store: inserting %s %s: %w", table, id, err)
		}
		return nil
	}

	for id, v := range snap.Clients {
		if err := insert(model.TableClients, id, model.EncodeClient(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Cases {
		if err := insert(model.TableCases, id, model.EncodeCase(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Stages {
		if err := insert(model.TableStages, id, model.EncodeStage(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Sessions {
		if err := insert(model.TableSessions, id, model.EncodeSession(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Entries {
		if err := insert(model.TableEntries, id, model.EncodeEntry(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Invoices {
		if err := insert(model.TableInvoices, id, model.EncodeInvoice(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.InvoiceItems {
		if err := insert(model.TableItems, id, model.EncodeInvoiceItem(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.AdminTasks {
		if err := insert(model.TableAdminTasks, id, model.EncodeAdminTask(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Appointments {
		if err := insert(model.TableAppts, id, model.EncodeAppointment(v, ownerID)); err != nil {
			return err
		}
	}
	for id, v := range snap.Assistants {
		if err := insert(model.TableAssistants, id, model.EncodeAssistant(v, ownerID)); err != nil {
			return err
		}
	}

	for id, v := range snap.Documents {
		payload, err := json.Marshal(model.EncodeDocument(v, ownerID))
		if err != nil {
			return fmt.Errorf("store: encoding document %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (owner_id, id, payload, local_state) VALUES (?, ?, ?, ?)",
			ownerID, id, string(payload), string(v.LocalState)); err != nil {
			return fmt.Errorf("store: inserting document %s: %w", id, err)
		}
	}

	return nil
}

func (s *Store) insertTombstones(ctx context.Context, tx *sql.Tx, ownerID string, snap *model.Snapshot) error {
	for _, table := range model.AllTables {
		for id := range snap.Deleted.ByTable(table) {
			storagePath := ""
			if table == model.TableDocuments {
				storagePath = snap.Deleted.DocumentPaths[id]
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tombstones (owner_id, entity_type, id, storage_path) VALUES (?, ?, ?, ?)",
				ownerID, table, id, storagePath); err != nil {
				return fmt.Errorf("store: inserting tombstone %s/%s: %w", table, id, err)
			}
		}
	}

	return nil
}

// GetBlob returns the cached blob content for a document, or
// ErrBlobNotFound.
func (s *Store) GetBlob(ctx context.Context, docID string) ([]byte, error) {
	var content []byte
	err := s.blobStmts.get.QueryRowContext(ctx, docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get blob %s: %w", docID, err)
	}

	return content, nil
}

// PutBlob stores (or overwrites) blob content for a document.
func (s *Store) PutBlob(ctx context.Context, docID string, content []byte) error {
	if _, err := s.blobStmts.put.ExecContext(ctx, docID, content); err != nil {
		return fmt.Errorf("store: put blob %s: %w", docID, err)
	}

	return nil
}

// DeleteBlob removes cached blob content. Deleting an absent blob
// succeeds.
func (s *Store) DeleteBlob(ctx context.Context, docID string) error {
	if _, err := s.blobStmts.del.ExecContext(ctx, docID); err != nil {
		return fmt.Errorf("store: delete blob %s: %w", docID, err)
	}

	return nil
}

// GetMeta returns the value for a per-owner meta key, or "" if unset.
func (s *Store) GetMeta(ctx context.Context, ownerID, key string) (string, error) {
	var value string
	err := s.metaStmts.get.QueryRowContext(ctx, ownerID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get meta %s: %w", key, err)
	}

	return value, nil
}

// SetMeta stores a per-owner meta key/value pair.
func (s *Store) SetMeta(ctx context.Context, ownerID, key, value string) error {
	if _, err := s.metaStmts.set.ExecContext(ctx, ownerID, key, value); err != nil {
		return fmt.Errorf("store: set meta %s: %w", key, err)
	}

	return nil
}
