package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// metaLastExportDay is the meta key recording the last calendar day
// an automatic export ran.
const metaLastExportDay = "last_export_day"

// exportFile is the on-disk export format: one JSON document holding
// every table as wire rows, so an export round-trips through the
// same decoders as a pull.
type exportFile struct {
	ExportedAt string           `json:"exported_at"`
	OwnerID    string           `json:"owner_id"`
	Tables     map[string][]any `json:"tables"`
}

// ExportData serializes the full local snapshot to a dated JSON file
// under the data directory and returns its path. Export never
// touches sync state; a failed export is logged by callers and
// otherwise ignored.
func (s *Service) ExportData(ctx context.Context) (string, error) {
	snap := s.View()

	out := exportFile{
		ExportedAt: s.now().UTC().Format(time.RFC3339),
		OwnerID:    s.cfg.OwnerID,
		Tables:     flatten(snap, s.cfg.OwnerID),
	}
	if out.Tables == nil {
		out.Tables = make(map[string][]any)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sync: encoding export: %w", err)
	}

	dir := filepath.Join(s.cfg.DataDir, "exports")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sync: creating export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("lawdesk-export-%s.json", s.now().Format("2006-01-02")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("sync: writing export: %w", err)
	}

	s.logger.Info("snapshot exported",
		slog.String("path", path),
		slog.Int("entities", snap.EntityCount()),
	)

	return path, nil
}

// MaybeDailyExport runs ExportData at most once per calendar day,
// tracked in the meta table. Failures are logged and swallowed; the
// backup is best-effort and never affects sync state.
func (s *Service) MaybeDailyExport(ctx context.Context) {
	today := s.now().Format("2006-01-02")

	last, err := s.local.GetMeta(ctx, s.cfg.OwnerID, metaLastExportDay)
	if err != nil {
		s.logger.Warn("daily export: reading marker", slog.String("error", err.Error()))
		return
	}
	if last == today {
		return
	}

	if _, err := s.ExportData(ctx); err != nil {
		s.logger.Warn("daily export failed", slog.String("error", err.Error()))
		return
	}

	if err := s.local.SetMeta(ctx, s.cfg.OwnerID, metaLastExportDay, today); err != nil {
		s.logger.Warn("daily export: writing marker", slog.String("error", err.Error()))
	}
}
