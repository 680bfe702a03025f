package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lawdeskhq/lawdesk/internal/model"
	"github.com/lawdeskhq/lawdesk/internal/remote"
)

// DocumentFile is one file handed to AddDocuments.
type DocumentFile struct {
	Name     string
	MimeType string
	Content  []byte
}

// BlobPath builds the deterministic object-storage path for a
// document: {ownerID}/{caseID}/{docID}{ext}. The extension comes
// from the NFC-normalized file name so the same visual name always
// produces the same path regardless of how the OS composed it.
func BlobPath(ownerID, caseID, docID, name string) string {
	return ownerID + "/" + caseID + "/" + docID + path.Ext(norm.NFC.String(name))
}

// AddDocuments attaches files to a case: blob content goes into the
// local blob store, metadata enters the snapshot in pending_upload,
// and a blob pass is scheduled. Returns the created metadata records.
func (s *Service) AddDocuments(ctx context.Context, caseID string, files []DocumentFile) ([]*model.CaseDocument, error) {
	docs := make([]*model.CaseDocument, 0, len(files))

	for _, f := range files {
		docID := model.NewID()

		if err := s.local.PutBlob(ctx, docID, f.Content); err != nil {
			return docs, fmt.Errorf("sync: caching blob for %s: %w", f.Name, err)
		}

		doc := &model.CaseDocument{
			ID:          docID,
			CaseID:      caseID,
			OwnerID:     s.cfg.OwnerID,
			Name:        f.Name,
			MimeType:    f.MimeType,
			Size:        int64(len(f.Content)),
			AddedAt:     s.now(),
			StoragePath: BlobPath(s.cfg.OwnerID, caseID, docID, f.Name),
			LocalState:  model.DocPendingUpload,
			UpdatedAt:   s.now(),
		}

		s.mutate(func(snap *model.Snapshot) { snap.Documents[doc.ID] = doc })
		docs = append(docs, doc)
	}

	go s.RunBlobPass(context.WithoutCancel(ctx))

	return docs, nil
}

// DeleteDocument removes a document: metadata leaves the snapshot
// immediately (tombstoned, with its storage path remembered for
// remote blob removal) and the local blob cache entry is dropped.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	s.mutate(func(snap *model.Snapshot) { snap.DeleteDocument(id) })

	if err := s.local.DeleteBlob(ctx, id); err != nil {
		return fmt.Errorf("sync: deleting cached blob %s: %w", id, err)
	}

	return nil
}

// RetryDocument resets a document out of the terminal error state so
// the next blob pass attempts it again: back to pending_upload when
// the blob is cached locally, else pending_download when a storage
// path exists.
func (s *Service) RetryDocument(ctx context.Context, id string) error {
	_, blobErr := s.local.GetBlob(ctx, id)
	hasLocal := blobErr == nil

	var unknown bool
	s.mutate(func(snap *model.Snapshot) {
		doc, ok := snap.Documents[id]
		if !ok {
			unknown = true
			return
		}
		switch {
		case hasLocal:
			doc.LocalState = model.DocPendingUpload
		case doc.StoragePath != "":
			doc.LocalState = model.DocPendingDownload
		default:
			doc.LocalState = model.DocError
		}
	})

	if unknown {
		return fmt.Errorf("sync: unknown document %s", id)
	}

	go s.RunBlobPass(context.WithoutCancel(ctx))

	return nil
}

// RunBlobPass drives every document's upload/download state machine
// one step. Single-flight guarded and independent of the main data
// sync cycle: a slow download never blocks a push. No-op while
// offline.
func (s *Service) RunBlobPass(ctx context.Context) {
	if !s.online.Load() {
		return
	}
	if !s.blobPass.CompareAndSwap(false, true) {
		return
	}
	defer s.blobPass.Store(false)

	for _, doc := range s.pendingDocuments() {
		var err error

		switch doc.LocalState {
		case model.DocPendingUpload:
			err = s.uploadDocument(ctx, doc)
		case model.DocPendingDownload:
			err = s.downloadDocument(ctx, doc)
		}

		if err != nil {
			s.logger.Warn("blob pass item failed",
				slog.String("doc", doc.ID),
				slog.String("state", string(doc.LocalState)),
				slog.String("error", err.Error()),
			)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// pendingDocuments snapshots the documents needing blob work.
func (s *Service) pendingDocuments() []*model.CaseDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*model.CaseDocument
	for _, doc := range s.snap.Documents {
		if doc.LocalState == model.DocPendingUpload || doc.LocalState == model.DocPendingDownload {
			cp := *doc
			pending = append(pending, &cp)
		}
	}

	return pending
}

// uploadDocument pushes the cached blob to the deterministic object
// path with overwrite semantics. Any failure is terminal for the
// document (error state) until an external actor retries.
func (s *Service) uploadDocument(ctx context.Context, doc *model.CaseDocument) error {
	content, err := s.local.GetBlob(ctx, doc.ID)
	if err != nil {
		s.setDocState(doc.ID, model.DocError, "")
		return fmt.Errorf("sync: local blob missing for upload: %w", err)
	}

	storagePath := doc.StoragePath
	if storagePath == "" {
		storagePath = BlobPath(doc.OwnerID, doc.CaseID, doc.ID, doc.Name)
	}

	if err := s.remote.UploadObject(ctx, storagePath, doc.MimeType, content); err != nil {
		s.setDocState(doc.ID, model.DocError, "")
		return err
	}

	s.setDocState(doc.ID, model.DocSynced, storagePath)
	s.logger.Info("document uploaded",
		slog.String("doc", doc.ID),
		slog.String("path", storagePath),
	)

	return nil
}

// downloadDocument fetches the remote blob into the local cache. A
// confirmed not-found or permission failure is permanent (error
// state); anything else, network timeouts included, leaves the
// document at pending_download for the next pass. An ambiguous
// failure must never be classified as permanent.
func (s *Service) downloadDocument(ctx context.Context, doc *model.CaseDocument) error {
	if doc.StoragePath == "" {
		s.setDocState(doc.ID, model.DocError, "")
		return errors.New("sync: document has no storage path")
	}

	s.setDocState(doc.ID, model.DocDownloading, "")

	content, err := s.remote.DownloadObject(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrForbidden) {
			s.setDocState(doc.ID, model.DocError, "")
			return err
		}

		s.setDocState(doc.ID, model.DocPendingDownload, "")
		return err
	}

	if err := s.local.PutBlob(ctx, doc.ID, content); err != nil {
		s.setDocState(doc.ID, model.DocPendingDownload, "")
		return fmt.Errorf("sync: caching downloaded blob: %w", err)
	}

	s.setDocState(doc.ID, model.DocSynced, "")

	return nil
}

// setDocState updates a document's replication state (and storage
// path when newPath is non-empty), persisting through the debounced
// saver. State changes do not mark dirty: replication progress is
// client-local and needs no push.
func (s *Service) setDocState(id string, state model.DocState, newPath string) {
	s.mu.Lock()
	doc, ok := s.snap.Documents[id]
	if ok {
		doc.LocalState = state
		if newPath != "" {
			doc.StoragePath = newPath
		}
	}
	clone := s.snap.Clone()
	s.mu.Unlock()

	if ok {
		s.saver.Request(clone)
	}
}

// GetDocumentFile returns a document's content: the local cache if
// present; otherwise, when the document is pending download and the
// process is online, a synchronous fetch-and-cache; otherwise
// ErrBlobUnavailable.
func (s *Service) GetDocumentFile(ctx context.Context, id string) ([]byte, error) {
	content, err := s.local.GetBlob(ctx, id)
	if err == nil {
		return content, nil
	}

	s.mu.Lock()
	doc, ok := s.snap.Documents[id]
	var state model.DocState
	var storagePath string
	if ok {
		state = doc.LocalState
		storagePath = doc.StoragePath
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("sync: unknown document %s: %w", id, ErrBlobUnavailable)
	}
	if state != model.DocPendingDownload || !s.online.Load() || storagePath == "" {
		return nil, ErrBlobUnavailable
	}

	content, err = s.remote.DownloadObject(ctx, storagePath)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrForbidden) {
			s.setDocState(id, model.DocError, "")
		}
		return nil, fmt.Errorf("sync: fetching document %s: %w", id, err)
	}

	if err := s.local.PutBlob(ctx, id, content); err != nil {
		return nil, fmt.Errorf("sync: caching document %s: %w", id, err)
	}

	s.setDocState(id, model.DocSynced, "")

	return content, nil
}

// HasPendingBlobs reports whether any document still needs blob work.
func (s *Service) HasPendingBlobs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.snap.Documents {
		if doc.LocalState == model.DocPendingUpload || doc.LocalState == model.DocPendingDownload {
			return true
		}
	}

	return false
}

// blobPassInterval paces the background blob loop in watch mode.
const blobPassInterval = 15 * time.Second
