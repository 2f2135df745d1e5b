package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/storage"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var pdfMagic = []byte("%PDF")

// DocumentService owns the lifecycle of uploaded documents: upload, listing,
// status, re-ingestion and deletion.
type DocumentService struct {
	documents   DocumentStore
	objects     storage.ObjectStore
	vectors     *vectorstore.Gateway
	progress    ProgressReader
	dispatcher  Dispatcher
	maxFileSize int64
}

func NewDocumentService(documents DocumentStore, objects storage.ObjectStore, vectors *vectorstore.Gateway, progress ProgressReader, dispatcher Dispatcher, maxFileSize int64) *DocumentService {
	return &DocumentService{
		documents:   documents,
		objects:     objects,
		vectors:     vectors,
		progress:    progress,
		dispatcher:  dispatcher,
		maxFileSize: maxFileSize,
	}
}

// UploadInput describes a file being uploaded.
type UploadInput struct {
	OwnerID  string
	Title    string
	Filename string
	Size     int64
	Body     io.Reader
}

// Upload stores the file, records a PENDING document and dispatches its
// ingestion. Nothing is stored for a body that is not a PDF.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if s.maxFileSize > 0 && in.Size > s.maxFileSize {
		return nil, apperrors.Validation("upload", ErrFileTooLarge)
	}

	header := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(in.Body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperrors.Validation("read upload", err)
	}
	if !bytes.Equal(header[:n], pdfMagic) {
		return nil, apperrors.Validation("upload", ErrInvalidPDF)
	}
	body := io.MultiReader(bytes.NewReader(header[:n]), in.Body)

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(in.Filename, ".pdf")
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:            uuid.NewString(),
		OwnerID:       in.OwnerID,
		Title:         title,
		Filename:      in.Filename,
		FileSizeBytes: in.Size,
		Status:        models.StatusPending,
		UploadedAt:    now,
		UpdatedAt:     now,
	}
	doc.StorageKey = objectKey(now, doc.ID, title)

	log := logger.With("document_id", doc.ID, "owner_id", in.OwnerID)

	locator, err := s.objects.Upload(ctx, doc.StorageKey, body, in.Size, "application/pdf")
	if err != nil {
		return nil, err
	}
	log.Info("Document uploaded", "locator", locator, "size", in.Size)

	if err := s.documents.Create(ctx, doc); err != nil {
		s.removeObject(ctx, doc.StorageKey)
		return nil, apperrors.Storage("create document", err)
	}

	taskID, err := s.dispatcher.DispatchIngestion(ctx, doc.ID)
	if err != nil {
		log.Error("Failed to dispatch ingestion", "error", err)
		s.removeObject(ctx, doc.StorageKey)
		if delErr := s.documents.Delete(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			log.Error("Failed to remove document after dispatch failure", "error", delErr)
		}
		return nil, fmt.Errorf("dispatch ingestion: %w", err)
	}

	if err := s.documents.SetTaskID(ctx, doc.ID, taskID); err != nil {
		log.Warn("Failed to persist task id", "task_id", taskID, "error", err)
	}

	// an inline dispatcher may already have moved the document on
	if fresh, err := s.documents.Get(ctx, doc.ID); err == nil {
		return fresh, nil
	}
	doc.TaskID = taskID
	return doc, nil
}

func (s *DocumentService) removeObject(ctx context.Context, key string) {
	if err := s.objects.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		logger.Error("Failed to remove uploaded object", "key", key, "error", err)
	}
}

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// objectKey builds raw_pdfs/<yyyymmddhhmmss>_<id>_<title>.pdf.
func objectKey(at time.Time, documentID, title string) string {
	clean := strings.Trim(unsafeTitleChars.ReplaceAllString(title, "_"), "_")
	if len(clean) > 100 {
		clean = clean[:100]
	}
	if clean == "" {
		clean = "document"
	}
	return fmt.Sprintf("raw_pdfs/%s_%s_%s.pdf", at.UTC().Format("20060102150405"), documentID, clean)
}

// List returns one page of the owner's documents, newest first. Page is 1-based.
func (s *DocumentService) List(ctx context.Context, ownerID string, page, limit int) ([]models.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	docs, total, err := s.documents.List(ctx, ownerID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, apperrors.Storage("list documents", err)
	}
	return docs, total, nil
}

// Get returns ErrDocumentNotFound for documents of other owners.
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Status reports live progress while a run is active. Otherwise it is
// derived from the persisted status alone.
func (s *DocumentService) Status(ctx context.Context, ownerID, id string) (*models.ProcessingStatus, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	status := &models.ProcessingStatus{DocumentID: doc.ID, Status: doc.Status}
	switch doc.Status {
	case models.StatusProcessing:
		status.Stage = models.StageWaitingForWorker
		if s.progress == nil {
			return status, nil
		}
		record, err := s.progress.Get(ctx, doc.ID)
		if err != nil {
			logger.Warn("Failed to read progress", "document_id", doc.ID, "error", err)
			return status, nil
		}
		if record != nil {
			status.Stage = record.Stage
			status.Percent = record.Percent
		}
	case models.StatusCompleted:
		status.Stage = string(doc.Status)
		status.Percent = 100
	default:
		status.Stage = string(doc.Status)
	}
	return status, nil
}

// Delete removes the stored file, the vector collection, the progress record
// and finally the record itself. The record survives any failure before that
// so the delete can be retried. A document with a run in progress cannot be
// deleted until the run ends.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if doc.Status == models.StatusProcessing {
		return fmt.Errorf("document %s: %w", id, ErrAlreadyProcessing)
	}
	log := logger.With("document_id", doc.ID)

	if err := s.objects.Delete(ctx, doc.StorageKey); err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return err
		}
		log.Warn("Stored file already missing", "key", doc.StorageKey)
	}

	if err := s.vectors.DeleteCollection(ctx, doc.ID); err != nil {
		return err
	}

	if s.progress != nil {
		if err := s.progress.Clear(ctx, doc.ID); err != nil {
			log.Warn("Failed to clear progress", "error", err)
		}
	}

	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		return apperrors.Storage("delete document", err)
	}
	log.Info("Document deleted")
	return nil
}

// Reingest starts a new run for a finished document, or dispatches a PENDING
// one again.
func (s *DocumentService) Reingest(ctx context.Context, ownerID, id string) (*models.Document, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	switch {
	case doc.Status == models.StatusProcessing:
		return nil, fmt.Errorf("document %s: %w", id, ErrAlreadyProcessing)
	case doc.Status.IsTerminal():
		if doc, err = s.documents.Transition(ctx, id, Transition{To: models.StatusPending, At: time.Now()}); err != nil {
			return nil, err
		}
	}

	taskID, err := s.dispatcher.DispatchIngestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dispatch ingestion: %w", err)
	}
	if err := s.documents.SetTaskID(ctx, id, taskID); err != nil {
		logger.Warn("Failed to persist task id", "document_id", id, "task_id", taskID, "error", err)
	}
	logger.Info("Re-ingestion dispatched", "document_id", id, "task_id", taskID)

	if fresh, err := s.documents.Get(ctx, id); err == nil {
		return fresh, nil
	}
	doc.TaskID = taskID
	return doc, nil
}
