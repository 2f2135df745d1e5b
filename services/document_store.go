package services

import (
	"context"
	"fmt"
	"time"

	"rag-document-platform/models"
)

// Transition moves a document to a new status. Fields other than To apply
// only to the statuses that carry them.
type Transition struct {
	To           models.DocumentStatus
	ErrorMessage string // FAILED
	ChunkCount   int    // COMPLETED
	At           time.Time
}

// DocumentStore persists document records.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	// Get returns ErrDocumentNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Document, error)
	// List returns an owner's documents newest first, plus the owner's total.
	List(ctx context.Context, ownerID string, skip, limit int) ([]models.Document, int64, error)
	// Transition atomically changes status when the current status allows it
	// and returns the updated record.
	Transition(ctx context.Context, id string, t Transition) (*models.Document, error)
	SetSummary(ctx context.Context, id, summary string) error
	SetTaskID(ctx context.Context, id, taskID string) error
	Delete(ctx context.Context, id string) error
	// FindStale lists documents in PROCESSING since before cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]models.Document, error)
}

// transitionError explains why a compare-and-set transition did not apply.
func transitionError(id string, current, to models.DocumentStatus) error {
	if current == models.StatusProcessing && to == models.StatusProcessing {
		return fmt.Errorf("document %s: %w", id, ErrAlreadyProcessing)
	}
	return fmt.Errorf("document %s: %w: %s -> %s", id, ErrInvalidTransition, current, to)
}

// applyTransition mutates doc the way every store must.
func applyTransition(doc *models.Document, t Transition) {
	at := t.At.UTC()
	doc.Status = t.To
	doc.UpdatedAt = at
	switch t.To {
	case models.StatusProcessing:
		doc.ProcessingStartedAt = &at
		doc.ErrorMessage = ""
	case models.StatusCompleted:
		doc.ChunkCount = t.ChunkCount
		doc.ProcessedAt = &at
		doc.ErrorMessage = ""
	case models.StatusFailed:
		doc.ErrorMessage = t.ErrorMessage
		doc.ProcessedAt = &at
	case models.StatusPending:
		doc.ErrorMessage = ""
		doc.ChunkCount = 0
		doc.ProcessingStartedAt = nil
		doc.ProcessedAt = nil
	}
}
