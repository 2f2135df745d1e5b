package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"rag-document-platform/internal/logger"
)

// InlineDispatcher runs ingestion in the calling process instead of a queue.
// Used by the CLI and tests.
type InlineDispatcher struct {
	ingestor *Ingestor
	async    bool
	wg       sync.WaitGroup
}

// NewInlineDispatcher runs each dispatch to completion before returning.
func NewInlineDispatcher(ingestor *Ingestor) *InlineDispatcher {
	return &InlineDispatcher{ingestor: ingestor}
}

// NewBackgroundDispatcher runs each dispatch on its own goroutine; Wait
// blocks until all of them finish.
func NewBackgroundDispatcher(ingestor *Ingestor) *InlineDispatcher {
	return &InlineDispatcher{ingestor: ingestor, async: true}
}

// DispatchIngestion never reports a pipeline failure; those are persisted on
// the document.
func (d *InlineDispatcher) DispatchIngestion(ctx context.Context, documentID string) (string, error) {
	taskID := "inline-" + uuid.NewString()
	if !d.async {
		d.process(ctx, documentID, taskID)
		return taskID, nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.process(context.WithoutCancel(ctx), documentID, taskID)
	}()
	return taskID, nil
}

func (d *InlineDispatcher) process(ctx context.Context, documentID, taskID string) {
	err := d.ingestor.Process(ctx, documentID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyProcessing):
		logger.Info("Document already processing, skipping", "document_id", documentID, "task_id", taskID)
	default:
		logger.Error("Inline ingestion failed", "document_id", documentID, "task_id", taskID, "error", err)
	}
}

func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
