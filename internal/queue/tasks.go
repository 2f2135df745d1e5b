package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"rag-document-platform/internal/logger"
	"rag-document-platform/services"
)

const (
	TaskProcessDocument = "document:process"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// NewProcessDocumentTask builds an ingestion task. Runs are never retried by
// the queue; a failed run is recorded on the document instead.
func NewProcessDocumentTask(documentID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessDocumentPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue(QueueCritical),
		asynq.TaskID(documentID+"-"+uuid.NewString()),
	), nil
}

// Dispatcher enqueues ingestion tasks on asynq.
type Dispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewDispatcher(client *asynq.Client, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	return &Dispatcher{client: client, timeout: timeout}
}

func (d *Dispatcher) DispatchIngestion(ctx context.Context, documentID string) (string, error) {
	task, err := NewProcessDocumentTask(documentID, d.timeout)
	if err != nil {
		return "", fmt.Errorf("build task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskProcessDocument, err)
	}
	logger.Info("Ingestion task enqueued", "document_id", documentID, "task_id", info.ID, "queue", info.Queue)
	return info.ID, nil
}

// Ingestor runs one ingestion.
type Ingestor interface {
	Process(ctx context.Context, documentID string) error
}

// Task handlers
type TaskProcessor struct {
	ingestor Ingestor
}

func NewTaskProcessor(ingestor Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("missing document_id: %w", asynq.SkipRetry)
	}

	log := logger.With("document_id", payload.DocumentID, "task_type", t.Type())
	log.Info("Processing document")

	err := p.ingestor.Process(ctx, payload.DocumentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrAlreadyProcessing):
		log.Warn("Document is already being processed, dropping duplicate task")
		return nil
	default:
		// already recorded on the document
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
}

// Register adds the task handlers to mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, p.ProcessDocument)
}
