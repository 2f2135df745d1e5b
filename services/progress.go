package services

import (
	"context"
	"sync"
	"time"

	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

// ProgressSink receives stage updates from an ingestion run.
type ProgressSink interface {
	Report(ctx context.Context, record models.ProgressRecord) error
}

// ProgressReader serves the live progress of a run.
type ProgressReader interface {
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, documentID string) (*models.ProgressRecord, error)
	Clear(ctx context.Context, documentID string) error
}

type ProgressStore interface {
	ProgressSink
	ProgressReader
}

// progressReporter forwards one run's updates to a sink. Percent never goes
// backwards within a run, and sink failures never reach the pipeline.
type progressReporter struct {
	sink       ProgressSink
	documentID string
	last       int
	timeout    time.Duration
}

func newProgressReporter(sink ProgressSink, documentID string) *progressReporter {
	return &progressReporter{sink: sink, documentID: documentID, last: -1, timeout: 2 * time.Second}
}

func (p *progressReporter) report(ctx context.Context, stage string, percent int) {
	if percent < p.last {
		logger.Debug("Ignoring backwards progress", "document_id", p.documentID, "stage", stage, "percent", percent, "last", p.last)
		return
	}
	p.last = percent
	p.send(ctx, models.ProgressRecord{
		DocumentID: p.documentID,
		Stage:      stage,
		Percent:    percent,
		UpdatedAt:  time.Now().UTC(),
	})
}

// fail records the terminal failure stage; it is the one update allowed to
// lower the percent.
func (p *progressReporter) fail(ctx context.Context) {
	p.last = 0
	p.send(ctx, models.ProgressRecord{
		DocumentID: p.documentID,
		Stage:      models.StageFailed,
		Percent:    0,
		UpdatedAt:  time.Now().UTC(),
	})
}

func (p *progressReporter) send(ctx context.Context, record models.ProgressRecord) {
	if p.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Progress sink panicked", "document_id", p.documentID, "stage", record.Stage, "panic", r)
		}
	}()

	// progress must outlive a canceled run so the failure is visible
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.sink.Report(ctx, record); err != nil {
		logger.Warn("Failed to report progress", "document_id", p.documentID, "stage", record.Stage, "error", err)
	}
}

// MemoryProgressStore keeps progress records in process memory.
type MemoryProgressStore struct {
	mu      sync.RWMutex
	records map[string]models.ProgressRecord
	history map[string][]models.ProgressRecord
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{
		records: make(map[string]models.ProgressRecord),
		history: make(map[string][]models.ProgressRecord),
	}
}

func (m *MemoryProgressStore) Report(_ context.Context, record models.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.DocumentID] = record
	m.history[record.DocumentID] = append(m.history[record.DocumentID], record)
	return nil
}

func (m *MemoryProgressStore) Get(_ context.Context, documentID string) (*models.ProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[documentID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryProgressStore) Clear(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, documentID)
	return nil
}

// History returns every record reported for a document, oldest first.
func (m *MemoryProgressStore) History(documentID string) []models.ProgressRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ProgressRecord(nil), m.history[documentID]...)
}
