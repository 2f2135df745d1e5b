package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rag-document-platform/models"
)

// MemoryDocumentStore is an in-process DocumentStore.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]models.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]models.Document)}
}

func (m *MemoryDocumentStore) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	m.docs[doc.ID] = *doc
	return nil
}

func (m *MemoryDocumentStore) Get(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

func (m *MemoryDocumentStore) List(_ context.Context, ownerID string, skip, limit int) ([]models.Document, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []models.Document
	for _, doc := range m.docs {
		if doc.OwnerID == ownerID {
			owned = append(owned, doc)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UploadedAt.After(owned[j].UploadedAt)
	})

	total := int64(len(owned))
	if skip >= len(owned) {
		return []models.Document{}, total, nil
	}
	end := len(owned)
	if limit > 0 {
		end = min(skip+limit, end)
	}
	return owned[skip:end], total, nil
}

func (m *MemoryDocumentStore) Transition(_ context.Context, id string, t Transition) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if !models.CanTransition(doc.Status, t.To) {
		return nil, transitionError(id, doc.Status, t.To)
	}
	applyTransition(&doc, t)
	m.docs[id] = doc
	return &doc, nil
}

func (m *MemoryDocumentStore) update(id string, fn func(*models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	fn(&doc)
	doc.UpdatedAt = time.Now().UTC()
	m.docs[id] = doc
	return nil
}

func (m *MemoryDocumentStore) SetSummary(_ context.Context, id, summary string) error {
	return m.update(id, func(d *models.Document) { d.Summary = summary })
}

func (m *MemoryDocumentStore) SetTaskID(_ context.Context, id, taskID string) error {
	return m.update(id, func(d *models.Document) { d.TaskID = taskID })
}

func (m *MemoryDocumentStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryDocumentStore) FindStale(_ context.Context, cutoff time.Time) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []models.Document
	for _, doc := range m.docs {
		if doc.Status == models.StatusProcessing && doc.ProcessingStartedAt != nil && doc.ProcessingStartedAt.Before(cutoff) {
			stale = append(stale, doc)
		}
	}
	return stale, nil
}
