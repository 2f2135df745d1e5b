package vectorstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"rag-document-platform/models"
)

type memoryEntry struct {
	id       string
	text     string
	vector   []float32
	metadata map[string]any
}

// MemoryIndex is an exhaustive squared-L2 index held in process memory.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string][]memoryEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string][]memoryEntry)}
}

func (m *MemoryIndex) Add(_ context.Context, collection string, ids, texts []string, embeddings [][]float32, metadatas []map[string]any) error {
	if err := validateAdd(ids, texts, embeddings, metadatas); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.collections[collection]
	for i := range ids {
		e := memoryEntry{id: ids[i], text: texts[i], vector: embeddings[i]}
		if metadatas != nil {
			e.metadata = maps.Clone(metadatas[i])
		}
		entries = upsert(entries, e)
	}
	m.collections[collection] = entries
	return nil
}

func upsert(entries []memoryEntry, e memoryEntry) []memoryEntry {
	for i := range entries {
		if entries[i].id == e.id {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

func (m *MemoryIndex) Query(_ context.Context, collection string, embeddings [][]float32, k int) ([][]models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.collections[collection]
	results := make([][]models.Candidate, len(embeddings))
	for q, query := range embeddings {
		candidates := make([]models.Candidate, 0, len(entries))
		for _, e := range entries {
			candidates = append(candidates, models.Candidate{
				ID:       e.id,
				Text:     e.text,
				Distance: squaredL2(query, e.vector),
				Metadata: maps.Clone(e.metadata),
			})
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Distance < candidates[j].Distance
		})
		if k >= 0 && len(candidates) > k {
			candidates = candidates[:k]
		}
		results[q] = candidates
	}
	return results, nil
}

func (m *MemoryIndex) DeleteCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	delete(m.collections, collection)
	m.mu.Unlock()
	return nil
}

// Count returns the number of entries stored in a collection.
func (m *MemoryIndex) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
