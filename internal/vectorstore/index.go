package vectorstore

import (
	"context"
	"fmt"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/models"
)

// Index is a collection-scoped nearest-neighbour store.
type Index interface {
	// Add writes one entry per id. It creates the collection on first use.
	Add(ctx context.Context, collection string, ids, texts []string, embeddings [][]float32, metadatas []map[string]any) error
	// Query returns up to k candidates per query vector, ascending distance.
	// A missing collection yields empty results, not an error.
	Query(ctx context.Context, collection string, embeddings [][]float32, k int) ([][]models.Candidate, error)
	// DeleteCollection is idempotent.
	DeleteCollection(ctx context.Context, collection string) error
}

func validateAdd(ids, texts []string, embeddings [][]float32, metadatas []map[string]any) error {
	if len(ids) != len(texts) || len(ids) != len(embeddings) {
		return apperrors.Validation("add vectors", fmt.Errorf("length mismatch: %d ids, %d texts, %d embeddings", len(ids), len(texts), len(embeddings)))
	}
	if metadatas != nil && len(metadatas) != len(ids) {
		return apperrors.Validation("add vectors", fmt.Errorf("length mismatch: %d ids, %d metadatas", len(ids), len(metadatas)))
	}
	for i := 1; i < len(embeddings); i++ {
		if len(embeddings[i]) != len(embeddings[0]) {
			return apperrors.Validation("add vectors", fmt.Errorf("embedding %d has dimension %d, want %d", i, len(embeddings[i]), len(embeddings[0])))
		}
	}
	return nil
}
