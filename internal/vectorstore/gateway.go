package vectorstore

import (
	"context"
	"errors"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/models"
)

// Gateway stores and searches a document's chunks, owning the collection
// and id naming.
type Gateway struct {
	index Index
}

func NewGateway(index Index) *Gateway {
	return &Gateway{index: index}
}

// Add stores chunk texts with their embeddings under the document's collection.
func (g *Gateway) Add(ctx context.Context, documentID string, texts []string, embeddings [][]float32) error {
	ids := make([]string, len(texts))
	metadatas := make([]map[string]any, len(texts))
	for i := range texts {
		ids[i] = models.ChunkID(documentID, i)
		metadatas[i] = map[string]any{"document_id": documentID}
	}
	return wrapStorage("add", g.index.Add(ctx, models.CollectionName(documentID), ids, texts, embeddings, metadatas))
}

func (g *Gateway) Query(ctx context.Context, documentID string, embeddings [][]float32, k int) ([][]models.Candidate, error) {
	results, err := g.index.Query(ctx, models.CollectionName(documentID), embeddings, k)
	if err != nil {
		return nil, wrapStorage("query", err)
	}
	return results, nil
}

func (g *Gateway) DeleteCollection(ctx context.Context, documentID string) error {
	return wrapStorage("delete collection", g.index.DeleteCollection(ctx, models.CollectionName(documentID)))
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Storage(op, err)
}
