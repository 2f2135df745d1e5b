package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

const (
	fieldID         = "id"
	fieldText       = "text"
	fieldVector     = "vector"
	fieldDocumentID = "document_id"
	fieldMetadata   = "metadata"
)

// MilvusIndex stores one Milvus collection per document.
type MilvusIndex struct {
	client *milvusclient.Client
}

func NewMilvusIndex(ctx context.Context, cfg *config.Config) (*MilvusIndex, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.MilvusAddress,
		Username: cfg.MilvusUsername,
		Password: cfg.MilvusPassword,
		DBName:   cfg.MilvusDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client (address: %s, database: %s): %w", cfg.MilvusAddress, cfg.MilvusDatabase, err)
	}
	return &MilvusIndex{client: client}, nil
}

// milvusName maps a collection name onto Milvus' [A-Za-z0-9_] alphabet.
func milvusName(collection string) string {
	return strings.ReplaceAll(collection, "-", "_")
}

func collectionFields(dim int) []*entity.Field {
	return []*entity.Field{
		{
			Name:       fieldID,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "256"},
			PrimaryKey: true,
			AutoID:     false,
		},
		{
			Name:       fieldText,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "65535"},
		},
		{
			Name:       fieldVector,
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
		},
		{
			Name:       fieldDocumentID,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "256"},
		},
		{
			Name:     fieldMetadata,
			DataType: entity.FieldTypeJSON,
		},
	}
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, name string, dim int) error {
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return apperrors.Storage("has collection", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "document chunks and their embeddings",
		AutoID:         false,
		Fields:         collectionFields(dim),
	}
	err = m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema).WithIndexOptions(
		milvusclient.NewCreateIndexOption(name, fieldVector, index.NewHNSWIndex(entity.L2, 64, 128))))
	if err != nil {
		return apperrors.Storage("create collection", err)
	}

	task, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return apperrors.Storage("load collection", err)
	}
	if err := task.Await(ctx); err != nil {
		return apperrors.Storage("load collection", err)
	}
	logger.Info("Created vector collection", "collection", name, "dim", dim)
	return nil
}

func (m *MilvusIndex) Add(ctx context.Context, collection string, ids, texts []string, embeddings [][]float32, metadatas []map[string]any) error {
	if err := validateAdd(ids, texts, embeddings, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	name := milvusName(collection)
	dim := len(embeddings[0])
	if err := m.ensureCollection(ctx, name, dim); err != nil {
		return err
	}

	documentIDs := make([]string, len(ids))
	metadataList := make([][]byte, len(ids))
	for i := range ids {
		var meta map[string]any
		if metadatas != nil {
			meta = metadatas[i]
		}
		if docID, ok := meta["document_id"].(string); ok {
			documentIDs[i] = docID
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return apperrors.Validation("encode metadata", err)
		}
		metadataList[i] = b
	}

	columns := []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnFloatVector(fieldVector, dim, embeddings),
		column.NewColumnVarChar(fieldDocumentID, documentIDs),
		column.NewColumnJSONBytes(fieldMetadata, metadataList),
	}
	if _, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name, columns...)); err != nil {
		return apperrors.Storage("insert", err)
	}
	return nil
}

func (m *MilvusIndex) Query(ctx context.Context, collection string, embeddings [][]float32, k int) ([][]models.Candidate, error) {
	name := milvusName(collection)
	out := make([][]models.Candidate, len(embeddings))

	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, apperrors.Storage("has collection", err)
	}
	if !has || len(embeddings) == 0 || k <= 0 {
		for i := range out {
			out[i] = []models.Candidate{}
		}
		return out, nil
	}

	vectors := make([]entity.Vector, len(embeddings))
	for i, v := range embeddings {
		vectors[i] = entity.FloatVector(v)
	}
	searchOpt := milvusclient.NewSearchOption(name, k, vectors).
		WithANNSField(fieldVector).
		WithOutputFields(fieldID, fieldText, fieldDocumentID, fieldMetadata).
		WithConsistencyLevel(entity.ClStrong)

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, apperrors.Storage("search", err)
	}

	for i := range out {
		if i >= len(results) {
			out[i] = []models.Candidate{}
			continue
		}
		candidates, err := toCandidates(results[i].Fields, results[i].Scores)
		if err != nil {
			return nil, apperrors.Storage("decode search result", err)
		}
		out[i] = candidates
	}
	return out, nil
}

func toCandidates(columns []column.Column, scores []float32) ([]models.Candidate, error) {
	if len(columns) == 0 {
		return []models.Candidate{}, nil
	}

	n := columns[0].Len()
	result := make([]models.Candidate, n)
	for i := 0; i < n && i < len(scores); i++ {
		result[i].Distance = float64(scores[i])
	}

	for _, col := range columns {
		for i := 0; i < col.Len() && i < n; i++ {
			val, err := col.Get(i)
			if err != nil {
				return nil, fmt.Errorf("failed to get %s: %w", col.Name(), err)
			}
			switch col.Name() {
			case fieldID:
				result[i].ID, _ = val.(string)
			case fieldText:
				result[i].Text, _ = val.(string)
			case fieldMetadata:
				result[i].Metadata = decodeMetadata(val)
			}
		}
	}
	return result, nil
}

func decodeMetadata(val any) map[string]any {
	var raw []byte
	switch v := val.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return meta
}

func (m *MilvusIndex) DeleteCollection(ctx context.Context, collection string) error {
	name := milvusName(collection)
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return apperrors.Storage("has collection", err)
	}
	if !has {
		return nil
	}
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return apperrors.Storage("drop collection", err)
	}
	return nil
}

func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
