package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-document-platform/models"
)

// MongoDocumentStore persists documents in a MongoDB collection.
type MongoDocumentStore struct {
	documents *mongo.Collection
}

func NewMongoDocumentStore(db *mongo.Database, collection string) *MongoDocumentStore {
	return &MongoDocumentStore{documents: db.Collection(collection)}
}

func (s *MongoDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *MongoDocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *MongoDocumentStore) List(ctx context.Context, ownerID string, skip, limit int) ([]models.Document, int64, error) {
	filter := bson.M{"owner_id": ownerID}

	total, err := s.documents.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	docs := []models.Document{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, total, nil
}

func transitionUpdate(t Transition) bson.M {
	at := t.At.UTC()
	set := bson.M{"status": t.To, "updated_at": at}
	unset := bson.M{}

	switch t.To {
	case models.StatusProcessing:
		set["processing_started_at"] = at
		unset["error_message"] = ""
	case models.StatusCompleted:
		set["chunk_count"] = t.ChunkCount
		set["processed_at"] = at
		unset["error_message"] = ""
	case models.StatusFailed:
		set["error_message"] = t.ErrorMessage
		set["processed_at"] = at
	case models.StatusPending:
		set["chunk_count"] = 0
		unset["error_message"] = ""
		unset["processing_started_at"] = ""
		unset["processed_at"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (s *MongoDocumentStore) Transition(ctx context.Context, id string, t Transition) (*models.Document, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": models.AllowedFrom(t.To)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc models.Document
	err := s.documents.FindOneAndUpdate(ctx, filter, transitionUpdate(t), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, transitionError(id, current.Status, t.To)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	return &doc, nil
}

func (s *MongoDocumentStore) setField(ctx context.Context, id, field string, value any) error {
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{field: value, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to update %s of %s: %w", field, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *MongoDocumentStore) SetSummary(ctx context.Context, id, summary string) error {
	return s.setField(ctx, id, "summary", summary)
}

func (s *MongoDocumentStore) SetTaskID(ctx context.Context, id, taskID string) error {
	return s.setField(ctx, id, "task_id", taskID)
}

func (s *MongoDocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *MongoDocumentStore) FindStale(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{
		"status":                models.StatusProcessing,
		"processing_started_at": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find stale documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stale documents: %w", err)
	}
	return docs, nil
}
