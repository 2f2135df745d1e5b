package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-document-platform/models"
)

func newTestDocument(owner string, uploadedAt time.Time) *models.Document {
	return &models.Document{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Title:      "Test",
		Filename:   "test.pdf",
		StorageKey: "raw_pdfs/test.pdf",
		Status:     models.StatusPending,
		UploadedAt: uploadedAt,
		UpdatedAt:  uploadedAt,
	}
}

func exerciseDocumentStore(t *testing.T, store DocumentStore) {
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 3; i++ {
		doc := newTestDocument(owner, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(ctx, doc))
		ids = append(ids, doc.ID)
	}
	t.Cleanup(func() {
		for _, id := range ids {
			_ = store.Delete(context.Background(), id)
		}
	})

	t.Run("list newest first with pagination", func(t *testing.T) {
		docs, total, err := store.List(ctx, owner, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, docs, 2)
		assert.Equal(t, ids[2], docs[0].ID)
		assert.Equal(t, ids[1], docs[1].ID)

		docs, _, err = store.List(ctx, owner, 2, 2)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, ids[0], docs[0].ID)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("lifecycle transitions", func(t *testing.T) {
		id := ids[0]
		started := base.Add(time.Hour)

		doc, err := store.Transition(ctx, id, Transition{To: models.StatusProcessing, At: started})
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, doc.Status)
		require.NotNil(t, doc.ProcessingStartedAt)

		_, err = store.Transition(ctx, id, Transition{To: models.StatusProcessing, At: started})
		assert.ErrorIs(t, err, ErrAlreadyProcessing)

		_, err = store.Transition(ctx, id, Transition{To: models.StatusPending, At: started})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		doc, err = store.Transition(ctx, id, Transition{To: models.StatusCompleted, ChunkCount: 7, At: started.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, 7, doc.ChunkCount)
		require.NotNil(t, doc.ProcessedAt)

		_, err = store.Transition(ctx, id, Transition{To: models.StatusProcessing, At: started})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		doc, err = store.Transition(ctx, id, Transition{To: models.StatusPending, At: started.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, doc.Status)
		assert.Zero(t, doc.ChunkCount)
		assert.Nil(t, doc.ProcessedAt)
	})

	t.Run("failed keeps message", func(t *testing.T) {
		id := ids[1]
		_, err := store.Transition(ctx, id, Transition{To: models.StatusProcessing, At: base})
		require.NoError(t, err)
		doc, err := store.Transition(ctx, id, Transition{To: models.StatusFailed, ErrorMessage: "ExtractionError: boom", At: base})
		require.NoError(t, err)
		assert.Equal(t, "ExtractionError: boom", doc.ErrorMessage)
	})

	t.Run("set fields", func(t *testing.T) {
		require.NoError(t, store.SetSummary(ctx, ids[2], "a summary"))
		require.NoError(t, store.SetTaskID(ctx, ids[2], "task-1"))
		doc, err := store.Get(ctx, ids[2])
		require.NoError(t, err)
		assert.Equal(t, "a summary", doc.Summary)
		assert.Equal(t, "task-1", doc.TaskID)

		assert.ErrorIs(t, store.SetSummary(ctx, "missing", "x"), ErrDocumentNotFound)
	})

	t.Run("find stale", func(t *testing.T) {
		id := ids[2]
		_, err := store.Transition(ctx, id, Transition{To: models.StatusProcessing, At: base.Add(-time.Hour)})
		require.NoError(t, err)

		stale, err := store.FindStale(ctx, base.Add(-30*time.Minute))
		require.NoError(t, err)
		var found bool
		for _, d := range stale {
			if d.ID == id {
				found = true
			}
			assert.Equal(t, models.StatusProcessing, d.Status)
		}
		assert.True(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, ids[0]))
		assert.ErrorIs(t, store.Delete(ctx, ids[0]), ErrDocumentNotFound)
	})
}

func TestMemoryDocumentStore(t *testing.T) {
	exerciseDocumentStore(t, NewMemoryDocumentStore())
}

func TestMongoDocumentStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database(fmt.Sprintf("rag_documents_test_%d", time.Now().UnixNano()))
	defer db.Drop(ctx)

	exerciseDocumentStore(t, NewMongoDocumentStore(db, "documents"))
}
