package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/services"
)

type fakeIngestor struct {
	err   error
	calls []string
}

func (f *fakeIngestor) Process(_ context.Context, documentID string) error {
	f.calls = append(f.calls, documentID)
	return f.err
}

func TestNewProcessDocumentTask(t *testing.T) {
	task, err := NewProcessDocumentTask("doc-1", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, TaskProcessDocument, task.Type())
	var payload ProcessDocumentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "doc-1", payload.DocumentID)
}

func TestProcessDocument(t *testing.T) {
	stageErr := apperrors.Extraction("extract text", errors.New("no text"))

	tests := []struct {
		name      string
		payload   []byte
		ingestErr error
		wantErr   bool
		skipRetry bool
		wantCalls int
	}{
		{name: "success", payload: []byte(`{"document_id":"doc-1"}`), wantCalls: 1},
		{name: "duplicate dispatch", payload: []byte(`{"document_id":"doc-1"}`), ingestErr: services.ErrAlreadyProcessing, wantCalls: 1},
		{name: "stage failure", payload: []byte(`{"document_id":"doc-1"}`), ingestErr: stageErr, wantErr: true, skipRetry: true, wantCalls: 1},
		{name: "bad payload", payload: []byte(`{`), wantErr: true, skipRetry: true},
		{name: "missing id", payload: []byte(`{}`), wantErr: true, skipRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor := &fakeIngestor{err: tt.ingestErr}
			err := NewTaskProcessor(ingestor).ProcessDocument(context.Background(), asynq.NewTask(TaskProcessDocument, tt.payload))

			assert.Len(t, ingestor.calls, tt.wantCalls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			if tt.ingestErr != nil {
				assert.ErrorIs(t, err, apperrors.ErrExtraction)
			}
		})
	}
}

func TestDispatcherEnqueues(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	opt := asynq.RedisClientOpt{Addr: addr}
	client := asynq.NewClient(opt)
	defer client.Close()
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	taskID, err := NewDispatcher(client, time.Minute).DispatchIngestion(context.Background(), "doc-42")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(taskID, "doc-42-"))
	defer inspector.DeleteTask(QueueCritical, taskID)

	info, err := inspector.GetTaskInfo(QueueCritical, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskProcessDocument, info.Type)
	assert.Equal(t, 0, info.MaxRetry)
	assert.Equal(t, time.Minute, info.Timeout)
}
