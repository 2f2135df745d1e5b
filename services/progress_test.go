package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/models"
)

type panickingSink struct{}

func (panickingSink) Report(context.Context, models.ProgressRecord) error { panic("sink exploded") }

type erroringSink struct{ calls int }

func (s *erroringSink) Report(context.Context, models.ProgressRecord) error {
	s.calls++
	return errors.New("redis down")
}

func TestProgressReporterIsMonotonic(t *testing.T) {
	store := NewMemoryProgressStore()
	r := newProgressReporter(store, "doc-1")
	ctx := context.Background()

	r.report(ctx, models.StageDownloading, 10)
	r.report(ctx, models.StageExtracting, 30)
	r.report(ctx, models.StageDownloading, 10)
	r.report(ctx, models.StageExtractionComplete, 40)

	history := store.History("doc-1")
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].Percent, history[i-1].Percent)
	}

	r.fail(ctx)
	record, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, record.Stage)
	assert.Equal(t, 0, record.Percent)
}

func TestProgressReporterIsBestEffort(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		newProgressReporter(panickingSink{}, "doc-1").report(ctx, models.StageDownloading, 10)
	})

	sink := &erroringSink{}
	r := newProgressReporter(sink, "doc-1")
	r.report(ctx, models.StageDownloading, 10)
	r.report(ctx, models.StageDownloadComplete, 20)
	assert.Equal(t, 2, sink.calls)

	assert.NotPanics(t, func() {
		newProgressReporter(nil, "doc-1").report(ctx, models.StageDownloading, 10)
	})
}

func TestProgressReporterSurvivesCanceledRun(t *testing.T) {
	store := NewMemoryProgressStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newProgressReporter(store, "doc-1").fail(ctx)
	record, err := store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StageFailed, record.Stage)
}

func exerciseProgressStore(t *testing.T, store ProgressStore) {
	ctx := context.Background()
	docID := "progress-test-doc"
	t.Cleanup(func() { _ = store.Clear(context.Background(), docID) })

	record, err := store.Get(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, record)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Report(ctx, models.ProgressRecord{DocumentID: docID, Stage: models.StageChunking, Percent: 50, UpdatedAt: now}))

	record, err = store.Get(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StageChunking, record.Stage)
	assert.Equal(t, 50, record.Percent)
	assert.True(t, now.Equal(record.UpdatedAt))

	require.NoError(t, store.Clear(ctx, docID))
	record, err = store.Get(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryProgressStore(t *testing.T) {
	exerciseProgressStore(t, NewMemoryProgressStore())
}

func TestRedisProgressStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	exerciseProgressStore(t, NewRedisProgressStore(rdb, time.Minute))
}
