package services

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

func TestUploadIngestQueryEndToEnd(t *testing.T) {
	p := newTestPipeline(t)
	dispatcher := NewBackgroundDispatcher(p.ingestor)
	documents := NewDocumentService(p.documents, p.objects, vectorstore.NewGateway(p.index), p.progress, dispatcher, 10<<20)
	ctx := context.Background()

	upload := func(data []byte) *models.Document {
		doc, err := documents.Upload(ctx, UploadInput{
			OwnerID:  "owner-1",
			Title:    "Field notes",
			Filename: "notes.pdf",
			Size:     int64(len(data)),
			Body:     bytes.NewReader(data),
		})
		require.NoError(t, err)
		return doc
	}

	good := upload(buildPDF(samplePages()...))
	blank := upload(buildPDF([]string{"   "}, []string{""}, []string{"    "}))
	dispatcher.Wait()

	t.Run("text document is answerable", func(t *testing.T) {
		st, err := documents.Status(ctx, "owner-1", good.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, st.Status)
		assert.Equal(t, 100, st.Percent)

		answer, err := p.query.Ask(ctx, "owner-1", good.ID, "What is said about medieval castles?")
		require.NoError(t, err)
		assert.NotEmpty(t, answer.Answer)
		assert.NotEmpty(t, answer.Passages)
		for _, passage := range answer.Passages {
			assert.Equal(t, good.ID, passage.Metadata["document_id"])
		}
	})

	t.Run("whitespace document fails extraction", func(t *testing.T) {
		doc, err := documents.Get(ctx, "owner-1", blank.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, doc.Status)
		assert.Contains(t, doc.ErrorMessage, "ExtractionError")

		st, err := documents.Status(ctx, "owner-1", blank.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAILED", st.Stage)
		assert.Zero(t, st.Percent)
	})

	t.Run("processing document is not queried", func(t *testing.T) {
		_, err := p.documents.Transition(ctx, good.ID, Transition{To: models.StatusPending})
		require.NoError(t, err)
		_, err = p.documents.Transition(ctx, good.ID, Transition{To: models.StatusProcessing})
		require.NoError(t, err)

		_, err = p.query.Ask(ctx, "owner-1", good.ID, "anything?")
		assert.ErrorIs(t, err, ErrNotProcessed)
	})

	t.Run("delete leaves no orphans", func(t *testing.T) {
		require.NoError(t, documents.Delete(ctx, "owner-1", blank.ID))
		assert.False(t, p.objects.Has(blank.StorageKey))
		assert.Zero(t, p.index.Count(models.CollectionName(blank.ID)))
	})
}

// pausedSummaries holds every summary call until released, so a test can act
// on a document while its run is in PROCESSING.
func pausedSummaries(p *testPipeline) (started <-chan struct{}, release func()) {
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	var once sync.Once
	p.generator.respond = func(req ai.GenerationRequest) (string, error) {
		if kindOf(req.Prompt) == answerKind {
			return "The answer is in the document.", nil
		}
		once.Do(func() { close(startedCh) })
		<-releaseCh
		return "A document about testing.", nil
	}
	return startedCh, func() { close(releaseCh) }
}

func TestDeleteDuringIngestionLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()

	t.Run("delete is refused while processing", func(t *testing.T) {
		p := newTestPipeline(t)
		documents := NewDocumentService(p.documents, p.objects, vectorstore.NewGateway(p.index), p.progress, &recordingDispatcher{}, 0)
		doc := p.seed(t, "owner-1", buildPDF(samplePages()...))
		started, release := pausedSummaries(p)

		done := make(chan error, 1)
		go func() { done <- p.ingestor.Process(ctx, doc.ID) }()
		<-started

		err := documents.Delete(ctx, "owner-1", doc.ID)
		assert.ErrorIs(t, err, ErrAlreadyProcessing)
		assert.True(t, p.objects.Has(doc.StorageKey))

		release()
		require.NoError(t, <-done)
		require.NoError(t, documents.Delete(ctx, "owner-1", doc.ID))
		assert.Zero(t, p.index.Count(models.CollectionName(doc.ID)))
	})

	t.Run("record removed mid-run drops the stored chunks", func(t *testing.T) {
		p := newTestPipeline(t)
		doc := p.seed(t, "owner-1", buildPDF(samplePages()...))
		started, release := pausedSummaries(p)

		done := make(chan error, 1)
		go func() { done <- p.ingestor.Process(ctx, doc.ID) }()
		<-started

		require.NoError(t, p.documents.Delete(ctx, doc.ID))
		release()

		err := <-done
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Zero(t, p.index.Count(models.CollectionName(doc.ID)))
		record, err := p.progress.Get(ctx, doc.ID)
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}
