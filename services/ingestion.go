package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/storage"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

// Dispatcher hands a document to whatever runs ingestion and returns the
// external task handle.
type Dispatcher interface {
	DispatchIngestion(ctx context.Context, documentID string) (string, error)
}

// IngestorDeps are the collaborators of an ingestion run.
type IngestorDeps struct {
	Documents  DocumentStore
	Objects    storage.ObjectStore
	Extractor  TextExtractor
	Summarizer *Summarizer
	Chunker    *Chunker
	Embedder   ai.Embedder
	Vectors    *vectorstore.Gateway
	Progress   ProgressSink
	Metrics    *telemetry.Metrics
	TempDir    string
}

// Ingestor runs the download, extract, summarize, chunk, embed and store
// pipeline for one document at a time.
type Ingestor struct {
	deps IngestorDeps
}

func NewIngestor(deps IngestorDeps) *Ingestor {
	return &Ingestor{deps: deps}
}

// run is the mutable state threaded through the stages of one ingestion.
type run struct {
	doc      *models.Document
	progress *progressReporter
	tempPath string
	text     string
	chunks   []string
	vectors  [][]float32
}

type stage struct {
	name    string
	kind    apperrors.Kind
	start   string
	pct     int
	done    string
	donePct int
	fn      func(ctx context.Context, r *run) error
}

func (in *Ingestor) stages() []stage {
	return []stage{
		{name: "download", kind: apperrors.KindStorage, start: models.StageDownloading, pct: 10, done: models.StageDownloadComplete, donePct: 20, fn: in.download},
		{name: "extract", kind: apperrors.KindExtraction, start: models.StageExtracting, pct: 30, done: models.StageExtractionComplete, donePct: 40, fn: in.extract},
		{name: "summarize", kind: apperrors.KindGeneration, start: models.StageSummarizing, pct: 45, done: models.StageSummaryComplete, donePct: 48, fn: in.summarize},
		{name: "chunk", kind: apperrors.KindValidation, start: models.StageChunking, pct: 50, done: models.StageChunkingComplete, donePct: 60, fn: in.chunk},
		{name: "embed", kind: apperrors.KindEmbedding, start: models.StageEmbedding, pct: 70, done: models.StageEmbeddingComplete, donePct: 80, fn: in.embed},
		{name: "store", kind: apperrors.KindStorage, start: models.StageStoring, pct: 90, done: models.StageStorageComplete, donePct: 95, fn: in.store},
	}
}

// Process ingests one document. A document already in PROCESSING returns
// ErrAlreadyProcessing without touching it. Any stage failure marks the
// document FAILED and is returned.
func (in *Ingestor) Process(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	ctx, span := otel.Tracer("ingestion").Start(ctx, "Ingestor.Process")
	span.SetAttributes(attribute.String("document_id", documentID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := logger.With("document_id", documentID)

	doc, err := in.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status == models.StatusProcessing {
		log.Warn("Duplicate ingestion dispatch ignored")
		return fmt.Errorf("document %s: %w", documentID, ErrAlreadyProcessing)
	}

	if reader, ok := in.deps.Progress.(ProgressReader); ok {
		if err := reader.Clear(ctx, documentID); err != nil {
			log.Warn("Failed to clear previous progress", "error", err)
		}
	}

	doc, err = in.deps.Documents.Transition(ctx, documentID, Transition{To: models.StatusProcessing, At: time.Now()})
	if err != nil {
		return fmt.Errorf("start processing: %w", err)
	}

	r := &run{doc: doc, progress: newProgressReporter(in.deps.Progress, documentID)}
	defer in.removeTemp(r)

	r.progress.report(ctx, models.StageInitializing, 5)
	log.Info("Ingestion started", "title", doc.Title)

	for _, st := range in.stages() {
		r.progress.report(ctx, st.start, st.pct)
		if err := st.fn(ctx, r); err != nil {
			err = classify(st, err)
			log.Error("Ingestion stage failed", "stage", st.name, "error", err)
			in.deps.Metrics.RecordStageFailure(st.name)
			in.fail(ctx, r, err)
			in.deps.Metrics.RecordIngestion(time.Since(start).Seconds(), string(models.StatusFailed))
			return err
		}
		r.progress.report(ctx, st.done, st.donePct)
	}

	if _, err := in.deps.Documents.Transition(ctx, documentID, Transition{
		To:         models.StatusCompleted,
		ChunkCount: len(r.chunks),
		At:         time.Now(),
	}); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			// deleted while running: the chunks just stored have no owner
			in.dropOrphan(ctx, r)
			in.deps.Metrics.RecordIngestion(time.Since(start).Seconds(), string(models.StatusFailed))
			return fmt.Errorf("complete document: %w", err)
		}
		err = apperrors.Storage("complete document", err)
		in.fail(ctx, r, err)
		in.deps.Metrics.RecordIngestion(time.Since(start).Seconds(), string(models.StatusFailed))
		return err
	}
	r.progress.report(ctx, models.StageCompleted, 100)

	in.deps.Metrics.RecordIngestion(time.Since(start).Seconds(), string(models.StatusCompleted))
	log.Info("Ingestion completed", "chunks", len(r.chunks), "duration", time.Since(start).String())
	return nil
}

// classify tags errors that carry no kind with the kind of the stage that
// produced them.
func classify(st stage, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.New(st.kind, st.name, err)
}

func (in *Ingestor) fail(ctx context.Context, r *run, cause error) {
	// the failure must be persisted even when the run was canceled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := in.deps.Documents.Transition(ctx, r.doc.ID, Transition{
		To:           models.StatusFailed,
		ErrorMessage: cause.Error(),
		At:           time.Now(),
	}); err != nil {
		logger.Error("Failed to mark document as failed", "document_id", r.doc.ID, "error", err)
	}
	r.progress.fail(ctx)
}

func (in *Ingestor) dropOrphan(ctx context.Context, r *run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	logger.Warn("Document deleted during ingestion, dropping its chunks", "document_id", r.doc.ID)
	if err := in.deps.Vectors.DeleteCollection(ctx, r.doc.ID); err != nil {
		logger.Error("Failed to drop orphaned collection", "document_id", r.doc.ID, "error", err)
	}
	if reader, ok := in.deps.Progress.(ProgressReader); ok {
		_ = reader.Clear(ctx, r.doc.ID)
	}
}

func (in *Ingestor) removeTemp(r *run) {
	if r.tempPath == "" {
		return
	}
	if err := os.Remove(r.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temp file", "path", r.tempPath, "error", err)
	}
}

func (in *Ingestor) download(ctx context.Context, r *run) error {
	f, err := os.CreateTemp(in.deps.TempDir, "ingest-*.pdf")
	if err != nil {
		return apperrors.Storage("create temp file", err)
	}
	r.tempPath = f.Name()
	if err := f.Close(); err != nil {
		return apperrors.Storage("create temp file", err)
	}

	return in.deps.Objects.DownloadToFile(ctx, r.doc.StorageKey, r.tempPath)
}

func (in *Ingestor) extract(ctx context.Context, r *run) error {
	result, err := in.deps.Extractor.ExtractText(ctx, r.tempPath)
	if err != nil {
		return err
	}
	r.text = result.Text
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("pdf.pages", result.Pages),
		attribute.Int("pdf.skipped_pages", result.SkippedPages),
		attribute.Int("pdf.characters", result.CharacterCount),
	)
	logger.Info("Text extracted",
		"document_id", r.doc.ID,
		"pages", result.Pages,
		"skipped_pages", result.SkippedPages,
		"words", result.WordCount,
		"characters", result.CharacterCount,
		"duration", result.ProcessingTime.String(),
	)
	return nil
}

// summarize never fails the run; a missing summary is logged.
func (in *Ingestor) summarize(ctx context.Context, r *run) error {
	if in.deps.Summarizer == nil {
		return nil
	}
	result, err := in.deps.Summarizer.Summarize(ctx, r.text)
	if err != nil {
		logger.Warn("Summary generation failed, continuing without summary", "document_id", r.doc.ID, "error", err)
		return ctx.Err()
	}
	if result.Summary == "" {
		logger.Warn("No summary generated", "document_id", r.doc.ID, "calls", result.Calls, "skipped", result.Skipped)
		return nil
	}
	if err := in.deps.Documents.SetSummary(ctx, r.doc.ID, result.Summary); err != nil {
		logger.Warn("Failed to persist summary", "document_id", r.doc.ID, "error", err)
	}
	return nil
}

func (in *Ingestor) chunk(_ context.Context, r *run) error {
	for _, c := range in.deps.Chunker.Split(r.text) {
		if strings.TrimSpace(c) != "" {
			r.chunks = append(r.chunks, c)
		}
	}
	if len(r.chunks) == 0 {
		return apperrors.Validation("chunk text", errors.New("no chunks generated"))
	}
	return nil
}

func (in *Ingestor) embed(ctx context.Context, r *run) error {
	vectors, err := in.deps.Embedder.Embed(ctx, r.chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(r.chunks) {
		return apperrors.Embedding("embed chunks", fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(r.chunks)))
	}
	r.vectors = vectors
	return nil
}

// store replaces any chunk set left by a previous run.
func (in *Ingestor) store(ctx context.Context, r *run) error {
	if err := in.deps.Vectors.DeleteCollection(ctx, r.doc.ID); err != nil {
		return err
	}
	return in.deps.Vectors.Add(ctx, r.doc.ID, r.chunks, r.vectors)
}
