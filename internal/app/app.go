// Package app wires the document pipeline from configuration. The API
// server, the worker and the CLI all build their services here.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/storage"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/services"
)

// Components are the shared backends and services of one process.
type Components struct {
	Config  *config.Config
	Metrics *telemetry.Metrics
	Redis   *redis.Client

	Documents services.DocumentStore
	Progress  services.ProgressStore
	Objects   storage.ObjectStore
	Vectors   *vectorstore.Gateway

	Ingestor *services.Ingestor
	Query    *services.QueryService

	closers []func(context.Context)
}

// Build connects every backend named by cfg. On error, whatever was
// already connected is closed.
func Build(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (_ *Components, err error) {
	c := &Components{Config: cfg, Metrics: metrics}
	defer func() {
		if err != nil {
			c.Close(context.WithoutCancel(ctx))
		}
	}()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, err
	}
	c.onClose(func(ctx context.Context) { _ = mongoClient.Disconnect(ctx) })
	c.Documents = documentStore(mongoClient, cfg)

	c.Redis, err = config.NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	rdb := c.Redis
	c.onClose(func(context.Context) { _ = rdb.Close() })
	c.Progress = services.NewRedisProgressStore(c.Redis, 0)

	c.Objects, err = storage.NewMinioStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	milvus, err := vectorstore.NewMilvusIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.onClose(func(ctx context.Context) { _ = milvus.Close(ctx) })
	c.Vectors = vectorstore.NewGateway(milvus)

	embedder, err := ai.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	c.closeIfCloser(embedder)

	generator, err := ai.NewGenerator(ctx, cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	c.closeIfCloser(generator)

	chunking := cfg.Pipeline.Chunking
	chunker, err := services.NewChunker(chunking.ChunkSize, chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	c.Ingestor = services.NewIngestor(services.IngestorDeps{
		Documents:  c.Documents,
		Objects:    c.Objects,
		Extractor:  services.NewPDFExtractor(),
		Summarizer: services.NewSummarizer(generator, ai.NewTokenCounter(cfg.TokenizerEncoding), cfg.Pipeline.Summarizer, metrics),
		Chunker:    chunker,
		Embedder:   embedder,
		Vectors:    c.Vectors,
		Progress:   c.Progress,
		Metrics:    metrics,
		TempDir:    cfg.TempDir,
	})

	var reranker *ai.Reranker
	if cfg.RerankerURL != "" {
		reranker = ai.NewReranker(ai.NewHTTPScorer(cfg.RerankerURL, cfg.RerankerModel))
	} else {
		logger.Warn("RERANKER_URL not set, answers use vector order")
	}
	c.Query = services.NewQueryService(c.Documents, embedder, c.Vectors, reranker, generator, cfg.Pipeline.Retrieval, metrics)

	return c, nil
}

func documentStore(client *mongo.Client, cfg *config.Config) services.DocumentStore {
	return services.NewMongoDocumentStore(client.Database(cfg.DBName), cfg.DocumentsCollection)
}

// DocumentService returns the upload/list/delete surface using dispatcher
// to start ingestion runs.
func (c *Components) DocumentService(dispatcher services.Dispatcher) *services.DocumentService {
	return services.NewDocumentService(c.Documents, c.Objects, c.Vectors, c.Progress, dispatcher, c.Config.MaxFileSize)
}

// Reaper fails runs stuck in PROCESSING past the configured window.
func (c *Components) Reaper() *services.Reaper {
	return services.NewReaper(c.Documents, c.Progress, c.Config.ReaperInterval, c.Config.StaleProcessingAfter)
}

func (c *Components) onClose(fn func(context.Context)) {
	c.closers = append(c.closers, fn)
}

func (c *Components) closeIfCloser(v any) {
	if closer, ok := v.(io.Closer); ok {
		c.onClose(func(context.Context) { _ = closer.Close() })
	}
}

// Close releases backends in reverse order of connection.
func (c *Components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i](ctx)
	}
	c.closers = nil
}
