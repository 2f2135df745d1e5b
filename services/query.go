package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

const answerPromptTemplate = `[INST] Use the following context to answer the question. If the answer is not in the context, say "I don't have enough information to answer that based on the provided document. You may elaborate and explain in greater detail if you think it's beneficial."

Context:
%s

Question: %s

Answer: [/INST]`

func answerPrompt(passages []models.Candidate, question string) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return fmt.Sprintf(answerPromptTemplate, strings.Join(texts, "\n\n"), question)
}

// QueryService answers questions about one processed document.
type QueryService struct {
	documents DocumentStore
	embedder  ai.Embedder
	vectors   *vectorstore.Gateway
	reranker  *ai.Reranker
	generator ai.Generator
	settings  config.RetrievalSettings
	metrics   *telemetry.Metrics
}

func NewQueryService(documents DocumentStore, embedder ai.Embedder, vectors *vectorstore.Gateway, reranker *ai.Reranker, generator ai.Generator, settings config.RetrievalSettings, metrics *telemetry.Metrics) *QueryService {
	return &QueryService{
		documents: documents,
		embedder:  embedder,
		vectors:   vectors,
		reranker:  reranker,
		generator: generator,
		settings:  settings,
		metrics:   metrics,
	}
}

// Ask retrieves the passages closest to question, reranks them and generates
// an answer grounded in the best ones.
func (q *QueryService) Ask(ctx context.Context, ownerID, documentID, question string) (answer *models.QueryAnswer, err error) {
	start := time.Now()
	ctx, span := otel.Tracer("query").Start(ctx, "QueryService.Ask")
	span.SetAttributes(attribute.String("document_id", documentID))
	defer func() {
		outcome := "answered"
		if err != nil {
			outcome = queryOutcome(err)
			span.RecordError(err)
		}
		q.metrics.RecordQuery(time.Since(start).Seconds(), outcome)
		span.End()
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.Validation("ask", errors.New("query text is required"))
	}

	doc, err := q.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotProcessed, doc.Status)
	}

	vectors, err := q.embedder.Embed(ctx, []string{question})
	if err != nil {
		if apperrors.KindOf(err) == "" {
			err = apperrors.Embedding("embed query", err)
		}
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperrors.Embedding("embed query", fmt.Errorf("got %d embeddings for 1 query", len(vectors)))
	}

	results, err := q.vectors.Query(ctx, documentID, vectors, q.settings.TopK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || len(results[0]) == 0 {
		return nil, ErrNoRelevantContent
	}

	passages := q.reranker.Rerank(ctx, question, results[0], q.settings.TopN)
	if len(passages) == 0 {
		return nil, ErrNoRelevantContent
	}
	span.SetAttributes(attribute.Int("candidates", len(results[0])), attribute.Int("passages", len(passages)))

	prompt := answerPrompt(passages, question)
	logger.Debug("Sending answer prompt", "document_id", documentID, "prompt_chars", len(prompt))

	text, err := q.generator.Generate(ctx, ai.GenerationRequest{
		Prompt:      prompt,
		MaxTokens:   q.settings.AnswerMaxTokens,
		Temperature: ai.Temperature(q.settings.AnswerTemperature),
	})
	if err != nil {
		if !errors.Is(err, ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
		}
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrGenerationUnavailable)
	}

	return &models.QueryAnswer{
		DocumentID: documentID,
		Query:      question,
		Answer:     text,
		Passages:   passages,
	}, nil
}

func queryOutcome(err error) string {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, ErrNotProcessed):
		return "not_processed"
	case errors.Is(err, ErrNoRelevantContent):
		return "no_relevant_content"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	default:
		return "error"
	}
}
