package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/ai"
	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/vectorstore"
	"rag-document-platform/models"
)

// ingested returns a pipeline holding one COMPLETED document.
func ingested(t *testing.T) (*testPipeline, *models.Document) {
	t.Helper()
	p := newTestPipeline(t)
	doc := p.seed(t, "owner-1", buildPDF(samplePages()...))
	require.NoError(t, p.ingestor.Process(context.Background(), doc.ID))
	require.Equal(t, models.StatusCompleted, p.reload(t, doc.ID).Status)
	return p, doc
}

func TestAskAnswersFromRetrievedPassages(t *testing.T) {
	p, doc := ingested(t)

	answer, err := p.query.Ask(context.Background(), "owner-1", doc.ID, "  What does page 2 explain about river ecology?  ")
	require.NoError(t, err)

	assert.Equal(t, doc.ID, answer.DocumentID)
	assert.Equal(t, "What does page 2 explain about river ecology?", answer.Query)
	assert.Equal(t, "The answer is in the document.", answer.Answer)
	require.NotEmpty(t, answer.Passages)
	assert.LessOrEqual(t, len(answer.Passages), 5)

	var prompt ai.GenerationRequest
	for _, req := range p.generator.requests() {
		if kindOf(req.Prompt) == answerKind {
			prompt = req
		}
	}
	require.NotEmpty(t, prompt.Prompt)
	assert.Equal(t, answerPrompt(answer.Passages, answer.Query), prompt.Prompt)
	assert.Contains(t, prompt.Prompt, "Question: What does page 2 explain about river ecology?")
	assert.Contains(t, prompt.Prompt, answer.Passages[0].Text)
	assert.Equal(t, 1000, prompt.MaxTokens)
	require.NotNil(t, prompt.Temperature)
	assert.InDelta(t, 0.7, *prompt.Temperature, 1e-9)
}

func TestAnswerPromptFormat(t *testing.T) {
	prompt := answerPrompt([]models.Candidate{{Text: "alpha"}, {Text: "beta"}}, "why?")

	assert.Contains(t, prompt, "Context:\nalpha\n\nbeta\n\nQuestion: why?\n\nAnswer: [/INST]")
	assert.True(t, strings.HasPrefix(prompt, "[INST] Use the following context"))
}

func TestAskRejections(t *testing.T) {
	p, doc := ingested(t)
	ctx := context.Background()

	pending := newTestDocument("owner-1", time.Now())
	require.NoError(t, p.documents.Create(ctx, pending))

	processing := newTestDocument("owner-1", time.Now())
	require.NoError(t, p.documents.Create(ctx, processing))
	_, err := p.documents.Transition(ctx, processing.ID, Transition{To: models.StatusProcessing, At: time.Now()})
	require.NoError(t, err)

	// completed but nothing was ever stored for it
	empty := newTestDocument("owner-1", time.Now())
	empty.Status = models.StatusCompleted
	require.NoError(t, p.documents.Create(ctx, empty))

	tests := []struct {
		name     string
		owner    string
		id       string
		question string
		want     error
	}{
		{"blank question", "owner-1", doc.ID, "   ", apperrors.ErrValidation},
		{"unknown document", "owner-1", "missing", "q", ErrDocumentNotFound},
		{"other owner", "owner-2", doc.ID, "q", ErrDocumentNotFound},
		{"pending", "owner-1", pending.ID, "q", ErrNotProcessed},
		{"processing", "owner-1", processing.ID, "q", ErrNotProcessed},
		{"no vectors", "owner-1", empty.ID, "q", ErrNoRelevantContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(p.generator.requests())
			answer, err := p.query.Ask(ctx, tt.owner, tt.id, tt.question)
			assert.Nil(t, answer)
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, p.generator.requests(), before, "generation must not be called")
		})
	}

	_, err = p.query.Ask(ctx, "owner-1", processing.ID, "q")
	assert.Contains(t, err.Error(), "PROCESSING")
}

func TestAskGenerationFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(ai.GenerationRequest) (string, error)
		also    error
	}{
		{
			name: "service error",
			respond: func(ai.GenerationRequest) (string, error) {
				return "", apperrors.Generation("generate", errors.New("503"))
			},
			also: apperrors.ErrGeneration,
		},
		{
			name: "breaker open",
			respond: func(ai.GenerationRequest) (string, error) {
				return "", apperrors.Generation("generate", ai.ErrGenerationUnavailable)
			},
			also: apperrors.ErrGeneration,
		},
		{
			name: "empty answer",
			respond: func(ai.GenerationRequest) (string, error) {
				return "  \n", nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, doc := ingested(t)
			p.generator.respond = tt.respond

			answer, err := p.query.Ask(context.Background(), "owner-1", doc.ID, "what?")
			assert.Nil(t, answer)
			assert.ErrorIs(t, err, ErrGenerationUnavailable)
			if tt.also != nil {
				assert.ErrorIs(t, err, tt.also)
			}
		})
	}
}

func TestAskEmbeddingFailure(t *testing.T) {
	p, doc := ingested(t)
	q := NewQueryService(p.documents, failingEmbedder{}, vectorstore.NewGateway(p.index), ai.NewReranker(nil), p.generator, config.DefaultPipelineSettings().Retrieval, nil)

	_, err := q.Ask(context.Background(), "owner-1", doc.ID, "what?")
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
}

// reverseScorer ranks later candidates higher.
type reverseScorer struct{}

func (reverseScorer) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = float64(i)
	}
	return scores, nil
}

func TestAskUsesRerankedOrder(t *testing.T) {
	p, doc := ingested(t)
	gateway := vectorstore.NewGateway(p.index)
	retrieval := config.DefaultPipelineSettings().Retrieval
	q := NewQueryService(p.documents, p.embedder, gateway, ai.NewReranker(reverseScorer{}), p.generator, retrieval, nil)

	answer, err := q.Ask(context.Background(), "owner-1", doc.ID, "solar panels")
	require.NoError(t, err)

	vectors, err := p.embedder.Embed(context.Background(), []string{"solar panels"})
	require.NoError(t, err)
	candidates, err := gateway.Query(context.Background(), doc.ID, vectors, retrieval.TopK)
	require.NoError(t, err)
	require.NotEmpty(t, candidates[0])

	last := candidates[0][len(candidates[0])-1]
	require.NotEmpty(t, answer.Passages)
	assert.Equal(t, last.ID, answer.Passages[0].ID)
	require.NotNil(t, answer.Passages[0].RelevanceScore)
	for i := 1; i < len(answer.Passages); i++ {
		assert.GreaterOrEqual(t, *answer.Passages[i-1].RelevanceScore, *answer.Passages[i].RelevanceScore)
	}
}
