package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/models"
)

type scriptedScorer struct {
	scores []float64
	err    error
}

func (s scriptedScorer) Score(_ context.Context, _ string, _ []string) ([]float64, error) {
	return s.scores, s.err
}

func candidates(texts ...string) []models.Candidate {
	out := make([]models.Candidate, len(texts))
	for i, t := range texts {
		out[i] = models.Candidate{ID: t, Text: t, Distance: float64(i)}
	}
	return out
}

func ids(cs []models.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestRerankOrdersByScore(t *testing.T) {
	r := NewReranker(scriptedScorer{scores: []float64{0.1, 0.9, 0.5, 0.9}})
	out := r.Rerank(context.Background(), "q", candidates("a", "b", "c", "d"), 3)

	assert.Equal(t, []string{"b", "d", "c"}, ids(out))
	require.NotNil(t, out[0].RelevanceScore)
	assert.Equal(t, 0.9, *out[0].RelevanceScore)
}

func TestRerankFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		scorer Scorer
	}{
		{"nil scorer", nil},
		{"scorer error", scriptedScorer{err: errors.New("down")}},
		{"wrong length", scriptedScorer{scores: []float64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewReranker(tt.scorer).Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
			assert.Equal(t, []string{"a", "b"}, ids(out))
			assert.Nil(t, out[0].RelevanceScore)
		})
	}
}

func TestRerankBounds(t *testing.T) {
	r := NewReranker(scriptedScorer{scores: []float64{1, 2}})
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 5))
	assert.Len(t, r.Rerank(context.Background(), "q", candidates("a", "b"), 5), 2)
}

func TestHTTPScorerMapsResultsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.8},{"index":0,"relevance_score":0.2}]}`))
	}))
	defer server.Close()

	scores, err := NewHTTPScorer(server.URL, "").Score(context.Background(), "q", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.8}, scores)
}

func TestHTTPScorerMissingResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.2}]}`))
	}))
	defer server.Close()

	_, err := NewHTTPScorer(server.URL, "").Score(context.Background(), "q", []string{"x", "y"})
	assert.Error(t, err)
}
