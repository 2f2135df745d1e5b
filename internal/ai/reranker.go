package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

// Scorer returns one relevance score per document for the query.
type Scorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Reranker reorders vector-search candidates by cross-encoder relevance.
type Reranker struct {
	scorer Scorer
}

// NewReranker accepts a nil scorer; Rerank then always falls back to input order.
func NewReranker(scorer Scorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank returns at most n candidates, highest relevance first. Without a
// working scorer the first n candidates are returned unscored.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.Candidate, n int) []models.Candidate {
	if len(candidates) == 0 || n <= 0 {
		return []models.Candidate{}
	}
	n = min(n, len(candidates))

	fallback := func(reason string, args ...any) []models.Candidate {
		logger.Warn("Reranker fallback to vector order", append([]any{"reason", reason}, args...)...)
		out := make([]models.Candidate, n)
		copy(out, candidates[:n])
		return out
	}

	if r == nil || r.scorer == nil {
		return fallback("no scorer configured")
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return fallback("scorer error", "error", err)
	}
	if len(scores) != len(candidates) {
		return fallback("score count mismatch", "expected", len(candidates), "got", len(scores))
	}

	scored := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		s := scores[i]
		c.RelevanceScore = &s
		scored[i] = c
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].RelevanceScore > *scored[j].RelevanceScore
	})
	return scored[:n]
}

// HTTPScorer calls a /rerank endpoint serving a cross-encoder model.
type HTTPScorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func NewHTTPScorer(baseURL, model string) *HTTPScorer {
	if model == "" {
		model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	return &HTTPScorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, apperrors.Generation("rerank encode", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Generation("rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Generation("rerank request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.Generation("rerank request", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Generation("rerank decode", err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, apperrors.Generation("rerank decode", fmt.Errorf("result index %d out of range", res.Index))
		}
		scores[res.Index] = res.RelevanceScore
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, apperrors.Generation("rerank decode", fmt.Errorf("no score for document %d", i))
		}
	}
	return scores, nil
}
