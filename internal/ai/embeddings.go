package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
)

// ErrEmbedderUnavailable is reported when no embedding provider is configured.
var ErrEmbedderUnavailable = errors.New("embedding provider unavailable")

const googleBatchLimit = 100

// Embedder maps texts to vectors: one per input, in input order, all of the
// same dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder builds the configured provider.
// Default provider is Google Generative AI (text-embedding-004).
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", ErrEmbedderUnavailable)
		}
		return NewGoogleEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: missing OPENAI_API_KEY", ErrEmbedderUnavailable)
		}
		return NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel, 30*time.Second), nil
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", ErrEmbedderUnavailable, cfg.EmbeddingsProvider)
	}
}

type GoogleEmbedder struct {
	client *genai.Client
	model  string
}

func NewGoogleEmbedder(ctx context.Context, apiKey, model string) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, apperrors.Embedding("create client", err)
	}
	return &GoogleEmbedder{client: client, model: model}, nil
}

func (g *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.model)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += googleBatchLimit {
		end := min(start+googleBatchLimit, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, apperrors.Embedding("batch embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, apperrors.Embedding("batch embed", fmt.Errorf("expected %d embeddings, got %d", end-start, len(resp.Embeddings)))
		}
		for _, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, apperrors.Embedding("batch embed", errors.New("empty embedding returned"))
			}
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, checkDimensions(vectors)
}

func (g *GoogleEmbedder) Close() error {
	return g.client.Close()
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	type reqBody struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	data, err := json.Marshal(reqBody{Input: texts, Model: c.model})
	if err != nil {
		return nil, apperrors.Embedding("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Embedding("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Embedding("request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.Embedding("request", fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Embedding("decode response", err)
	}
	if len(out.Data) != len(texts) {
		return nil, apperrors.Embedding("decode response", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data)))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, apperrors.Embedding("decode response", errors.New("empty embedding"))
		}
		vectors[i] = d.Embedding
	}
	return vectors, checkDimensions(vectors)
}

func checkDimensions(vectors [][]float32) error {
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return apperrors.Embedding("check dimensions", fmt.Errorf("vector %d has dimension %d, want %d", i, len(vectors[i]), len(vectors[0])))
		}
	}
	return nil
}

// HashEmbedder is a deterministic bag-of-words embedder with no external
// dependency. Texts sharing words land close together.
type HashEmbedder struct {
	Dim int
}

func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 64
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(strings.Trim(w, ".,;:!?\"'()")))
			v[f.Sum32()%uint32(dim)]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range v {
				v[j] /= n
			}
		}
		vectors[i] = v
	}
	return vectors, nil
}
