package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/telemetry"
)

// GeminiGenerator serves GenerationRequests from a hosted Gemini model
// instead of a self-hosted /generate endpoint.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, rps float64, metrics *telemetry.Metrics) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", ErrGenerationUnavailable)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, apperrors.Generation("create client", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &GeminiGenerator{
		client:      client,
		model:       model,
		breaker:     newBreaker("GeminiAPI", metrics),
		rateLimiter: rate.NewLimiter(limit, max(1, int(rps))),
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("generation.prompt_chars", len(req.Prompt)),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", apperrors.Generation("generate", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(float32(req.temperature()))
		model.SetMaxOutputTokens(int32(req.MaxTokens))
		model.StopSequences = stopSequences

		resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return nil, apperrors.Generation("generate content", err)
		}
		text := responseText(resp)
		if text == "" {
			return nil, apperrors.Generation("generate content", errors.New("empty response"))
		}
		if resp.UsageMetadata != nil {
			span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
		}
		return text, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", breakerError(err)
	}

	text := stripInstructionEcho(result.(string))
	span.SetAttributes(attribute.Int("generation.response_chars", len(text)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return sb.String()
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
