package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"rag-document-platform/internal/apperrors"
	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
)

const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7

	instEcho = "[/INST]"
)

// ErrGenerationUnavailable is returned when the generation service cannot
// serve requests at all (breaker open, not configured).
var ErrGenerationUnavailable = errors.New("generation service unavailable")

var stopSequences = []string{"User:", "###", "</s>"}

// GenerationRequest is one completion call. A nil Temperature uses
// DefaultTemperature; zero asks for greedy decoding.
type GenerationRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// Temperature returns a pointer for GenerationRequest.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

func (r GenerationRequest) temperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

type GenerationConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Metrics *telemetry.Metrics
}

// GenerationClient talks to a text-generation-inference style /generate endpoint.
type GenerationClient struct {
	baseURL     string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	N           int      `json:"n"`
	Stop        []string `json:"stop"`
	Stream      bool     `json:"stream"`
}

type generateResponse struct {
	Text []string `json:"text"`
}

func NewGenerationClient(cfg GenerationConfig) (*GenerationClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: no base URL configured", ErrGenerationUnavailable)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(cfg.RPS))
	}

	breaker := newBreaker("GenerationService", cfg.Metrics)

	return &GenerationClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (gc *GenerationClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	tracer := otel.Tracer("generation-client")
	ctx, span := tracer.Start(ctx, "generation.generate")
	defer span.End()

	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	span.SetAttributes(
		attribute.Int("generation.prompt_chars", len(req.Prompt)),
		attribute.Int("generation.max_tokens", req.MaxTokens),
		attribute.Float64("generation.temperature", req.temperature()),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("generation.rate_limited", true))
		return "", apperrors.Generation("generate", err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		return gc.post(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", breakerError(err)
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("generation.response_chars", len(text)))
	return text, nil
}

func (gc *GenerationClient) post(ctx context.Context, req GenerationRequest) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.temperature(),
		N:           1,
		Stop:        stopSequences,
		Stream:      false,
	})
	if err != nil {
		return "", apperrors.Generation("encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gc.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Generation("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := gc.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.Generation("request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperrors.Generation("request", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Generation("decode response", err)
	}
	if len(out.Text) == 0 {
		return "", apperrors.Generation("decode response", errors.New("empty text in response"))
	}

	return stripInstructionEcho(out.Text[0]), nil
}

func newBreaker(name string, metrics *telemetry.Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})
}

// breakerError classifies an error returned from a breaker-guarded call.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Generation("generate", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err))
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Generation("generate", err)
}

// NewGenerator builds the configured generation backend: the self-hosted
// /generate service (default) or Gemini.
func NewGenerator(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (Generator, error) {
	switch cfg.GenerationProvider {
	case "http", "":
		return NewGenerationClient(GenerationConfig{
			BaseURL: cfg.GenerationServiceURL,
			Timeout: cfg.GenerationTimeout,
			RPS:     cfg.GenerationRPS,
			Metrics: metrics,
		})
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiGenerationModel, cfg.GenerationRPS, metrics)
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", ErrGenerationUnavailable, cfg.GenerationProvider)
	}
}

// stripInstructionEcho drops a prompt echoed back ahead of the completion.
func stripInstructionEcho(text string) string {
	if _, after, found := strings.Cut(text, instEcho); found {
		text = after
	}
	return strings.TrimSpace(text)
}
