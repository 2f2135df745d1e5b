package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	IngestionDuration   metric.Float64Histogram
	StageFailures       metric.Int64Counter
	GenerationCalls     metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	QueryDuration       metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-document-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageFailures, err := meter.Int64Counter(
		"ingestion.stage.failures",
		metric.WithDescription("Ingestion stage failures"),
	)
	if err != nil {
		return nil, err
	}

	generationCalls, err := meter.Int64Counter(
		"generation.calls.total",
		metric.WithDescription("Calls made to the generation service"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("Question answering duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		IngestionDuration:   ingestionDuration,
		StageFailures:       stageFailures,
		GenerationCalls:     generationCalls,
		CircuitBreakerState: circuitBreakerState,
		QueryDuration:       queryDuration,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordIngestion records the outcome of one ingestion run
func (m *Metrics) RecordIngestion(duration float64, status string) {
	if m == nil {
		return
	}
	m.IngestionDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("ingestion.status", status)))
}

func (m *Metrics) RecordStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("ingestion.stage", stage)))
}

// RecordGeneration counts generation calls by purpose (summary, answer) and outcome
func (m *Metrics) RecordGeneration(purpose string, success bool) {
	if m == nil {
		return
	}
	m.GenerationCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("generation.purpose", purpose),
		attribute.Bool("generation.success", success),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}

func (m *Metrics) RecordQuery(duration float64, outcome string) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("query.outcome", outcome)))
}
