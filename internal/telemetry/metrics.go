package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	DocumentsSubmitted  metric.Int64Counter
	DocumentsCompleted  metric.Int64Counter
	StageDuration       metric.Float64Histogram
	ChunksPersisted     metric.Int64Counter
	TokensUsed          metric.Int64Counter
	RetrievalDuration   metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-processing-platform")

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

	documentsSubmitted, err := meter.Int64Counter(
		"ingest.documents.submitted",
		metric.WithDescription("Documents accepted for ingestion"),
	)
	if err != nil {
		return nil, err
	}

	documentsCompleted, err := meter.Int64Counter(
		"ingest.documents.finished",
		metric.WithDescription("Documents that reached a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"ingest.stage.duration",
		metric.WithDescription("Ingestion stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksPersisted, err := meter.Int64Counter(
		"ingest.chunks.persisted",
		metric.WithDescription("Chunks written to the catalog"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"ai.tokens.used",
		metric.WithDescription("Tokens consumed by embedding and synthesis calls"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieval.duration",
		metric.WithDescription("ANN retrieval duration in seconds"),
		metric.WithUnit("s"),
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

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		DocumentsSubmitted:  documentsSubmitted,
		DocumentsCompleted:  documentsCompleted,
		StageDuration:       stageDuration,
		ChunksPersisted:     chunksPersisted,
		TokensUsed:          tokensUsed,
		RetrievalDuration:   retrievalDuration,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSubmission records an accepted upload
func (m *Metrics) RecordSubmission(count int64) {
	m.DocumentsSubmitted.Add(context.Background(), count)
}

// RecordCompletion records a document reaching COMPLETED or FAILED
func (m *Metrics) RecordCompletion(status string) {
	m.DocumentsCompleted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("document.status", status)))
}

// RecordStage records one ingestion stage's duration
func (m *Metrics) RecordStage(stage string, duration float64) {
	m.StageDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("ingest.stage", stage)))
}

// RecordChunks records chunks persisted for a document
func (m *Metrics) RecordChunks(count int64) {
	m.ChunksPersisted.Add(context.Background(), count)
}

// RecordTokensUsed records AI token usage
func (m *Metrics) RecordTokensUsed(tokens int64, provider, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordRetrieval records an ANN retrieval round trip
func (m *Metrics) RecordRetrieval(duration float64, degraded bool) {
	m.RetrievalDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.Bool("retrieval.degraded", degraded)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
