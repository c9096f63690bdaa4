package ai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
)

// ErrPermanent marks upstream failures that retrying cannot fix.
// Callers use it to stop redelivery and record a terminal state.
var ErrPermanent = errors.New("permanent failure")

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// OpenAIEmbedder produces embeddings through the OpenAI API. The SDK's
// own retries are disabled; the attempt loop here owns the backoff so
// the breaker sees every failure.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	metrics    *telemetry.Metrics
}

func NewEmbedder(cfg *config.Config, metrics *telemetry.Metrics) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:     openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey), option.WithMaxRetries(0)),
		model:      cfg.EmbedderModel,
		dimensions: cfg.EmbedderDimensions,
		batchSize:  cfg.EmbedderBatchSize,
		breaker:    newBreaker("OpenAIEmbeddings", metrics),
		limiter:    newLimiter(clientLimits("embeddings")),
		metrics:    metrics,
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order, splitting into provider-sized
// batches. A failure in any batch fails the whole call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	tracer := otel.Tracer("openai-embedder")
	ctx, span := tracer.Start(ctx, "openai.embeddings")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", e.model),
		attribute.Int("ai.input_count", len(texts)),
	)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			span.SetAttributes(attribute.Bool("ai.error", true))
			return nil, err
		}
		out = append(out, vecs...)
	}

	return out, nil
}

// embedOnce runs one provider batch with the shared retry policy.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := e.breaker.Execute(func() (interface{}, error) {
			return e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
				Model: openai.EmbeddingModel(e.model),
			})
		})
		if err == nil {
			return e.collect(result.(*openai.CreateEmbeddingResponse), len(batch))
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("embeddings unavailable: %w", err)
		}
		if !isRetryable(err) {
			return nil, permanent(fmt.Errorf("embeddings request rejected: %w", err))
		}
		lastErr = err
		if attempt < maxAttempts {
			if serr := sleepCtx(ctx, retryDelay(attempt)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("embeddings failed after %d attempts: %w", maxAttempts, lastErr)
}

// collect validates and converts one response. The provider tags each
// vector with its input index, so placement does not rely on response
// order.
func (e *OpenAIEmbedder) collect(resp *openai.CreateEmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, permanent(fmt.Errorf("embeddings count mismatch: got %d, want %d", len(resp.Data), want))
	}

	vecs := make([][]float32, want)
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= want || vecs[idx] != nil {
			return nil, permanent(fmt.Errorf("embeddings response index %d out of range", item.Index))
		}
		vec, err := e.convert(item.Embedding)
		if err != nil {
			return nil, err
		}
		vecs[idx] = vec
	}

	if e.metrics != nil {
		e.metrics.RecordTokensUsed(resp.Usage.TotalTokens, "openai", e.model)
	}
	return vecs, nil
}

// convert checks width and finiteness, then unit-normalizes so cosine
// distance in the index is exact regardless of provider scaling.
func (e *OpenAIEmbedder) convert(raw []float64) ([]float32, error) {
	if len(raw) != e.dimensions {
		return nil, permanent(fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(raw), e.dimensions))
	}

	vec := make([]float32, len(raw))
	var sum float64
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, permanent(fmt.Errorf("embedding component %d is not finite", i))
		}
		vec[i] = float32(v)
		sum += v * v
	}

	if norm := math.Sqrt(sum); norm > 0 {
		inv := 1 / norm
		for i, v := range raw {
			vec[i] = float32(v * inv)
		}
	}
	return vec, nil
}
