// Package ai wraps the upstream model providers behind narrow interfaces
// so the pipeline and chat layers never see provider SDK types. Every
// outbound call goes through a circuit breaker and a client-side rate
// limiter, with bounded retries for transient failures.
package ai

import (
	"context"
	"fmt"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	// EmbedBatch embeds texts preserving input order. Inputs beyond the
	// provider batch limit are split transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector width this embedder produces.
	Dimensions() int
}

// SynthesisRequest carries one grounded generation request. Model
// overrides the configured default when set.
type SynthesisRequest struct {
	System string
	User   string
	Model  string
}

// SynthesisResult is one grounded answer from a Synthesizer.
type SynthesisResult struct {
	Answer string
	Model  string
	Usage  models.ChatUsage
}

// Synthesizer produces an answer from a system prompt and a user message.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// NewSynthesizer builds the provider selected by SYNTHESIZER_PROVIDER.
func NewSynthesizer(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (Synthesizer, error) {
	switch cfg.SynthesizerProvider {
	case "openai":
		return NewOpenAISynthesizer(cfg, metrics), nil
	case "google", "gemini":
		return NewGeminiSynthesizer(ctx, cfg, metrics)
	default:
		return nil, fmt.Errorf("unknown synthesizer provider: %s", cfg.SynthesizerProvider)
	}
}
