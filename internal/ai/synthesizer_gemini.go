package ai

import (
	"context"
	"errors"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

// GeminiSynthesizer generates answers through Google Generative AI.
type GeminiSynthesizer struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	metrics     *telemetry.Metrics
}

func NewGeminiSynthesizer(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiSynthesizer{
		client:      client,
		model:       cfg.GeminiModel,
		temperature: cfg.SynthesizerTemperature,
		maxTokens:   cfg.SynthesizerMaxTokens,
		breaker:     newBreaker("GeminiAPI", metrics),
		limiter:     newLimiter(clientLimits("chat")),
		metrics:     metrics,
	}, nil
}

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = s.model
	}

	tracer := otel.Tracer("gemini-synthesizer")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", modelName),
		attribute.Int("ai.prompt_chars", len(req.System)+len(req.User)),
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := s.breaker.Execute(func() (interface{}, error) {
			model := s.client.GenerativeModel(modelName)
			model.SetTemperature(float32(s.temperature))
			model.SetMaxOutputTokens(int32(s.maxTokens))
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(req.System)},
			}
			return model.GenerateContent(ctx, genai.Text(req.User))
		})
		if err == nil {
			return s.collect(result.(*genai.GenerateContentResponse), modelName)
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("ai.circuit_open", true))
			return nil, fmt.Errorf("synthesis unavailable: %w", err)
		}
		if !isRetryable(err) {
			span.SetAttributes(attribute.Bool("ai.error", true))
			return nil, permanent(fmt.Errorf("synthesis request rejected: %w", err))
		}
		lastErr = err
		if attempt < maxAttempts {
			if serr := sleepCtx(ctx, retryDelay(attempt)); serr != nil {
				return nil, serr
			}
		}
	}

	span.SetAttributes(attribute.Bool("ai.error", true))
	return nil, fmt.Errorf("synthesis failed after %d attempts: %w", maxAttempts, lastErr)
}

func (s *GeminiSynthesizer) collect(resp *genai.GenerateContentResponse, modelName string) (*SynthesisResult, error) {
	answer := flattenCandidates(resp)
	if answer == "" {
		return nil, permanent(errors.New("synthesis returned no candidates"))
	}

	usage := models.ChatUsage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	if s.metrics != nil {
		s.metrics.RecordTokensUsed(int64(usage.TotalTokens), "google", modelName)
	}

	return &SynthesisResult{Answer: answer, Model: modelName, Usage: usage}, nil
}

func flattenCandidates(resp *genai.GenerateContentResponse) string {
	out := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}

func (s *GeminiSynthesizer) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
