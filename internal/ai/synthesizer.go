package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

// OpenAISynthesizer generates answers through OpenAI chat completions.
type OpenAISynthesizer struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	metrics     *telemetry.Metrics
}

func NewOpenAISynthesizer(cfg *config.Config, metrics *telemetry.Metrics) *OpenAISynthesizer {
	return &OpenAISynthesizer{
		client:      openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey), option.WithMaxRetries(0)),
		model:       cfg.SynthesizerModel,
		temperature: cfg.SynthesizerTemperature,
		maxTokens:   cfg.SynthesizerMaxTokens,
		breaker:     newBreaker("OpenAIChat", metrics),
		limiter:     newLimiter(clientLimits("chat")),
		metrics:     metrics,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	model := req.Model
	if model == "" {
		model = s.model
	}

	tracer := otel.Tracer("openai-synthesizer")
	ctx, span := tracer.Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", model),
		attribute.Int("ai.prompt_chars", len(req.System)+len(req.User)),
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(req.System),
					openai.UserMessage(req.User),
				},
				Model:       openai.ChatModel(model),
				Temperature: openai.Float(s.temperature),
				MaxTokens:   openai.Int(int64(s.maxTokens)),
			})
		})
		if err == nil {
			return s.collect(result.(*openai.ChatCompletion))
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

func (s *OpenAISynthesizer) collect(resp *openai.ChatCompletion) (*SynthesisResult, error) {
	if len(resp.Choices) == 0 {
		return nil, permanent(errors.New("synthesis returned no choices"))
	}

	if s.metrics != nil {
		s.metrics.RecordTokensUsed(resp.Usage.TotalTokens, "openai", resp.Model)
	}

	return &SynthesisResult{
		Answer: resp.Choices[0].Message.Content,
		Model:  resp.Model,
		Usage: models.ChatUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
