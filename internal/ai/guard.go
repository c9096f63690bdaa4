package ai

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/telemetry"
)

// RateLimits caps client-side request volume per upstream service.
// The provider enforces the real quota; these keep us from tripping it.
type RateLimits struct {
	RPM int // Requests per minute
}

func clientLimits(service string) RateLimits {
	switch service {
	case "embeddings":
		return RateLimits{RPM: 3000}
	default:
		return RateLimits{RPM: 500}
	}
}

// newLimiter allows 90% of the RPM ceiling with a burst of a tenth of it.
func newLimiter(limits RateLimits) *rate.Limiter {
	rpm := limits.RPM
	if rpm <= 0 {
		rpm = 60
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)
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
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})
}

// maxAttempts bounds each upstream call: one initial try plus retries
// for transient failures.
const maxAttempts = 3

// isRetryable reports whether an upstream failure is worth another
// attempt. Rate limits, timeouts and 5xx are transient; other HTTP
// errors are permanent. Anything non-HTTP (resets, EOF) is assumed
// transient, except an already-dead context.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}
	return true
}

// retryDelay returns the pause before the given 1-based attempt:
// 500ms base doubling per attempt, shifted by up to 25% either way.
func retryDelay(attempt int) time.Duration {
	const base = 500 * time.Millisecond
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	quarter := int64(d / 4)
	return d + time.Duration(rand.Int63n(2*quarter+1)-quarter)
}

// sleepCtx waits for d or until the context dies.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
