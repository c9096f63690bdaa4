// Package queue defines the ingestion task contract shared by producers
// (upload route, reconciler) and the worker. Redis via asynq is the broker;
// Postgres remains the source of truth for document state.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"

	"document-processing-platform/internal/logger"
)

const (
	// TaskDocumentIngest runs the full fetch-parse-chunk-embed-persist
	// pipeline for one uploaded document.
	TaskDocumentIngest = "document:ingest"

	// QueueCritical carries ingestion work. The worker drains it before
	// the default and low queues.
	QueueCritical = "critical"
)

// IngestPayload is the complete job description for one document.
// TaskID doubles as the asynq task ID so a document can never be
// enqueued twice while a prior run is still pending or in flight.
type IngestPayload struct {
	TaskID     string    `json:"task_id"`
	DocumentID int64     `json:"document_id"`
	UserID     int64     `json:"user_id"`
	BlobHandle string    `json:"blob_handle"`
	Filename   string    `json:"filename"`
	Prompt     string    `json:"prompt,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDocumentIngestTask builds the asynq task for a payload. maxRetry and
// deadline come from configuration so the producer and worker agree on the
// retry budget.
func NewDocumentIngestTask(p IngestPayload, maxRetry int, deadline time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest payload: %w", err)
	}

	return asynq.NewTask(
		TaskDocumentIngest,
		payload,
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(deadline),
		asynq.Queue(QueueCritical),
		asynq.TaskID(p.TaskID),
	), nil
}

// Ingestor is the worker-side pipeline. Ingest returns nil when the
// document reached COMPLETED or a terminal FAILED was recorded; it wraps
// asynq.SkipRetry for failures that must not be retried.
type Ingestor interface {
	Ingest(ctx context.Context, job IngestPayload) error
}

// TaskProcessor adapts the pipeline to asynq handlers.
type TaskProcessor struct {
	pipeline Ingestor
}

func NewTaskProcessor(pipeline Ingestor) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

func (p *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	logger.Info("Ingest task claimed",
		"task_id", payload.TaskID,
		"document_id", payload.DocumentID,
		"user_id", payload.UserID,
		"retried", retried,
	)

	return p.pipeline.Ingest(ctx, payload)
}

// RetryDelay implements the worker retry schedule: 500ms base doubling
// per attempt, with 25% jitter so a burst of failures does not reland
// in lockstep. n is the number of times the task has been retried.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return Backoff(n + 1)
}

// Backoff returns the delay before the given 1-based attempt.
func Backoff(attempt int) time.Duration {
	const base = 500 * time.Millisecond
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	return addJitter(d)
}

// addJitter shifts a delay by up to 25% in either direction.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	quarter := int64(d / 4)
	return d + time.Duration(rand.Int63n(2*quarter+1)-quarter)
}
