package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/queue"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// ReconcilerCatalog is the slice of the catalog the sweeper reads and repairs.
type ReconcilerCatalog interface {
	StalePending(ctx context.Context, grace time.Duration) ([]models.Document, error)
	StaleProcessing(ctx context.Context, deadline time.Duration) ([]models.Document, error)
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
}

// TaskEnqueuer submits ingestion tasks to the broker. *asynq.Client
// satisfies it.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector reports broker-side task state. *asynq.Inspector satisfies it.
type TaskInspector interface {
	GetTaskInfo(queueName, id string) (*asynq.TaskInfo, error)
}

// Reconciler repairs documents the normal pipeline lost track of. It runs
// two sweeps on an interval inside the worker binary:
//
//  1. Documents stuck in PENDING past the grace window are re-enqueued.
//     The task ID equals the document ID, so an enqueue that conflicts
//     means the original task is still queued and the document is left
//     alone.
//  2. Documents stuck in PROCESSING well past the per-message deadline
//     with no live broker task are marked FAILED: their worker died
//     between claiming the message and writing a terminal status.
type Reconciler struct {
	catalog   ReconcilerCatalog
	cache     ProgressReporter
	enqueuer  TaskEnqueuer
	inspector TaskInspector
	metrics   *telemetry.Metrics

	scheduler *gocron.Scheduler

	interval     time.Duration
	pendingGrace time.Duration
	lostAfter    time.Duration
	maxRetries   int
	taskDeadline time.Duration
}

// NewReconciler wires a sweeper from configuration. The lost-worker cutoff
// is twice the per-message deadline so a slow-but-alive worker is never
// raced by the sweep.
func NewReconciler(
	cat ReconcilerCatalog,
	cache ProgressReporter,
	enqueuer TaskEnqueuer,
	inspector TaskInspector,
	metrics *telemetry.Metrics,
	cfg *config.Config,
) *Reconciler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Reconciler{
		catalog:      cat,
		cache:        cache,
		enqueuer:     enqueuer,
		inspector:    inspector,
		metrics:      metrics,
		scheduler:    s,
		interval:     cfg.ReconcileInterval,
		pendingGrace: cfg.PendingGrace,
		lostAfter:    2 * cfg.PerMessageDeadline,
		maxRetries:   cfg.MaxIngestRetries,
		taskDeadline: cfg.PerMessageDeadline,
	}
}

// Start schedules the sweep and begins running it in the background.
func (r *Reconciler) Start() error {
	if _, err := r.scheduler.Every(r.interval).Tag("reconcile-documents").Do(r.runSweeps); err != nil {
		return err
	}
	r.scheduler.StartAsync()
	logger.Info("Reconciler started",
		"interval", r.interval.String(),
		"pending_grace", r.pendingGrace.String(),
		"lost_after", r.lostAfter.String(),
	)
	return nil
}

// Stop halts the scheduler. A sweep already in flight finishes.
func (r *Reconciler) Stop() {
	r.scheduler.Stop()
}

func (r *Reconciler) runSweeps() {
	ctx, cancel := utils.WithLongTimeout(context.Background())
	defer cancel()

	if err := r.SweepPending(ctx); err != nil {
		logger.Error("Pending sweep failed", "error", err)
	}
	if err := r.SweepProcessing(ctx); err != nil {
		logger.Error("Processing sweep failed", "error", err)
	}
}

// SweepPending re-enqueues documents whose admission committed the row but
// whose task never reached the broker.
func (r *Reconciler) SweepPending(ctx context.Context) error {
	docs, err := r.catalog.StalePending(ctx, r.pendingGrace)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		payload := queue.IngestPayload{
			TaskID:     strconv.FormatInt(doc.ID, 10),
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			BlobHandle: doc.BlobHandle,
			Filename:   doc.Filename,
			CreatedAt:  doc.CreatedAt,
		}
		if doc.Prompt != nil {
			payload.Prompt = *doc.Prompt
		}

		task, err := queue.NewDocumentIngestTask(payload, r.maxRetries, r.taskDeadline)
		if err != nil {
			logger.Error("Requeue build failed", "document_id", doc.ID, "error", err)
			continue
		}

		if _, err := r.enqueuer.EnqueueContext(ctx, task); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				// Original task is still queued; the document is just slow.
				logger.Debug("Pending document already queued", "document_id", doc.ID)
				continue
			}
			logger.Error("Requeue failed", "document_id", doc.ID, "error", err)
			continue
		}

		logger.Info("Requeued orphaned document",
			"document_id", doc.ID,
			"user_id", doc.UserID,
			"pending_for", time.Since(doc.CreatedAt).String(),
		)
	}
	return nil
}

// SweepProcessing fails documents whose worker vanished mid-flight. A task
// still visible to the broker in a live state means the document is merely
// slow and is skipped.
func (r *Reconciler) SweepProcessing(ctx context.Context) error {
	docs, err := r.catalog.StaleProcessing(ctx, r.lostAfter)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		taskID := strconv.FormatInt(doc.ID, 10)
		if r.taskAlive(taskID) {
			logger.Debug("Processing document still has a live task", "document_id", doc.ID)
			continue
		}

		if err := r.catalog.MarkFailed(ctx, doc.ID, "worker lost"); err != nil {
			logger.Error("Lost-worker mark failed", "document_id", doc.ID, "error", err)
			continue
		}
		if r.cache != nil {
			r.cache.UpdateTask(ctx, taskID, map[string]interface{}{
				"status":       models.StatusFailed,
				"error":        "worker lost",
				"completed_at": time.Now().UTC().Format(time.RFC3339),
			})
		}
		if r.metrics != nil {
			r.metrics.RecordCompletion(models.StatusFailed)
		}

		logger.Warn("Marked lost document failed",
			"document_id", doc.ID,
			"user_id", doc.UserID,
		)
	}
	return nil
}

// taskAlive reports whether the broker still tracks the task in a state
// that can reach a worker.
func (r *Reconciler) taskAlive(taskID string) bool {
	info, err := r.inspector.GetTaskInfo(queue.QueueCritical, taskID)
	if err != nil {
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			// Broker unreachable: assume alive rather than double-fail.
			logger.Warn("Task liveness check failed", "task_id", taskID, "error", err)
			return true
		}
		return false
	}

	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStatePending, asynq.TaskStateScheduled,
		asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return true
	}
	return false
}
