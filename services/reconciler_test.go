package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/internal/config"
	"document-processing-platform/internal/queue"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

type fakeReconcilerCatalog struct {
	stalePending    []models.Document
	staleProcessing []models.Document
	scanErr         error
	failed          map[int64]string
}

func (f *fakeReconcilerCatalog) StalePending(_ context.Context, _ time.Duration) ([]models.Document, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.stalePending, nil
}

func (f *fakeReconcilerCatalog) StaleProcessing(_ context.Context, _ time.Duration) ([]models.Document, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.staleProcessing, nil
}

func (f *fakeReconcilerCatalog) MarkFailed(_ context.Context, id int64, errorMessage string) error {
	if f.failed == nil {
		f.failed = make(map[int64]string)
	}
	f.failed[id] = errorMessage
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeInspector struct {
	infos map[string]*asynq.TaskInfo
	err   error
}

func (f *fakeInspector) GetTaskInfo(_, id string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[id]
	if !ok {
		return nil, fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound)
	}
	return info, nil
}

func setupReconciler(t *testing.T, cat *fakeReconcilerCatalog, enq *fakeEnqueuer, insp *fakeInspector) (*Reconciler, *fakeProgress) {
	t.Helper()

	metrics, err := telemetry.InitMetrics()
	require.NoError(t, err)

	cache := &fakeProgress{}
	cfg := &config.Config{
		ReconcileInterval:  time.Minute,
		PendingGrace:       10 * time.Minute,
		PerMessageDeadline: 10 * time.Minute,
		MaxIngestRetries:   3,
	}
	return NewReconciler(cat, cache, enq, insp, metrics, cfg), cache
}

func staleDoc(id int64, status string, age time.Duration) models.Document {
	created := time.Now().Add(-age)
	doc := models.Document{
		ID:         id,
		UserID:     3,
		Filename:   fmt.Sprintf("doc-%d.pdf", id),
		BlobHandle: fmt.Sprintf("uploads/x/doc-%d.pdf", id),
		Status:     status,
		CreatedAt:  created,
	}
	if status == models.StatusProcessing {
		doc.StartedAt = &created
	}
	return doc
}

func TestReconciler_SweepPendingRequeuesOrphans(t *testing.T) {
	prompt := "summarize the findings"
	withPrompt := staleDoc(11, models.StatusPending, time.Hour)
	withPrompt.Prompt = &prompt

	cat := &fakeReconcilerCatalog{stalePending: []models.Document{
		staleDoc(10, models.StatusPending, time.Hour),
		withPrompt,
	}}
	enq := &fakeEnqueuer{}
	r, _ := setupReconciler(t, cat, enq, &fakeInspector{})

	require.NoError(t, r.SweepPending(context.Background()))
	require.Len(t, enq.tasks, 2)

	assert.Equal(t, queue.TaskDocumentIngest, enq.tasks[0].Type())

	var first queue.IngestPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &first))
	assert.Equal(t, "10", first.TaskID)
	assert.Equal(t, int64(10), first.DocumentID)
	assert.Equal(t, "uploads/x/doc-10.pdf", first.BlobHandle)
	assert.Empty(t, first.Prompt)

	var second queue.IngestPayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &second))
	assert.Equal(t, prompt, second.Prompt)
}

func TestReconciler_SweepPendingToleratesQueuedTask(t *testing.T) {
	cat := &fakeReconcilerCatalog{stalePending: []models.Document{
		staleDoc(10, models.StatusPending, time.Hour),
	}}
	enq := &fakeEnqueuer{err: fmt.Errorf("asynq: %w", asynq.ErrTaskIDConflict)}
	r, _ := setupReconciler(t, cat, enq, &fakeInspector{})

	// A conflicting task ID means the original enqueue made it after all.
	require.NoError(t, r.SweepPending(context.Background()))
	assert.Empty(t, enq.tasks)
}

func TestReconciler_SweepPendingPropagatesScanError(t *testing.T) {
	cat := &fakeReconcilerCatalog{scanErr: errors.New("connection refused")}
	r, _ := setupReconciler(t, cat, &fakeEnqueuer{}, &fakeInspector{})

	assert.Error(t, r.SweepPending(context.Background()))
}

func TestReconciler_SweepProcessingMarksLostWorker(t *testing.T) {
	cat := &fakeReconcilerCatalog{staleProcessing: []models.Document{
		staleDoc(20, models.StatusProcessing, time.Hour),
	}}
	insp := &fakeInspector{} // broker has no trace of task "20"
	r, cache := setupReconciler(t, cat, &fakeEnqueuer{}, insp)

	require.NoError(t, r.SweepProcessing(context.Background()))

	assert.Equal(t, "worker lost", cat.failed[20])

	require.Len(t, cache.updates, 1)
	assert.Equal(t, models.StatusFailed, cache.updates[0]["status"])
	assert.Equal(t, "worker lost", cache.updates[0]["error"])
}

func TestReconciler_SweepProcessingSparesLiveTask(t *testing.T) {
	cat := &fakeReconcilerCatalog{staleProcessing: []models.Document{
		staleDoc(20, models.StatusProcessing, time.Hour),
	}}
	insp := &fakeInspector{infos: map[string]*asynq.TaskInfo{
		"20": {State: asynq.TaskStateActive},
	}}
	r, cache := setupReconciler(t, cat, &fakeEnqueuer{}, insp)

	require.NoError(t, r.SweepProcessing(context.Background()))

	assert.Empty(t, cat.failed)
	assert.Empty(t, cache.updates)
}

func TestReconciler_SweepProcessingFailsArchivedTask(t *testing.T) {
	cat := &fakeReconcilerCatalog{staleProcessing: []models.Document{
		staleDoc(21, models.StatusProcessing, time.Hour),
	}}
	insp := &fakeInspector{infos: map[string]*asynq.TaskInfo{
		"21": {State: asynq.TaskStateArchived},
	}}
	r, _ := setupReconciler(t, cat, &fakeEnqueuer{}, insp)

	require.NoError(t, r.SweepProcessing(context.Background()))
	assert.Equal(t, "worker lost", cat.failed[21])
}

func TestReconciler_SweepProcessingSparesOnBrokerOutage(t *testing.T) {
	cat := &fakeReconcilerCatalog{staleProcessing: []models.Document{
		staleDoc(20, models.StatusProcessing, time.Hour),
	}}
	insp := &fakeInspector{err: errors.New("dial tcp: connection refused")}
	r, _ := setupReconciler(t, cat, &fakeEnqueuer{}, insp)

	require.NoError(t, r.SweepProcessing(context.Background()))
	assert.Empty(t, cat.failed)
}
