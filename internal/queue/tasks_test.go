package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	got IngestPayload
	err error
}

func (f *fakeIngestor) Ingest(_ context.Context, job IngestPayload) error {
	f.got = job
	return f.err
}

func TestNewDocumentIngestTask_PayloadRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	p := IngestPayload{
		TaskID:     "42",
		DocumentID: 42,
		UserID:     7,
		BlobHandle: "uploads/abc/report.pdf",
		Filename:   "report.pdf",
		Prompt:     "summarize the findings",
		CreatedAt:  created,
	}

	task, err := NewDocumentIngestTask(p, 3, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskDocumentIngest, task.Type())

	var decoded IngestPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, p, decoded)
}

func TestNewDocumentIngestTask_OmitsEmptyPrompt(t *testing.T) {
	task, err := NewDocumentIngestTask(IngestPayload{TaskID: "1", DocumentID: 1, UserID: 1}, 3, time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, string(task.Payload()), "prompt")
}

func TestTaskProcessor_DelegatesToPipeline(t *testing.T) {
	ingestor := &fakeIngestor{}
	proc := NewTaskProcessor(ingestor)

	p := IngestPayload{TaskID: "9", DocumentID: 9, UserID: 2, BlobHandle: "uploads/x/y.pdf", Filename: "y.pdf"}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	err = proc.HandleDocumentIngest(context.Background(), asynq.NewTask(TaskDocumentIngest, raw))
	require.NoError(t, err)
	assert.Equal(t, p, ingestor.got)
}

func TestTaskProcessor_PropagatesPipelineError(t *testing.T) {
	wantErr := errors.New("embed upstream down")
	proc := NewTaskProcessor(&fakeIngestor{err: wantErr})

	raw, err := json.Marshal(IngestPayload{TaskID: "3", DocumentID: 3})
	require.NoError(t, err)

	err = proc.HandleDocumentIngest(context.Background(), asynq.NewTask(TaskDocumentIngest, raw))
	assert.ErrorIs(t, err, wantErr)
}

func TestTaskProcessor_MalformedPayloadSkipsRetry(t *testing.T) {
	proc := NewTaskProcessor(&fakeIngestor{})

	err := proc.HandleDocumentIngest(context.Background(), asynq.NewTask(TaskDocumentIngest, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBackoff_DoublesWithBoundedJitter(t *testing.T) {
	expected := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		base := expected[attempt-1]
		for i := 0; i < 50; i++ {
			d := Backoff(attempt)
			assert.GreaterOrEqual(t, d, base-base/4, "attempt %d", attempt)
			assert.LessOrEqual(t, d, base+base/4, "attempt %d", attempt)
		}
	}
}

func TestRetryDelay_FirstRetryUsesBase(t *testing.T) {
	d := RetryDelay(0, errors.New("transient"), nil)
	assert.GreaterOrEqual(t, d, 375*time.Millisecond)
	assert.LessOrEqual(t, d, 625*time.Millisecond)
}
