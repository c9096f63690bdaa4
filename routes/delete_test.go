package routes

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/internal/blob"
	"document-processing-platform/models"
)

func TestDeleteTask_RemovesEverywhere(t *testing.T) {
	env := newTestEnv(t)

	handle, err := env.deps.Blobs.Put(context.Background(), "report.pdf", pdfBytes("stored"))
	require.NoError(t, err)
	env.cat.addDocument(models.Document{
		ID:         42,
		UserID:     3,
		Filename:   "report.pdf",
		BlobHandle: handle,
		Status:     models.StatusCompleted,
		CreatedAt:  time.Now().UTC(),
	})
	env.cache.putTask(models.TaskRecord{TaskID: "42", Status: models.StatusCompleted})

	w := env.do(http.MethodDelete, "/task/42", nil, "")

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{42}, env.cat.deletedDocs)
	assert.Equal(t, []string{"42"}, env.cache.deleted)

	_, err = env.deps.Blobs.Get(context.Background(), handle)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestDeleteTask_CacheOnlyEntryStillDeletable(t *testing.T) {
	env := newTestEnv(t)
	env.cache.putTask(models.TaskRecord{TaskID: "42", Status: models.StatusFailed})

	w := env.do(http.MethodDelete, "/task/42", nil, "")

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"42"}, env.cache.deleted)
	assert.Empty(t, env.cat.deletedDocs)
}

func TestDeleteTask_UnknownIs404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodDelete, "/task/42", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
