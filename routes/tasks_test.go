package routes

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/models"
)

func TestListTasks_PagesInInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 5; i++ {
		env.cache.putTask(models.TaskRecord{
			TaskID:   fmt.Sprintf("%d", i),
			Status:   models.StatusCompleted,
			Progress: 100,
			Filename: fmt.Sprintf("doc-%d.pdf", i),
		})
	}

	w := env.do(http.MethodGet, "/tasks?offset=1&limit=2", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeBody[models.TaskListResponse](t, w)
	assert.Equal(t, int64(5), res.Total)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "2", res.Tasks[0].TaskID)
	assert.Equal(t, "3", res.Tasks[1].TaskID)
	assert.Equal(t, 1, res.Offset)
	assert.Equal(t, 2, res.Limit)
}

func TestListTasks_EmptyListIsNotNull(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/tasks", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tasks":[]`)
}

func TestListTasks_CacheOutageIs503(t *testing.T) {
	env := newTestEnv(t)
	env.cache.listErr = errors.New("connection refused")

	w := env.do(http.MethodGet, "/tasks", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
