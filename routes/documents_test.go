package routes

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/models"
)

func seedDocuments(env *testEnv) {
	for i, status := range []string{models.StatusCompleted, models.StatusFailed, models.StatusCompleted} {
		env.cat.addDocument(models.Document{
			ID:        int64(i + 1),
			UserID:    3,
			Filename:  "mine.pdf",
			Status:    status,
			CreatedAt: time.Now().UTC(),
		})
	}
	env.cat.addDocument(models.Document{
		ID:        50,
		UserID:    4,
		Filename:  "theirs.pdf",
		Status:    models.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	})
}

func TestListDocuments_ScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	seedDocuments(env)

	w := env.do(http.MethodGet, "/documents?user_id=3", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeBody[models.DocumentListResponse](t, w)
	assert.Equal(t, 3, res.Total)
	for _, doc := range res.Documents {
		assert.Equal(t, int64(3), doc.UserID)
	}
}

func TestListDocuments_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	seedDocuments(env)

	w := env.do(http.MethodGet, "/documents?user_id=3&status_filter=COMPLETED", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeBody[models.DocumentListResponse](t, w)
	assert.Equal(t, 2, res.Total)
}

func TestListDocuments_InvalidStatusFilter(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/documents?user_id=3&status_filter=DONE", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument_OwnedReturnsRow(t *testing.T) {
	env := newTestEnv(t)
	seedDocuments(env)

	w := env.do(http.MethodGet, "/documents/1?user_id=3", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	doc := decodeBody[models.Document](t, w)
	assert.Equal(t, int64(1), doc.ID)
	assert.Equal(t, "mine.pdf", doc.Filename)
}

func TestGetDocument_CrossTenantIs404(t *testing.T) {
	env := newTestEnv(t)
	seedDocuments(env)

	// Document 50 belongs to user 4; user 3 must not learn it exists.
	w := env.do(http.MethodGet, "/documents/50?user_id=3", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
