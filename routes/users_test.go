package routes

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-processing-platform/models"
)

func TestCreateUser_MintsAPIKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(http.MethodPost, "/users", models.CreateUserRequest{Email: "ops@example.com"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decodeBody[models.User](t, w)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.True(t, strings.HasPrefix(user.APIKey, "sk-"))
	assert.Len(t, user.APIKey, 43)
}

func TestCreateUser_DuplicateEmailIs409(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(1, "ops@example.com")

	w := env.doJSON(http.MethodPost, "/users", models.CreateUserRequest{Email: "ops@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateUser_InvalidEmailIs400(t *testing.T) {
	env := newTestEnv(t)

	for _, email := range []string{"", "not-an-email"} {
		w := env.doJSON(http.MethodPost, "/users", map[string]string{"email": email})
		assert.Equal(t, http.StatusBadRequest, w.Code, email)
	}
}

func TestGetUser_ReturnsRecord(t *testing.T) {
	env := newTestEnv(t)
	env.cat.addUser(7, "ops@example.com")

	w := env.do(http.MethodGet, "/users/7", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	user := decodeBody[models.User](t, w)
	assert.Equal(t, int64(7), user.ID)
}

func TestGetUser_UnknownIs404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/users/7", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
