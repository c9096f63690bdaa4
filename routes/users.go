package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/logger"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleCreateUser registers a tenant and mints an api_key. The key is an
// opaque identifier returned once at creation.
func HandleCreateUser(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A valid email is required", nil)
			return
		}

		apiKey, err := utils.GenerateAPIKey()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to generate api key", nil)
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		user, err := cat.CreateUser(ctx, req.Email, apiKey)
		if errors.Is(err, catalog.ErrDuplicate) {
			utils.RespondWithConflict(c, "email already registered")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		logger.Info("User created", "user_id", user.ID)
		c.JSON(http.StatusCreated, user)
	}
}

// HandleGetUser returns one user record.
func HandleGetUser(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		user, err := cat.GetUser(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			utils.RespondWithNotFound(c, "user not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load user", nil)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}
