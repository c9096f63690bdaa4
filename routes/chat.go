package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleChat answers a question over the caller's ingested documents.
// A document_id the caller does not own 404s before any AI spend.
func HandleChat(chat Chatter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid chat request: question must be 1-2000 characters", nil)
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		res, err := chat.Chat(ctx, userID, req)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			utils.RespondWithNotFound(c, "document not found")
			return
		case errors.Is(err, ai.ErrPermanent):
			utils.RespondWithInternalError(c, "The model rejected this request", nil)
			return
		case err != nil:
			utils.RespondWithUpstreamUnavailable(c, "Chat is temporarily unavailable")
			return
		}

		c.JSON(http.StatusOK, res)
	}
}
