package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/catalog"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleListDocuments pages through one user's documents, newest first.
func HandleListDocuments(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		statusFilter, ok := statusFilterParam(c)
		if !ok {
			return
		}
		offset, limit := pagination(c)

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		docs, total, err := cat.ListDocuments(ctx, userID, statusFilter, offset, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		if docs == nil {
			docs = []models.Document{}
		}

		c.JSON(http.StatusOK, models.DocumentListResponse{
			Documents: docs,
			Total:     total,
			Offset:    offset,
			Limit:     limit,
		})
	}
}

// HandleGetDocument returns one document when the caller owns it.
// Someone else's document and a nonexistent one are indistinguishable.
func HandleGetDocument(cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		doc, err := cat.GetDocumentOwned(ctx, id, userID)
		if errors.Is(err, catalog.ErrNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}
