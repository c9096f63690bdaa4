package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/catalog"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleTaskResult serves the extraction result: the short-TTL result
// cache first, then the catalog row. 404 only when neither holds a
// completed result.
func HandleTaskResult(cache TaskCache, cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")

		if res, ok := cache.GetResult(c.Request.Context(), taskID); ok {
			c.JSON(http.StatusOK, res)
			return
		}

		id, err := strconv.ParseInt(taskID, 10, 64)
		if err != nil || id <= 0 {
			utils.RespondWithNotFound(c, "result not found")
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		doc, err := cat.GetDocument(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			utils.RespondWithNotFound(c, "result not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to look up result", nil)
			return
		}
		if doc.Status != models.StatusCompleted || doc.ResultText == nil {
			utils.RespondWithNotFound(c, "result not available for this task")
			return
		}

		c.JSON(http.StatusOK, models.ResultResponse{
			TaskID:                taskID,
			Filename:              doc.Filename,
			Text:                  *doc.ResultText,
			PageCount:             doc.PageCount,
			ExtractionTimeSeconds: doc.ExtractionTimeSeconds,
		})
	}
}
