package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/catalog"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleTaskStatus reports task progress. The cache answers while its TTL
// lasts; afterwards the durable document row is projected into the same
// shape so old task IDs keep resolving.
func HandleTaskStatus(cache TaskCache, cat Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")

		if rec, ok := cache.GetTask(c.Request.Context(), taskID); ok {
			c.JSON(http.StatusOK, rec)
			return
		}

		id, err := strconv.ParseInt(taskID, 10, 64)
		if err != nil || id <= 0 {
			utils.RespondWithNotFound(c, "task not found")
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		doc, err := cat.GetDocument(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			utils.RespondWithNotFound(c, "task not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to look up task", nil)
			return
		}

		c.JSON(http.StatusOK, taskRecordFromDocument(doc))
	}
}

// taskRecordFromDocument synthesizes the task shape from the catalog row.
// Stage-level progress is gone once the cache entry expires, so terminal
// statuses report 100 and in-flight ones a coarse midpoint.
func taskRecordFromDocument(doc *models.Document) models.TaskRecord {
	rec := models.TaskRecord{
		TaskID:    strconv.FormatInt(doc.ID, 10),
		Status:    doc.Status,
		Progress:  progressForStatus(doc.Status),
		Filename:  doc.Filename,
		CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
	}
	if doc.StartedAt != nil {
		s := doc.StartedAt.UTC().Format(time.RFC3339)
		rec.StartedAt = &s
	}
	if doc.CompletedAt != nil {
		s := doc.CompletedAt.UTC().Format(time.RFC3339)
		rec.CompletedAt = &s
	}
	if doc.ErrorMessage != nil {
		msg := *doc.ErrorMessage
		rec.Error = &msg
	}
	return rec
}

func progressForStatus(status string) int {
	switch status {
	case models.StatusCompleted, models.StatusFailed:
		return 100
	case models.StatusProcessing:
		return 50
	default:
		return 0
	}
}
