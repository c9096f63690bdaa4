package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/logger"
	"document-processing-platform/utils"
)

// HandleDeleteTask removes a task everywhere: catalog row (chunks cascade),
// cache keys, and the stored blob. The blob delete is best-effort; the
// catalog delete is not. A task whose row is already gone but whose cache
// entry lingers is still deletable.
func HandleDeleteTask(cat Catalog, cache TaskCache, blobs blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		var blobHandle string
		haveRow := false
		if id, err := strconv.ParseInt(taskID, 10, 64); err == nil && id > 0 {
			doc, err := cat.GetDocument(ctx, id)
			switch {
			case err == nil:
				haveRow = true
				blobHandle = doc.BlobHandle
			case errors.Is(err, catalog.ErrNotFound):
				// fall through to the cache check
			default:
				utils.RespondWithInternalError(c, "Failed to look up task", nil)
				return
			}

			if haveRow {
				if err := cat.DeleteDocument(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
					utils.RespondWithInternalError(c, "Failed to delete task", nil)
					return
				}
			}
		}

		if !haveRow {
			if _, ok := cache.GetTask(ctx, taskID); !ok {
				utils.RespondWithNotFound(c, "task not found")
				return
			}
		}

		cache.DeleteTask(ctx, taskID)

		if blobHandle != "" {
			if err := blobs.Delete(ctx, blobHandle); err != nil {
				logger.Warn("Blob delete failed", "task_id", taskID, "handle", blobHandle, "error", err)
			}
		}

		logger.Info("Task deleted", "task_id", taskID, "had_row", haveRow)
		c.Status(http.StatusNoContent)
	}
}
