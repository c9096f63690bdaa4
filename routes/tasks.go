package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleListTasks pages through the recent-task list. The list lives only
// in the cache, so a downed Redis makes this endpoint unavailable rather
// than silently empty.
func HandleListTasks(cache TaskCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit := pagination(c)

		tasks, total, err := cache.ListTasks(c.Request.Context(), offset, limit)
		if err != nil {
			utils.RespondWithUpstreamUnavailable(c, "Task listing is temporarily unavailable")
			return
		}
		if tasks == nil {
			tasks = []models.TaskRecord{}
		}

		c.JSON(http.StatusOK, models.TaskListResponse{
			Tasks:  tasks,
			Total:  total,
			Offset: offset,
			Limit:  limit,
		})
	}
}
