package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// HandleHealth pings both stores. Postgres down means the service cannot
// do real work, so the endpoint reports 503. Redis is advisory: its loss
// degrades the status but keeps the response 200.
func HandleHealth(cat Catalog, cache TaskCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		res := models.HealthResponse{
			Status:    "ok",
			Postgres:  "up",
			Redis:     "up",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if err := cat.Ping(ctx); err != nil {
			res.Postgres = "down"
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if err := cache.Ping(ctx); err != nil {
			res.Redis = "down"
			res.Status = "degraded"
		}

		c.JSON(code, res)
	}
}
