// Package routes is the HTTP surface: admission, task and document
// queries, users, chat, and ops endpoints. Handlers are thin adapters
// over the services layer; every body is JSON except the report
// download.
package routes

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
	"document-processing-platform/services"
	"document-processing-platform/utils"
)

// Catalog is the slice of the document catalog the HTTP surface uses.
// *catalog.Store satisfies it.
type Catalog interface {
	CreateDocument(ctx context.Context, userID int64, filename, blobHandle string, prompt *string) (*models.Document, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	GetDocumentOwned(ctx context.Context, id, userID int64) (*models.Document, error)
	ListDocuments(ctx context.Context, userID int64, statusFilter *string, offset, limit int) ([]models.Document, int, error)
	DeleteDocument(ctx context.Context, id int64) error
	CreateUser(ctx context.Context, email, apiKey string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	Ping(ctx context.Context) error
}

// TaskCache is the advisory progress cache. *progresscache.Cache satisfies
// it; reads tolerate a downed Redis by falling back to the catalog.
type TaskCache interface {
	RegisterTask(ctx context.Context, taskID, filename string, createdAt time.Time)
	GetTask(ctx context.Context, taskID string) (*models.TaskRecord, bool)
	GetResult(ctx context.Context, taskID string) (*models.CachedResult, bool)
	DeleteTask(ctx context.Context, taskID string)
	ListTasks(ctx context.Context, offset, limit int) ([]models.TaskRecord, int64, error)
	Ping(ctx context.Context) error
}

// Chatter answers retrieval-augmented questions. *services.ChatOrchestrator
// satisfies it.
type Chatter interface {
	Chat(ctx context.Context, userID int64, req models.ChatRequest) (*models.ChatResponse, error)
}

// ReportRenderer builds downloadable ops reports. *services.ReportBuilder
// satisfies it.
type ReportRenderer interface {
	BuildDocumentsWorkbook(ctx context.Context, userID int64, statusFilter *string) ([]byte, error)
}

// Deps carries the wiring for every handler.
type Deps struct {
	Cfg      *config.Config
	Catalog  Catalog
	Cache    TaskCache
	Blobs    blob.Store
	Enqueuer services.TaskEnqueuer
	Chat     Chatter
	Reports  ReportRenderer
	Metrics  *telemetry.Metrics
}

// Register mounts the API on the engine.
func Register(router *gin.Engine, d *Deps) {
	router.POST("/upload", HandleUpload(d.Cfg, d.Catalog, d.Cache, d.Blobs, d.Enqueuer, d.Metrics))
	router.GET("/status/:task_id", HandleTaskStatus(d.Cache, d.Catalog))
	router.GET("/result/:task_id", HandleTaskResult(d.Cache, d.Catalog))
	router.GET("/tasks", HandleListTasks(d.Cache))
	router.DELETE("/task/:task_id", HandleDeleteTask(d.Catalog, d.Cache, d.Blobs))

	router.GET("/documents", HandleListDocuments(d.Catalog))
	router.GET("/documents/:id", HandleGetDocument(d.Catalog))

	router.POST("/users", HandleCreateUser(d.Catalog))
	router.GET("/users/:id", HandleGetUser(d.Catalog))

	router.POST("/chat", HandleChat(d.Chat))

	router.GET("/health", HandleHealth(d.Catalog, d.Cache))
	router.GET("/admin/reports/documents", HandleDocumentsReport(d.Reports))
}

// requireUserID reads the user_id query parameter every tenant-scoped
// endpoint carries.
func requireUserID(c *gin.Context) (int64, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		utils.RespondWithBadRequest(c, "user_id query parameter is required", nil)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithBadRequest(c, "user_id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// pathID parses a numeric path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithNotFound(c, name+" not found")
		return 0, false
	}
	return id, true
}

// pagination reads offset/limit with bounded defaults.
func pagination(c *gin.Context) (offset, limit int) {
	offset, limit = 0, 20
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	return offset, limit
}

// statusFilterParam validates the optional status_filter query parameter.
func statusFilterParam(c *gin.Context) (*string, bool) {
	raw := c.Query("status_filter")
	if raw == "" {
		return nil, true
	}
	if !models.ValidStatus(raw) {
		utils.RespondWithBadRequest(c, "invalid status_filter", gin.H{
			"allowed": []string{models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed},
		})
		return nil, false
	}
	return &raw, true
}
