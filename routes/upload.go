package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/queue"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
	"document-processing-platform/services"
	"document-processing-platform/utils"
)

var pdfMagic = []byte("%PDF-")

// HandleUpload admits a batch of PDFs for asynchronous ingestion. Every
// file is validated before any file is admitted, so a rejected batch
// leaves no partial state behind. Per admitted file: blob put, document
// row, task record, enqueue. An enqueue failure unwinds the blob and the
// row for that file.
func HandleUpload(
	cfg *config.Config,
	cat Catalog,
	cache TaskCache,
	blobs blob.Store,
	enqueuer services.TaskEnqueuer,
	metrics *telemetry.Metrics,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUserID(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		exists, err := cat.UserExists(ctx, userID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to verify user", nil)
			return
		}
		if !exists {
			utils.RespondWithNotFound(c, "user not found")
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid multipart form", nil)
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			utils.RespondWithBadRequest(c, "No files provided; use the 'files' form field", nil)
			return
		}
		if len(files) > cfg.MaxFilesPerUpload {
			utils.RespondWithBadRequest(c,
				fmt.Sprintf("Too many files: %d exceeds the limit of %d", len(files), cfg.MaxFilesPerUpload), nil)
			return
		}

		// One prompt applies to every file in the batch.
		var prompt *string
		if p := strings.TrimSpace(c.PostForm("prompt")); p != "" {
			prompt = &p
		}

		// Validate the whole batch before admitting anything.
		payloads := make([][]byte, len(files))
		for i, fh := range files {
			if fh.Size > cfg.MaxFileSize {
				utils.RespondWithTooLarge(c,
					fmt.Sprintf("File %q exceeds the maximum size", fh.Filename),
					gin.H{"max_bytes": cfg.MaxFileSize})
				return
			}
			data, err := readUploadPart(fh, cfg.MaxFileSize)
			if err != nil {
				utils.RespondWithBadRequest(c, fmt.Sprintf("Cannot read file %q", fh.Filename), nil)
				return
			}
			if int64(len(data)) > cfg.MaxFileSize {
				utils.RespondWithTooLarge(c,
					fmt.Sprintf("File %q exceeds the maximum size", fh.Filename),
					gin.H{"max_bytes": cfg.MaxFileSize})
				return
			}
			if !looksLikePDF(fh.Filename, data) {
				utils.RespondWithUnsupportedMedia(c,
					fmt.Sprintf("File %q is not a PDF", fh.Filename))
				return
			}
			payloads[i] = data
		}

		upCtx, upCancel := utils.WithLongTimeout(c.Request.Context())
		defer upCancel()

		taskIDs := make([]string, 0, len(files))
		for i, fh := range files {
			taskID, err := admitFile(upCtx, cat, cache, blobs, enqueuer, cfg, userID, fh.Filename, payloads[i], prompt)
			if err != nil {
				logger.Error("Admission failed",
					"filename", fh.Filename,
					"user_id", userID,
					"admitted", len(taskIDs),
					"error", err,
				)
				utils.RespondWithInternalError(c, fmt.Sprintf("Failed to admit file %q", fh.Filename), nil)
				return
			}
			taskIDs = append(taskIDs, taskID)
		}

		metrics.RecordSubmission(int64(len(taskIDs)))
		logger.Info("Upload accepted",
			"user_id", userID,
			"files", len(taskIDs),
		)

		c.JSON(http.StatusCreated, models.UploadResponse{
			TaskIDs:    taskIDs,
			TotalFiles: len(taskIDs),
			Message:    "Files accepted for processing",
		})
	}
}

// admitFile runs the four admission steps for one file. The blob write and
// the document row are unwound when the enqueue cannot reach the broker,
// so a lost task never strands durable state.
func admitFile(
	ctx context.Context,
	cat Catalog,
	cache TaskCache,
	blobs blob.Store,
	enqueuer services.TaskEnqueuer,
	cfg *config.Config,
	userID int64,
	filename string,
	data []byte,
	prompt *string,
) (string, error) {
	handle, err := blobs.Put(ctx, filename, data)
	if err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}

	doc, err := cat.CreateDocument(ctx, userID, filename, handle, prompt)
	if err != nil {
		if delErr := blobs.Delete(ctx, handle); delErr != nil {
			logger.Warn("Orphaned blob after failed insert", "handle", handle, "error", delErr)
		}
		return "", fmt.Errorf("create document: %w", err)
	}

	taskID := strconv.FormatInt(doc.ID, 10)
	cache.RegisterTask(ctx, taskID, filename, doc.CreatedAt)

	payload := queue.IngestPayload{
		TaskID:     taskID,
		DocumentID: doc.ID,
		UserID:     userID,
		BlobHandle: handle,
		Filename:   filename,
		CreatedAt:  doc.CreatedAt,
	}
	if prompt != nil {
		payload.Prompt = *prompt
	}

	task, err := queue.NewDocumentIngestTask(payload, cfg.MaxIngestRetries, cfg.PerMessageDeadline)
	if err != nil {
		unwindAdmission(ctx, cat, cache, blobs, doc.ID, taskID, handle)
		return "", fmt.Errorf("build task: %w", err)
	}
	if _, err := enqueuer.EnqueueContext(ctx, task); err != nil {
		unwindAdmission(ctx, cat, cache, blobs, doc.ID, taskID, handle)
		return "", fmt.Errorf("enqueue: %w", err)
	}

	return taskID, nil
}

func unwindAdmission(ctx context.Context, cat Catalog, cache TaskCache, blobs blob.Store, docID int64, taskID, handle string) {
	if err := cat.DeleteDocument(ctx, docID); err != nil {
		logger.Warn("Admission unwind: document delete failed", "document_id", docID, "error", err)
	}
	cache.DeleteTask(ctx, taskID)
	if err := blobs.Delete(ctx, handle); err != nil {
		logger.Warn("Admission unwind: blob delete failed", "handle", handle, "error", err)
	}
}

func readUploadPart(fh *multipart.FileHeader, maxSize int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxSize+1))
}

// looksLikePDF requires both the .pdf extension and the %PDF- magic.
func looksLikePDF(filename string, data []byte) bool {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return false
	}
	return bytes.HasPrefix(data, pdfMagic)
}
