package models

import "time"

// Document status values. Transitions are monotone:
// PENDING → PROCESSING → {COMPLETED | FAILED}. Only the ingestion worker
// mutates status after creation.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// ValidStatus reports whether s is a recognized document status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is the authoritative record of one uploaded PDF.
type Document struct {
	ID                    int64      `json:"id"`
	UserID                int64      `json:"user_id"`
	Filename              string     `json:"filename"`
	BlobHandle            string     `json:"blob_handle"`
	Status                string     `json:"status"`
	ResultText            *string    `json:"result_text,omitempty"`
	Summary               *string    `json:"summary,omitempty"`
	Prompt                *string    `json:"prompt,omitempty"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	PageCount             *int       `json:"page_count,omitempty"`
	ExtractionTimeSeconds *float64   `json:"extraction_time_seconds,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// Chunk is one indexed span of a document's parsed text. chunk_index values
// are dense and 0-based within a document; user_id is denormalized from the
// parent document for tenant-scoped search.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	UserID      int64     `json:"user_id"`
	ChunkIndex  int       `json:"chunk_index"`
	TextContent string    `json:"text_content"`
	Embedding   []float32 `json:"-"`
	TokenCount  int       `json:"token_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentListResponse is the paginated /documents payload.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Offset    int        `json:"offset"`
	Limit     int        `json:"limit"`
}

// UploadResponse is returned after a successful multi-file submission.
type UploadResponse struct {
	TaskIDs    []string `json:"task_ids"`
	TotalFiles int      `json:"total_files"`
	Message    string   `json:"message"`
}

// ResultResponse is the extraction result payload for a completed task.
type ResultResponse struct {
	TaskID                string   `json:"task_id"`
	Filename              string   `json:"filename"`
	Text                  string   `json:"text"`
	PageCount             *int     `json:"page_count,omitempty"`
	ExtractionTimeSeconds *float64 `json:"extraction_time_seconds,omitempty"`
}
