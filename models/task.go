package models

// TaskRecord mirrors the progress-cache hash under "task:<id>". It is
// advisory UI state only; the document row stays authoritative. Records
// expire after the task TTL and may vanish without affecting correctness.
type TaskRecord struct {
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	Filename    string  `json:"filename"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// CachedResult is the short-TTL snapshot stored under "result:<id>" after a
// successful ingestion. Absence means "read from the catalog".
type CachedResult struct {
	TaskID                string   `json:"task_id"`
	Filename              string   `json:"filename"`
	Text                  string   `json:"text"`
	PageCount             *int     `json:"page_count,omitempty"`
	ExtractionTimeSeconds *float64 `json:"extraction_time_seconds,omitempty"`
}

// TaskListResponse is the paginated /tasks payload.
type TaskListResponse struct {
	Tasks  []TaskRecord `json:"tasks"`
	Total  int64        `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// HealthResponse reports component reachability for /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Postgres  string `json:"postgres"`
	Redis     string `json:"redis"`
	Timestamp string `json:"timestamp"`
}
