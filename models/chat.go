package models

type ChatRequest struct {
	Question   string `json:"question" binding:"required,min=1,max=2000"`
	DocumentID *int64 `json:"document_id,omitempty"`
	TopK       int    `json:"top_k,omitempty" binding:"omitempty,min=1,max=20"`
	Model      string `json:"model,omitempty"`
}

// ChatSource cites one retrieved chunk in a chat answer.
type ChatSource struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Answer      string       `json:"answer"`
	Sources     []ChatSource `json:"sources"`
	ChunksFound int          `json:"chunks_found"`
	Model       string       `json:"model,omitempty"`
	Usage       *ChatUsage   `json:"usage,omitempty"`
}

// RetrievedChunk is a ranked retrieval hit with provenance, ordered by
// similarity descending with ties broken by chunk id ascending.
type RetrievedChunk struct {
	ChunkID     int64   `json:"chunk_id"`
	DocumentID  int64   `json:"document_id"`
	Filename    string  `json:"filename"`
	ChunkIndex  int     `json:"chunk_index"`
	TextContent string  `json:"text_content"`
	Similarity  float64 `json:"similarity"`
}
