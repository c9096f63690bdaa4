package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"document-processing-platform/models"
)

const documentColumns = `id, user_id, filename, blob_handle, status, result_text, summary, prompt,
	error_message, page_count, extraction_time_seconds, created_at, started_at, completed_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.Filename, &doc.BlobHandle, &doc.Status,
		&doc.ResultText, &doc.Summary, &doc.Prompt, &doc.ErrorMessage,
		&doc.PageCount, &doc.ExtractionTimeSeconds,
		&doc.CreatedAt, &doc.StartedAt, &doc.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateDocument inserts a new PENDING document owned by userID.
func (s *Store) CreateDocument(ctx context.Context, userID int64, filename, blobHandle string, prompt *string) (*models.Document, error) {
	doc := &models.Document{
		UserID:     userID,
		Filename:   filename,
		BlobHandle: blobHandle,
		Status:     models.StatusPending,
		Prompt:     prompt,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (user_id, filename, blob_handle, status, prompt)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		userID, filename, blobHandle, models.StatusPending, prompt,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	return doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// GetDocumentOwned returns the document only when userID owns it. A document
// that exists but belongs to someone else is reported as ErrNotFound.
func (s *Store) GetDocumentOwned(ctx context.Context, id, userID int64) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns one page of a user's documents, newest first, plus
// the unpaged total for the same filter.
func (s *Store) ListDocuments(ctx context.Context, userID int64, statusFilter *string, offset, limit int) ([]models.Document, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)`,
		userID, statusFilter,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM documents
		 WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 OFFSET $3 LIMIT $4`,
		userID, statusFilter, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	return docs, total, nil
}

// MarkProcessing claims the document for ingestion. The transition applies
// from PENDING or FAILED only; a document already PROCESSING is left as is so
// a redelivered message can re-run the stages, and the caller distinguishes
// missing vs COMPLETED via GetDocument.
func (s *Store) MarkProcessing(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET status = $1, started_at = now(), error_message = NULL
		 WHERE id = $2 AND status IN ($3, $4)`,
		models.StatusProcessing, id, models.StatusPending, models.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark processing %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a terminal ingestion failure.
func (s *Store) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		 SET status = $1, error_message = $2, completed_at = now()
		 WHERE id = $3`,
		models.StatusFailed, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IngestResult carries everything CompleteIngestion persists for a document.
type IngestResult struct {
	ResultText            string
	Summary               *string
	PageCount             int
	ExtractionTimeSeconds float64
	Chunks                []models.Chunk
}

// CompleteIngestion finalizes a document in a single transaction: any chunks
// from a previous attempt are deleted, the new chunk set is inserted, and the
// document flips to COMPLETED. Re-running it for the same input converges on
// the same final state, which is what makes redelivered messages safe.
func (s *Store) CompleteIngestion(ctx context.Context, documentID int64, res IngestResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("complete ingestion %d: begin: %w", documentID, err)
	}
	defer tx.Rollback(ctx)

	// Lock the row; a concurrently deleted document aborts the commit.
	var userID int64
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM documents WHERE id = $1 FOR UPDATE`, documentID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("complete ingestion %d: lock: %w", documentID, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("complete ingestion %d: delete chunks: %w", documentID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range res.Chunks {
		batch.Queue(
			`INSERT INTO document_chunks (document_id, user_id, chunk_index, text_content, embedding, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			documentID, userID, c.ChunkIndex, c.TextContent,
			pgvector.NewVector(c.Embedding), c.TokenCount,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("complete ingestion %d: insert chunks: %w", documentID, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents
		 SET status = $1, result_text = $2, summary = $3, page_count = $4,
		     extraction_time_seconds = $5, error_message = NULL, completed_at = now()
		 WHERE id = $6`,
		models.StatusCompleted, res.ResultText, res.Summary, res.PageCount,
		res.ExtractionTimeSeconds, documentID,
	); err != nil {
		return fmt.Errorf("complete ingestion %d: update document: %w", documentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("complete ingestion %d: commit: %w", documentID, err)
	}
	return nil
}

// DeleteDocument removes the document; chunks cascade and their ANN index
// entries disappear with the rows.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountChunks reports how many chunks a document currently has.
func (s *Store) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks %d: %w", documentID, err)
	}
	return n, nil
}

// StalePending lists documents stuck in PENDING longer than grace. These are
// admission's orphans: the row committed but the queue enqueue never happened.
func (s *Store) StalePending(ctx context.Context, grace time.Duration) ([]models.Document, error) {
	return s.staleByStatus(ctx, models.StatusPending, "created_at", grace)
}

// StaleProcessing lists documents whose worker has exceeded the per-message
// deadline without reaching a terminal status.
func (s *Store) StaleProcessing(ctx context.Context, deadline time.Duration) ([]models.Document, error) {
	return s.staleByStatus(ctx, models.StatusProcessing, "started_at", deadline)
}

func (s *Store) staleByStatus(ctx context.Context, status, tsColumn string, age time.Duration) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM documents
		 WHERE status = $1 AND `+tsColumn+` < now() - $2::interval
		 ORDER BY id`,
		status, fmt.Sprintf("%d seconds", int(age.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("stale %s scan: %w", status, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}
