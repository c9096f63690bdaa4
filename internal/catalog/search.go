package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"document-processing-platform/internal/logger"
	"document-processing-platform/models"
)

const annQuery = `
	SELECT dc.id, dc.document_id, d.filename, dc.chunk_index, dc.text_content,
	       1 - (dc.embedding <=> $1) AS similarity
	FROM document_chunks dc
	JOIN documents d ON d.id = dc.document_id
	WHERE dc.user_id = $2
	  AND ($3::bigint IS NULL OR dc.document_id = $3)
	ORDER BY dc.embedding <=> $1, dc.id
	LIMIT $4`

// AnnSearch returns the topK chunks nearest to queryVec under cosine
// distance, restricted to userID and optionally to one document. Ordering is
// distance ascending with ties broken by chunk id, so equal-similarity
// results come back in a reproducible order.
//
// Tenant isolation lives in the WHERE clause; there is no code path that
// searches across users.
func (s *Store) AnnSearch(ctx context.Context, userID int64, queryVec []float32, topK int, documentID *int64) ([]models.RetrievedChunk, error) {
	vec := pgvector.NewVector(queryVec)

	if !s.annIndexAvailable(ctx) {
		// Degraded mode: same query, sequential scan. Results stay correct
		// but latency targets no longer hold.
		logger.Warn("ANN index unavailable, falling back to sequential scan",
			"user_id", userID)
		return s.annQueryRows(ctx, vec, userID, topK, documentID)
	}

	// ef_search is a transaction-local GUC, so the probe list size applies
	// to this query only.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ann search: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", s.efSearch)); err != nil {
		return nil, fmt.Errorf("ann search: ef_search: %w", err)
	}

	rows, err := tx.Query(ctx, annQuery, vec, userID, documentID, topK)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}
	results, err := scanRetrieved(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ann search: commit: %w", err)
	}
	return results, nil
}

func (s *Store) annQueryRows(ctx context.Context, vec pgvector.Vector, userID int64, topK int, documentID *int64) ([]models.RetrievedChunk, error) {
	rows, err := s.pool.Query(ctx, annQuery, vec, userID, documentID, topK)
	if err != nil {
		return nil, fmt.Errorf("ann search: %w", err)
	}
	return scanRetrieved(rows)
}

func scanRetrieved(rows pgx.Rows) ([]models.RetrievedChunk, error) {
	defer rows.Close()

	var results []models.RetrievedChunk
	for rows.Next() {
		var rc models.RetrievedChunk
		if err := rows.Scan(&rc.ChunkID, &rc.DocumentID, &rc.Filename,
			&rc.ChunkIndex, &rc.TextContent, &rc.Similarity); err != nil {
			return nil, fmt.Errorf("ann search: scan: %w", err)
		}
		rc.Similarity = clampSimilarity(rc.Similarity)
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ann search: rows: %w", err)
	}
	return results, nil
}

// clampSimilarity bounds 1-distance into [0, 1]; floating-point distance can
// drift slightly past either end.
func clampSimilarity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Degraded reports whether ANN queries are running without the HNSW index.
func (s *Store) Degraded(ctx context.Context) bool {
	return !s.annIndexAvailable(ctx)
}

// annIndexAvailable probes once for the HNSW index on document_chunks. A
// dropped or never-built index downgrades retrieval instead of breaking it.
func (s *Store) annIndexAvailable(ctx context.Context) bool {
	s.annOnce.Do(func() {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM pg_indexes
				WHERE tablename = 'document_chunks' AND indexdef ILIKE '%hnsw%'
			)`,
		).Scan(&exists)
		if err != nil {
			logger.Warn("ANN index probe failed", "error", err)
			s.annIndexed = false
			return
		}
		s.annIndexed = exists
	})
	return s.annIndexed
}
