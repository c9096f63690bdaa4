package services

import (
	"context"
	"fmt"
	"time"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
)

// SearchCatalog is the slice of the catalog the retriever reads.
type SearchCatalog interface {
	GetDocumentOwned(ctx context.Context, id, userID int64) (*models.Document, error)
	AnnSearch(ctx context.Context, userID int64, queryVec []float32, topK int, documentID *int64) ([]models.RetrievedChunk, error)
	Degraded(ctx context.Context) bool
}

// Retriever answers "which chunks are nearest to this question" for one
// user. Tenant isolation is enforced by the catalog's query predicate;
// the ownership pre-check here only exists to turn a cross-tenant
// document filter into a not-found before any search runs.
type Retriever struct {
	catalog  SearchCatalog
	embedder ai.Embedder
	metrics  *telemetry.Metrics

	topKDefault int
	topKMax     int
}

func NewRetriever(cat SearchCatalog, embedder ai.Embedder, metrics *telemetry.Metrics, cfg *config.Config) *Retriever {
	return &Retriever{
		catalog:     cat,
		embedder:    embedder,
		metrics:     metrics,
		topKDefault: cfg.RetrieverTopKDefault,
		topKMax:     cfg.RetrieverTopKMax,
	}
}

// Retrieve embeds the question and returns up to topK chunks ranked by
// cosine similarity. topK <= 0 selects the configured default; values
// above the configured maximum are clamped. A documentID owned by a
// different user surfaces as catalog.ErrNotFound.
func (r *Retriever) Retrieve(ctx context.Context, userID int64, question string, topK int, documentID *int64) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = r.topKDefault
	}
	if topK > r.topKMax {
		topK = r.topKMax
	}

	if documentID != nil {
		if _, err := r.catalog.GetDocumentOwned(ctx, *documentID, userID); err != nil {
			return nil, err
		}
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	searchStart := time.Now()
	results, err := r.catalog.AnnSearch(ctx, userID, queryVec, topK, documentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	elapsed := time.Since(searchStart)
	r.metrics.RecordRetrieval(elapsed.Seconds(), r.catalog.Degraded(ctx))

	logger.Info("retrieval completed",
		"user_id", userID, "chunks_found", len(results),
		"top_k", topK, "ms", elapsed.Milliseconds())
	return results, nil
}
