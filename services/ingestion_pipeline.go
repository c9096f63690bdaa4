package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/blob"
	"document-processing-platform/internal/catalog"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/internal/queue"
	"document-processing-platform/internal/telemetry"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

// Progress milestones written to the cache after each stage boundary.
const (
	progressClaimed   = 0
	progressFetched   = 10
	progressParsed    = 40
	progressChunked   = 60
	progressEmbedded  = 80
	progressPersisted = 100
)

// summaryInputLimit caps how much extracted text is fed to the optional
// prompt summary.
const summaryInputLimit = 12000

// DocumentCatalog is the slice of the catalog the pipeline drives.
type DocumentCatalog interface {
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	CompleteIngestion(ctx context.Context, documentID int64, res catalog.IngestResult) error
}

// ProgressReporter is the advisory progress surface the worker writes.
// Every call is best-effort; implementations never fail the caller.
type ProgressReporter interface {
	UpdateTask(ctx context.Context, taskID string, fields map[string]interface{})
	SetStage(ctx context.Context, taskID, status string, progress int)
	SetResult(ctx context.Context, res *models.CachedResult)
}

// IngestionPipeline drives one queued document through
// fetch → parse → chunk → embed → persist. The catalog row is the source
// of truth for outcome; the progress cache only mirrors stage boundaries.
//
// Errors split two ways: a terminal failure marks the document FAILED and
// wraps asynq.SkipRetry so the message is not redelivered; a transient
// failure returns a plain error and relies on queue redelivery.
type IngestionPipeline struct {
	catalog     DocumentCatalog
	cache       ProgressReporter
	blobs       blob.Store
	parser      Parser
	planner     *ChunkPlanner
	embedder    ai.Embedder
	synthesizer ai.Synthesizer
	metrics     *telemetry.Metrics

	batchSize    int
	parseTimeout time.Duration
	embedTimeout time.Duration
	synthTimeout time.Duration
}

func NewIngestionPipeline(
	cat DocumentCatalog,
	cache ProgressReporter,
	blobs blob.Store,
	parser Parser,
	planner *ChunkPlanner,
	embedder ai.Embedder,
	synthesizer ai.Synthesizer,
	metrics *telemetry.Metrics,
	cfg *config.Config,
) *IngestionPipeline {
	return &IngestionPipeline{
		catalog:      cat,
		cache:        cache,
		blobs:        blobs,
		parser:       parser,
		planner:      planner,
		embedder:     embedder,
		synthesizer:  synthesizer,
		metrics:      metrics,
		batchSize:    cfg.EmbedderBatchSize,
		parseTimeout: cfg.ParseTimeout,
		embedTimeout: cfg.EmbedTimeout,
		synthTimeout: cfg.SynthTimeout,
	}
}

// Ingest runs the full pipeline for one queued document. It implements
// queue.Ingestor.
func (p *IngestionPipeline) Ingest(ctx context.Context, job queue.IngestPayload) error {
	logger.Info("ingestion starting",
		"task_id", job.TaskID, "document_id", job.DocumentID, "filename", job.Filename)

	doc, err := p.catalog.GetDocument(ctx, job.DocumentID)
	if errors.Is(err, catalog.ErrNotFound) {
		// Deleted between enqueue and delivery; ack and move on.
		logger.Warn("ingestion aborted, document missing",
			"task_id", job.TaskID, "document_id", job.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest %d: load document: %w", job.DocumentID, err)
	}
	if doc.Status == models.StatusCompleted {
		// Redelivered message for a finished document is a no-op.
		logger.Info("ingestion skipped, document already completed",
			"task_id", job.TaskID, "document_id", job.DocumentID)
		return nil
	}

	if err := p.catalog.MarkProcessing(ctx, job.DocumentID); err != nil {
		return fmt.Errorf("ingest %d: mark processing: %w", job.DocumentID, err)
	}
	p.cache.UpdateTask(ctx, job.TaskID, map[string]interface{}{
		"status":     models.StatusProcessing,
		"progress":   progressClaimed,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})

	// Fetch the PDF into local scratch. extraction_time_seconds covers
	// everything from here through persist.
	fetchStart := time.Now()
	data, err := p.blobs.Get(ctx, job.BlobHandle)
	if errors.Is(err, blob.ErrNotFound) {
		return p.failDocument(ctx, job, "source file missing from storage", err)
	}
	if err != nil {
		return fmt.Errorf("ingest %d: fetch blob: %w", job.DocumentID, err)
	}

	scratchPath, err := writeScratch(data)
	if err != nil {
		return fmt.Errorf("ingest %d: scratch file: %w", job.DocumentID, err)
	}
	defer os.Remove(scratchPath)

	p.metrics.RecordStage("fetch", time.Since(fetchStart).Seconds())
	p.cache.SetStage(ctx, job.TaskID, models.StatusProcessing, progressFetched)
	logger.Info("ingestion fetched source",
		"task_id", job.TaskID, "bytes", len(data))

	// Parse. A context deadline here is transient (slow worker, huge
	// file); anything else means the bytes are bad and retrying is
	// pointless.
	parseStart := time.Now()
	parseCtx, cancelParse := context.WithTimeout(ctx, p.parseTimeout)
	text, pages, err := p.parser.Parse(parseCtx, scratchPath)
	cancelParse()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingest %d: parse: %w", job.DocumentID, err)
		}
		return p.failDocument(ctx, job, "failed to extract text from PDF", err)
	}
	p.metrics.RecordStage("parse", time.Since(parseStart).Seconds())
	p.cache.SetStage(ctx, job.TaskID, models.StatusProcessing, progressParsed)
	logger.Info("ingestion parsed",
		"task_id", job.TaskID, "pages", pages, "chars", len(text))

	if strings.TrimSpace(text) == "" {
		return p.failDocument(ctx, job, "no extractable text", errors.New("empty extraction"))
	}

	chunkStart := time.Now()
	planned := p.planner.Plan(text)
	p.metrics.RecordStage("chunk", time.Since(chunkStart).Seconds())
	p.cache.SetStage(ctx, job.TaskID, models.StatusProcessing, progressChunked)
	logger.Info("ingestion chunked",
		"task_id", job.TaskID, "chunk_count", len(planned))

	embedStart := time.Now()
	vectors, err := p.embedChunks(ctx, planned)
	if err != nil {
		if errors.Is(err, ai.ErrPermanent) {
			return p.failDocument(ctx, job, "embedding provider rejected the document", err)
		}
		return fmt.Errorf("ingest %d: embed: %w", job.DocumentID, err)
	}
	p.metrics.RecordStage("embed", time.Since(embedStart).Seconds())
	p.cache.SetStage(ctx, job.TaskID, models.StatusProcessing, progressEmbedded)
	logger.Info("ingestion embedded",
		"task_id", job.TaskID, "vector_count", len(vectors))

	var summary *string
	if job.Prompt != "" && p.synthesizer != nil {
		summary = p.summarize(ctx, job, text)
	}

	chunks := make([]models.Chunk, len(planned))
	for i, pc := range planned {
		chunks[i] = models.Chunk{
			DocumentID:  job.DocumentID,
			UserID:      job.UserID,
			ChunkIndex:  pc.Index,
			TextContent: pc.Text,
			Embedding:   vectors[i],
			TokenCount:  pc.TokenCount,
		}
	}

	extractionSeconds := time.Since(fetchStart).Seconds()
	persistStart := time.Now()
	err = p.catalog.CompleteIngestion(ctx, job.DocumentID, catalog.IngestResult{
		ResultText:            text,
		Summary:               summary,
		PageCount:             pages,
		ExtractionTimeSeconds: extractionSeconds,
		Chunks:                chunks,
	})
	if errors.Is(err, catalog.ErrNotFound) {
		logger.Warn("ingestion aborted at persist, document deleted",
			"task_id", job.TaskID, "document_id", job.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest %d: persist: %w", job.DocumentID, err)
	}
	p.metrics.RecordStage("persist", time.Since(persistStart).Seconds())
	p.metrics.RecordChunks(int64(len(chunks)))
	p.metrics.RecordCompletion(models.StatusCompleted)

	p.cache.UpdateTask(ctx, job.TaskID, map[string]interface{}{
		"status":       models.StatusCompleted,
		"progress":     progressPersisted,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	})
	p.cache.SetResult(ctx, &models.CachedResult{
		TaskID:                job.TaskID,
		Filename:              job.Filename,
		Text:                  text,
		PageCount:             &pages,
		ExtractionTimeSeconds: &extractionSeconds,
	})

	logger.Info("ingestion completed",
		"task_id", job.TaskID, "document_id", job.DocumentID,
		"pages", pages, "chunk_count", len(chunks),
		"seconds", fmt.Sprintf("%.2f", extractionSeconds))
	return nil
}

// embedChunks embeds the planned chunks in provider-sized batches, each
// under its own timeout, preserving chunk order across batches.
func (p *IngestionPipeline) embedChunks(ctx context.Context, planned []PlannedChunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(planned))
	for start := 0; start < len(planned); start += p.batchSize {
		end := start + p.batchSize
		if end > len(planned) {
			end = len(planned)
		}
		texts := make([]string, 0, end-start)
		for _, pc := range planned[start:end] {
			texts = append(texts, pc.Text)
		}

		batchCtx, cancel := context.WithTimeout(ctx, p.embedTimeout)
		vecs, err := p.embedder.EmbedBatch(batchCtx, texts)
		cancel()
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

// summarize runs the caller-supplied prompt over the extracted text.
// Failures are logged and swallowed; a summary never blocks ingestion.
func (p *IngestionPipeline) summarize(ctx context.Context, job queue.IngestPayload, text string) *string {
	input := text
	if len(input) > summaryInputLimit {
		cut := summaryInputLimit
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}

	synthStart := time.Now()
	synthCtx, cancel := context.WithTimeout(ctx, p.synthTimeout)
	defer cancel()

	res, err := p.synthesizer.Synthesize(synthCtx, ai.SynthesisRequest{
		System: "You are a helpful document summarizer. Be concise and accurate.",
		User:   job.Prompt + "\n\n---\n\n" + input,
	})
	if err != nil {
		logger.Warn("summary generation failed", "task_id", job.TaskID, "error", err)
		return nil
	}
	p.metrics.RecordStage("summarize", time.Since(synthStart).Seconds())
	logger.Info("summary generated", "task_id", job.TaskID, "chars", len(res.Answer))
	return &res.Answer
}

// failDocument records a terminal failure on the document and tells the
// queue not to redeliver. The catalog write uses a detached context so it
// still lands when the stage context has expired.
func (p *IngestionPipeline) failDocument(ctx context.Context, job queue.IngestPayload, message string, cause error) error {
	logger.Error("ingestion failed",
		"task_id", job.TaskID, "document_id", job.DocumentID,
		"reason", message, "error", cause)

	markCtx, cancel := utils.WithTimeout(context.WithoutCancel(ctx))
	defer cancel()

	if err := p.catalog.MarkFailed(markCtx, job.DocumentID, message); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		// Couldn't record the failure; let redelivery try again.
		return fmt.Errorf("ingest %d: mark failed: %w", job.DocumentID, err)
	}
	p.cache.UpdateTask(markCtx, job.TaskID, map[string]interface{}{
		"status":       models.StatusFailed,
		"error":        message,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	})
	p.metrics.RecordCompletion(models.StatusFailed)

	return fmt.Errorf("%s: %v: %w", message, cause, asynq.SkipRetry)
}

// writeScratch spills the fetched bytes to a temp file for the parser.
func writeScratch(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "ingest-*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
