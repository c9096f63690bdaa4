package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"document-processing-platform/internal/ai"
	"document-processing-platform/internal/config"
	"document-processing-platform/internal/logger"
	"document-processing-platform/models"
)

const noHitsAnswer = "I couldn't find any relevant information in your documents to answer this question."

const chatSystemPrompt = "You are a helpful assistant that answers questions based on provided context. " +
	"Answer the user's question based ONLY on the information in the context. " +
	"If the context doesn't contain enough information to answer the question, " +
	"say 'I don't have enough information to answer that question based on the provided documents.'"

// ChunkRetriever is what the orchestrator needs from the retrieval layer.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, userID int64, question string, topK int, documentID *int64) ([]models.RetrievedChunk, error)
}

// ChatOrchestrator grounds an answer in retrieved chunks. Retrieval
// misses short-circuit to a canned reply without touching the
// synthesizer; sources always cite every retrieved chunk, even ones the
// context budget dropped.
type ChatOrchestrator struct {
	retriever   ChunkRetriever
	synthesizer ai.Synthesizer

	contextBudget int
	synthTimeout  time.Duration
}

func NewChatOrchestrator(retriever ChunkRetriever, synthesizer ai.Synthesizer, cfg *config.Config) *ChatOrchestrator {
	return &ChatOrchestrator{
		retriever:     retriever,
		synthesizer:   synthesizer,
		contextBudget: cfg.SynthesizerContextBudget,
		synthTimeout:  cfg.SynthTimeout,
	}
}

// Chat runs the retrieve → compose → synthesize round trip for one
// question. Errors from retrieval pass through unchanged so the HTTP
// layer can map catalog.ErrNotFound to a 404.
func (o *ChatOrchestrator) Chat(ctx context.Context, userID int64, req models.ChatRequest) (*models.ChatResponse, error) {
	hits, err := o.retriever.Retrieve(ctx, userID, req.Question, req.TopK, req.DocumentID)
	if err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		logger.Info("chat found no relevant chunks", "user_id", userID)
		return &models.ChatResponse{
			Answer:      noHitsAnswer,
			Sources:     []models.ChatSource{},
			ChunksFound: 0,
		}, nil
	}

	kept := o.fitToBudget(hits)
	userPrompt := fmt.Sprintf(
		"Context from documents:\n\n%s\n\n---\n\nQuestion: %s\n\nPlease provide a clear and concise answer based on the context above.",
		buildContext(kept), req.Question)

	synthCtx, cancel := context.WithTimeout(ctx, o.synthTimeout)
	defer cancel()
	res, err := o.synthesizer.Synthesize(synthCtx, ai.SynthesisRequest{
		System: chatSystemPrompt,
		User:   userPrompt,
		Model:  req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: synthesize: %w", err)
	}

	sources := make([]models.ChatSource, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, models.ChatSource{
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			ChunkIndex: h.ChunkIndex,
			Similarity: h.Similarity,
			Preview:    preview(h.TextContent),
		})
	}

	usage := res.Usage
	logger.Info("chat completed",
		"user_id", userID, "chunks_found", len(hits),
		"context_chunks", len(kept), "total_tokens", usage.TotalTokens)

	return &models.ChatResponse{
		Answer:      res.Answer,
		Sources:     sources,
		ChunksFound: len(hits),
		Model:       res.Model,
		Usage:       &usage,
	}, nil
}

// fitToBudget drops whole chunks from the tail until the estimated token
// total fits the context budget. The top-ranked chunk is always kept,
// oversized or not; chunks are never cut mid-text.
func (o *ChatOrchestrator) fitToBudget(hits []models.RetrievedChunk) []models.RetrievedChunk {
	kept := make([]models.RetrievedChunk, 0, len(hits))
	used := 0
	for _, h := range hits {
		t := estimateTokens(h.TextContent)
		if len(kept) > 0 && used+t > o.contextBudget {
			logger.Warn("chat context budget reached, dropping tail chunks",
				"kept", len(kept), "dropped", len(hits)-len(kept))
			break
		}
		kept = append(kept, h)
		used += t
	}
	return kept
}

// buildContext annotates each chunk with its provenance and joins them
// in rank order.
func buildContext(chunks []models.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[Source: %s, Chunk %d]\n%s",
			c.Filename, c.ChunkIndex, c.TextContent))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// preview returns the first 200 bytes of text on a rune boundary, with
// an ellipsis when truncated.
func preview(text string) string {
	const limit = 200
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
