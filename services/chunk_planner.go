package services

import (
	"regexp"
	"strings"
)

// ChunkPlanner splits parsed markdown into overlapping, size-bounded
// chunks. It is a pure function of its input: same text, same output.
//
// Two passes: first the text is cut into sections at markdown headings
// so tables and their headings stay together; then any section over the
// token target is re-split at sentence boundaries with overlap carried
// between adjacent chunks. A single sentence larger than the target is
// force-split at whitespace.
type ChunkPlanner struct {
	targetTokens  int
	overlapTokens int
	sentenceRegex *regexp.Regexp
	headingRegex  *regexp.Regexp
}

// PlannedChunk is one chunk in document order. Index values are
// contiguous from 0.
type PlannedChunk struct {
	Index      int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

func NewChunkPlanner(targetTokens, overlapTokens int) *ChunkPlanner {
	return &ChunkPlanner{
		targetTokens:  targetTokens,
		overlapTokens: overlapTokens,
		sentenceRegex: regexp.MustCompile(`[.!?]+[\s]+`),
		headingRegex:  regexp.MustCompile(`^#{1,6}\s`),
	}
}

// Plan splits text into chunks. Empty or whitespace-only input yields
// an empty slice.
func (cp *ChunkPlanner) Plan(text string) []PlannedChunk {
	if strings.TrimSpace(text) == "" {
		return []PlannedChunk{}
	}

	var pieces []string
	for _, section := range cp.splitSections(text) {
		if estimateTokens(section) > cp.targetTokens {
			pieces = append(pieces, cp.splitBySentence(section)...)
		} else {
			pieces = append(pieces, section)
		}
	}

	chunks := make([]PlannedChunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, PlannedChunk{
			Index:      len(chunks),
			Text:       piece,
			TokenCount: estimateTokens(piece),
		})
	}
	return chunks
}

// splitSections cuts text at markdown heading lines. A section is a
// heading plus everything up to the next heading; text before the first
// heading is its own section.
func (cp *ChunkPlanner) splitSections(text string) []string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if section := strings.TrimSpace(strings.Join(current, "\n")); section != "" {
			sections = append(sections, section)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if cp.headingRegex.MatchString(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// splitBySentence re-splits one oversized section, accumulating
// sentences until the target is reached and carrying trailing sentences
// into the next chunk as overlap.
func (cp *ChunkPlanner) splitBySentence(text string) []string {
	sentences := cp.splitSentences(text)

	var out []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, strings.Join(current, " "))
		carry := cp.trailingOverlap(current)
		current = append(current[:0:0], carry...)
		currentTokens = 0
		for _, s := range current {
			currentTokens += estimateTokens(s)
		}
	}

	for _, sentence := range sentences {
		tokens := estimateTokens(sentence)

		if tokens > cp.targetTokens {
			flush()
			out = append(out, cp.forceSplit(sentence)...)
			current, currentTokens = nil, 0
			continue
		}

		if currentTokens+tokens > cp.targetTokens && currentTokens > 0 {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}

	return out
}

// trailingOverlap picks the trailing sentences of a flushed chunk that
// fit the overlap budget. At least the first sentence never carries
// over, so consecutive chunks always differ.
func (cp *ChunkPlanner) trailingOverlap(sentences []string) []string {
	if cp.overlapTokens <= 0 || len(sentences) < 2 {
		return nil
	}

	budget := cp.overlapTokens
	start := len(sentences)
	for start > 1 {
		tokens := estimateTokens(sentences[start-1])
		if tokens > budget {
			break
		}
		budget -= tokens
		start--
	}
	if start == len(sentences) {
		return nil
	}
	return sentences[start:]
}

// forceSplit cuts one oversized sentence at whitespace into windows of
// at most the token target.
func (cp *ChunkPlanner) forceSplit(sentence string) []string {
	words := strings.Fields(sentence)
	maxWords := cp.targetTokens * 3 / 4
	if maxWords < 1 {
		maxWords = 1
	}

	var out []string
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

// splitSentences cuts at sentence-ending punctuation, keeping the
// punctuation with its sentence.
func (cp *ChunkPlanner) splitSentences(text string) []string {
	locs := cp.sentenceRegex.FindAllStringIndex(text, -1)

	sentences := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[prev:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		prev = loc[1]
	}
	if prev < len(text) {
		if s := strings.TrimSpace(text[prev:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// estimateTokens approximates the embedder's tokenizer from whitespace
// words: one token is roughly three quarters of a word.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return (words*4 + 2) / 3
}
