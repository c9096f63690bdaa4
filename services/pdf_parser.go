package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"document-processing-platform/internal/logger"
)

// Parser converts a PDF on local disk into plain text plus a page count.
// Implementations must treat an unreadable document as a permanent
// failure; empty text with a nil error is the valid "no content" case.
type Parser interface {
	Parse(ctx context.Context, path string) (text string, pages int, err error)
}

// LocalParser extracts text in-process. Pages that cannot be decoded are
// skipped with a warning rather than failing the whole document.
type LocalParser struct {
	blankLineRegex *regexp.Regexp
}

func NewLocalParser() *LocalParser {
	return &LocalParser{
		blankLineRegex: regexp.MustCompile(`\n{3,}`),
	}
}

func (p *LocalParser) Parse(ctx context.Context, path string) (string, int, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat pdf: %w", err)
	}
	if stat.Size() > 200<<20 { // safety cap for in-memory extraction
		return "", 0, fmt.Errorf("pdf too large for in-memory extraction: %d bytes", stat.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("unreadable pdf: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Skipping undecodable page", "page", i, "error", err)
			continue
		}

		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	return p.normalize(sb.String()), pages, nil
}

// normalize trims line tails and collapses runs of blank lines so the
// chunk planner sees stable paragraph boundaries.
func (p *LocalParser) normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	text = p.blankLineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
