package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"document-processing-platform/internal/logger"
	"document-processing-platform/models"
)

// reportPageSize is how many documents each catalog page fetch pulls while
// assembling a report.
const reportPageSize = 500

// ReportCatalog is the slice of the document catalog the report builder reads.
type ReportCatalog interface {
	ListDocuments(ctx context.Context, userID int64, statusFilter *string, offset, limit int) ([]models.Document, int, error)
}

// ReportBuilder renders operational reports over the document catalog.
type ReportBuilder struct {
	catalog ReportCatalog
}

// NewReportBuilder creates a report builder backed by the given catalog.
func NewReportBuilder(cat ReportCatalog) *ReportBuilder {
	return &ReportBuilder{catalog: cat}
}

// documentsLedgerSummary aggregates the per-status and timing figures shown
// on the report's summary sheet.
type documentsLedgerSummary struct {
	ByStatus        map[string]int
	TotalPages      int
	TimedDocuments  int
	TotalExtraction float64
}

func (s documentsLedgerSummary) avgExtractionSeconds() float64 {
	if s.TimedDocuments == 0 {
		return 0
	}
	return s.TotalExtraction / float64(s.TimedDocuments)
}

// BuildDocumentsWorkbook renders one user's document ledger as an xlsx
// workbook: a Documents sheet with one row per document and a Summary sheet
// with status counts and aggregate timings. The returned bytes are ready to
// serve as a download.
func (rb *ReportBuilder) BuildDocumentsWorkbook(ctx context.Context, userID int64, statusFilter *string) ([]byte, error) {
	docs, err := rb.collectDocuments(ctx, userID, statusFilter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Error closing report workbook", "error", err)
		}
	}()

	sheetName := "Documents"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("report: create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Filename", "Status", "Pages", "Extraction Seconds",
		"Error", "Created At", "Started At", "Completed At",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, doc := range docs {
		row := rowIdx + 2 // Start from row 2 (after headers)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), doc.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), doc.Filename)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), doc.Status)
		if doc.PageCount != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), *doc.PageCount)
		}
		if doc.ExtractionTimeSeconds != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), *doc.ExtractionTimeSeconds)
		}
		if doc.ErrorMessage != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), *doc.ErrorMessage)
		}
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), doc.CreatedAt.Format("2006-01-02 15:04:05"))
		if doc.StartedAt != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), doc.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if doc.CompletedAt != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), doc.CompletedAt.Format("2006-01-02 15:04:05"))
		}
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}

	if err := rb.writeSummarySheet(f, userID, docs); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("report: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// collectDocuments pages through the catalog until the full ledger for the
// user is in memory.
func (rb *ReportBuilder) collectDocuments(ctx context.Context, userID int64, statusFilter *string) ([]models.Document, error) {
	var docs []models.Document
	for offset := 0; ; offset += reportPageSize {
		page, total, err := rb.catalog.ListDocuments(ctx, userID, statusFilter, offset, reportPageSize)
		if err != nil {
			return nil, fmt.Errorf("report: list documents: %w", err)
		}
		docs = append(docs, page...)
		if len(page) == 0 || len(docs) >= total {
			break
		}
	}
	return docs, nil
}

func (rb *ReportBuilder) writeSummarySheet(f *excelize.File, userID int64, docs []models.Document) error {
	summarySheetName := "Summary"
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return fmt.Errorf("report: create summary sheet: %w", err)
	}

	summary := summarizeLedger(docs)

	summaryData := [][]interface{}{
		{"Report Information", ""},
		{"Generated At", time.Now().UTC().Format("2006-01-02 15:04:05")},
		{"User ID", userID},
		{"Total Documents", len(docs)},
		{"", ""},
		{"Status Breakdown", ""},
		{models.StatusPending, summary.ByStatus[models.StatusPending]},
		{models.StatusProcessing, summary.ByStatus[models.StatusProcessing]},
		{models.StatusCompleted, summary.ByStatus[models.StatusCompleted]},
		{models.StatusFailed, summary.ByStatus[models.StatusFailed]},
		{"", ""},
		{"Totals", ""},
		{"Total Pages", summary.TotalPages},
		{"Avg Extraction Seconds", fmt.Sprintf("%.2f", summary.avgExtractionSeconds())},
	}

	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheetName, cellRef, cell)
		}
	}

	f.SetColWidth(summarySheetName, "A", "A", 28)
	f.SetColWidth(summarySheetName, "B", "B", 22)
	return nil
}

func summarizeLedger(docs []models.Document) documentsLedgerSummary {
	summary := documentsLedgerSummary{ByStatus: make(map[string]int)}
	for _, doc := range docs {
		summary.ByStatus[doc.Status]++
		if doc.PageCount != nil {
			summary.TotalPages += *doc.PageCount
		}
		if doc.ExtractionTimeSeconds != nil {
			summary.TimedDocuments++
			summary.TotalExtraction += *doc.ExtractionTimeSeconds
		}
	}
	return summary
}
