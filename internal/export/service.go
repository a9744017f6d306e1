package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/claims-processor/internal/repository"
)

const (
	ClaimsSheet    = "Claims"
	DocumentsSheet = "Documents"
)

// Service produces XLSX bytes for stored claim decisions.
type Service struct {
	claimsRepo repository.ClaimRepository
	logger     *slog.Logger
}

func NewService(repo repository.ClaimRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{claimsRepo: repo, logger: logger}
}

// ExportClaimsXLSX returns a workbook of claims processed in the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all claims.
func (s *Service) ExportClaimsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	lo, hi := window(from, to, start)

	rows, err := s.claimsRepo.List(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	docs, err := s.claimsRepo.ListDocuments(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query claim documents: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", ClaimsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(DocumentsSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(ClaimsSheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, ClaimsSheet, 1, "Claim ID", "Processed At", "Status", "Reason",
		"Document Types", "Missing Documents", "Discrepancies")
	for i, r := range rows {
		writeRow(f, ClaimsSheet, i+2,
			r.ID,
			r.ProcessedAt.UTC().Format(time.RFC3339),
			string(r.Status),
			r.Reason,
			strings.Join(r.DocumentTypes, ", "),
			strings.Join(r.MissingDocuments, ", "),
			truncate(strings.Join(r.Discrepancies, "; "), 240),
		)
	}

	writeRow(f, DocumentsSheet, 1, "Claim ID", "#", "File", "Type", "Valid", "Errors", "Warnings", "Fields")
	for i, d := range docs {
		writeRow(f, DocumentsSheet, i+2,
			d.ClaimID,
			d.Ordinal+1,
			d.Source,
			string(d.Type),
			d.IsValid,
			strings.Join(d.Errors, "; "),
			strings.Join(d.Warnings, "; "),
			truncate(string(d.Fields), 1000),
		)
	}

	_ = f.SetColWidth(ClaimsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(ClaimsSheet, "B", "B", 22) // processed at
	_ = f.SetColWidth(ClaimsSheet, "C", "C", 10)
	_ = f.SetColWidth(ClaimsSheet, "D", "D", 60)
	_ = f.SetColWidth(ClaimsSheet, "E", "G", 36)
	_ = f.SetColWidth(DocumentsSheet, "A", "A", 38)
	_ = f.SetColWidth(DocumentsSheet, "C", "C", 28)
	_ = f.SetColWidth(DocumentsSheet, "F", "H", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"claims", len(rows),
		"documents", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// window turns inclusive calendar dates into a half-open UTC range. Zero means unbounded.
func window(from, to *time.Time, now time.Time) (time.Time, time.Time) {
	var lo, hi time.Time
	if from != nil {
		lo = day(*from)
	}
	if to != nil {
		hi = day(*to).AddDate(0, 0, 1)
	}
	if from != nil && to == nil {
		hi = day(now).AddDate(0, 0, 1)
	}
	return lo, hi
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
