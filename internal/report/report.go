// Package report exports a learner's concept mastery and module progress
// as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-course/internal/mastery"
)

const (
	masterySheet  = "Mastery"
	progressSheet = "Progress"
)

// ModuleRow is one line of the Progress sheet.
type ModuleRow struct {
	ModuleID    string
	Title       string
	CurrentStep string
	Completed   int
	Total       int
	Complete    bool
}

// WriteXLSX writes a workbook with a Mastery sheet (one row per attempted
// concept) and a Progress sheet (one row per module).
func WriteXLSX(w io.Writer, learnerID string, scores []mastery.ConceptScore, modules []ModuleRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", masterySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(progressSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	masteryRows := [][]any{{"Learner", learnerID}, {}, {"Concept", "Correct", "Attempts", "Ratio"}}
	for _, s := range scores {
		masteryRows = append(masteryRows, []any{s.Concept, s.Correct, s.Attempts, math.Round(s.Ratio*100) / 100})
	}
	if err := writeRows(f, masterySheet, masteryRows, 3, header); err != nil {
		return err
	}

	progress := [][]any{{"Learner", learnerID}, {}, {"Module", "Title", "Current step", "Completed", "Total", "Complete"}}
	for _, m := range modules {
		progress = append(progress, []any{m.ModuleID, m.Title, m.CurrentStep, m.Completed, m.Total, m.Complete})
	}
	if err := writeRows(f, progressSheet, progress, 3, header); err != nil {
		return err
	}

	if err := f.SetColWidth(masterySheet, "A", "A", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(progressSheet, "A", "C", 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writeRows writes rows starting at A1 and bolds the header row (1-based).
func writeRows(f *excelize.File, sheet string, rows [][]any, headerRow, style int) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(rows[headerRow-1]), headerRow)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
