package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
)

const (
	reportSheet   = "Filtered Appointments"
	feedbackSheet = "Feedback Report"
)

// FeedbackTimeLayout renders submission times in feedback exports.
const FeedbackTimeLayout = "2006-01-02 15:04"

// WriteXLSX writes rows as a single-sheet workbook with a header row.
func WriteXLSX(w io.Writer, rows []report.Row, withDoctor bool) error {
	body := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells := toCells(r.Values(withDoctor))
		// Keep the running number numeric so spreadsheets sort it correctly.
		cells[0] = r.Index
		body = append(body, cells)
	}
	return writeSheet(w, reportSheet, toCells(report.Columns(withDoctor)), body)
}

// WriteFeedbackXLSX writes feedback entries with their submission time in loc.
func WriteFeedbackXLSX(w io.Writer, entries []feedback.Entry, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	body := make([][]any, 0, len(entries))
	for _, e := range entries {
		body = append(body, []any{e.Text, e.CreatedAt.In(loc).Format(FeedbackTimeLayout)})
	}
	return writeSheet(w, feedbackSheet, []any{"Feedback Text", "Date"}, body)
}

func writeSheet(w io.Writer, sheet string, header []any, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
