// Package export renders report rows and appointment summaries as files.
package export

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ReportFilename names a report file for the requested range, for example
// Appointments_Report_2025-02-01_to_2025-02-28.xlsx.
func ReportFilename(from, to string, f Format) string {
	return fmt.Sprintf("Appointments_Report_%s_to_%s.%s", from, to, f)
}

// FeedbackFilename names a feedback export, always a workbook.
func FeedbackFilename(from, to string) string {
	return fmt.Sprintf("Feedback_Report_%s_to_%s.%s", from, to, FormatXLSX)
}

func SummaryFilename(id uuid.UUID) string {
	return fmt.Sprintf("Appointment_%s.pdf", id)
}
