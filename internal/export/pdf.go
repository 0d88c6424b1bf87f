package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

const brand = "Clinic Appointments"

// column widths in mm for a landscape A4 page.
var (
	widthsWithDoctor = []float64{12, 55, 18, 60, 50, 30, 35}
	widthsNoDoctor   = []float64{12, 70, 20, 75, 40, 40}
)

// WritePDF writes rows as a table under title.
func WritePDF(w io.Writer, rows []report.Row, title string, withDoctor bool) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(126, 96, 191)
	pdf.CellFormat(0, 10, brand, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	widths := widthsNoDoctor
	if withDoctor {
		widths = widthsWithDoctor
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	for i, col := range report.Columns(withDoctor) {
		pdf.CellFormat(widths[i], 8, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, r := range rows {
		for i, v := range r.Values(withDoctor) {
			pdf.CellFormat(widths[i], 7, v, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetY(pdf.GetY() + 6)
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d appointment(s)", len(rows)), "", 1, "R", false, 0, "")

	return output(pdf, w)
}

// Summary holds what is printed on a single appointment summary.
type Summary struct {
	Appointment appointment.Appointment
	DoctorName  string
	Speciality  string
	PatientName string
	Currency    string
}

// WriteSummaryPDF writes the patient-facing summary of one appointment.
func WriteSummaryPDF(w io.Writer, s Summary) error {
	a := s.Appointment

	date, err := slotdate.Format(a.SlotDate, slotdate.DefaultMonthNames)
	if err != nil {
		return err
	}

	payment := "Pending"
	if a.Paid {
		payment = "Paid"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(126, 96, 191)
	pdf.CellFormat(0, 10, brand, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Appointment Summary", "1", 1, "C", false, 0, "")

	detailRow(pdf, "Appointment ID", a.ID.String())
	detailRow(pdf, "Patient", s.PatientName)
	detailRow(pdf, "Doctor", s.DoctorName)
	if s.Speciality != "" {
		detailRow(pdf, "Speciality", s.Speciality)
	}
	detailRow(pdf, "Date & Time", date+", "+a.SlotTime)
	detailRow(pdf, "Fees", fmt.Sprintf("%s%d", s.Currency, a.Amount))
	detailRow(pdf, "Status", a.Status.Label())
	detailRow(pdf, "Payment", payment)

	pdf.SetY(pdf.GetY() + 12)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 10, "This is a computer generated summary", "", 1, "R", false, 0, "")

	return output(pdf, w)
}

func detailRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 10, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 10, value, "1", 1, "", false, 0, "")
}

func output(pdf *gofpdf.Fpdf, w io.Writer) error {
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
