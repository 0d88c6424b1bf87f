// Package report selects appointments whose slot date falls in a calendar
// range and turns them into display rows.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

// BoundLayout is the layout of the from and to bounds.
const BoundLayout = "2006-01-02"

const notAvailable = "N/A"

// EmptyRangeError means there is nothing to report for the requested range.
type EmptyRangeError struct {
	From   string
	To     string
	Reason string
}

func (e *EmptyRangeError) Error() string {
	return fmt.Sprintf("no appointments between %q and %q: %s", e.From, e.To, e.Reason)
}

// Directory resolves the people named in a report row.
type Directory interface {
	Doctor(id uuid.UUID) (appointment.Doctor, bool)
	Patient(id uuid.UUID) (appointment.Patient, bool)
}

type MapDirectory struct {
	Doctors  map[uuid.UUID]appointment.Doctor
	Patients map[uuid.UUID]appointment.Patient
}

func (d MapDirectory) Doctor(id uuid.UUID) (appointment.Doctor, bool) {
	doc, ok := d.Doctors[id]
	return doc, ok
}

func (d MapDirectory) Patient(id uuid.UUID) (appointment.Patient, bool) {
	p, ok := d.Patients[id]
	return p, ok
}

type Row struct {
	Index         int
	AppointmentID uuid.UUID
	PatientName   string
	Age           string
	DateTime      string
	DoctorName    string
	Fees          string
	Status        string
}

// Columns returns the header row. The doctor column is only shown on reports
// that span several doctors.
func Columns(withDoctor bool) []string {
	if withDoctor {
		return []string{"#", "Patient Name", "Age", "Date & Time", "Doctor", "Fees", "Status"}
	}
	return []string{"#", "Patient Name", "Age", "Date & Time", "Fees", "Status"}
}

// Values returns the cells of r in Columns order.
func (r Row) Values(withDoctor bool) []string {
	if withDoctor {
		return []string{strconv.Itoa(r.Index), r.PatientName, r.Age, r.DateTime, r.DoctorName, r.Fees, r.Status}
	}
	return []string{strconv.Itoa(r.Index), r.PatientName, r.Age, r.DateTime, r.Fees, r.Status}
}

type Extractor struct {
	Currency   string
	MonthNames [12]string
	// Location is used for both the bounds and the slot dates.
	Location *time.Location
	Now      func() time.Time
}

func NewExtractor(currency string, loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	return &Extractor{
		Currency:   currency,
		MonthNames: slotdate.DefaultMonthNames,
		Location:   loc,
		Now:        time.Now,
	}
}

// Range converts the bounds into the inclusive instant range
// [from 00:00:00.000, to 23:59:59.999].
func (e *Extractor) Range(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, &EmptyRangeError{From: from, To: to, Reason: "both dates are required"}
	}
	start, err := time.ParseInLocation(BoundLayout, from, e.Location)
	if err != nil {
		return time.Time{}, time.Time{}, &EmptyRangeError{From: from, To: to, Reason: "invalid from date"}
	}
	day, err := time.ParseInLocation(BoundLayout, to, e.Location)
	if err != nil {
		return time.Time{}, time.Time{}, &EmptyRangeError{From: from, To: to, Reason: "invalid to date"}
	}
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), e.Location)
	if end.Before(start) {
		return time.Time{}, time.Time{}, &EmptyRangeError{From: from, To: to, Reason: "from date is after to date"}
	}
	return start, end, nil
}

// Extract keeps the records whose slot date lies in [from, to] in input order
// and renders them as rows numbered from 1. Records with an unparseable slot
// date are skipped.
func (e *Extractor) Extract(records []appointment.Appointment, dir Directory, from, to string) ([]Row, error) {
	start, end, err := e.Range(from, to)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, rec := range records {
		day, err := slotdate.ToCalendarDate(rec.SlotDate, e.Location)
		if err != nil {
			continue
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		rows = append(rows, e.row(len(rows)+1, rec, dir))
	}

	if len(rows) == 0 {
		return nil, &EmptyRangeError{From: from, To: to, Reason: "no matching appointments"}
	}
	return rows, nil
}

func (e *Extractor) row(index int, rec appointment.Appointment, dir Directory) Row {
	row := Row{
		Index:         index,
		AppointmentID: rec.ID,
		PatientName:   notAvailable,
		Age:           notAvailable,
		DoctorName:    notAvailable,
		Fees:          fmt.Sprintf("%s%d", e.Currency, rec.Amount),
		Status:        rec.Status.Label(),
	}

	if dir != nil {
		if p, ok := dir.Patient(rec.PatientID); ok {
			if p.Name != "" {
				row.PatientName = p.Name
			}
			row.Age = Age(p.DOB, e.Now())
		}
		if d, ok := dir.Doctor(rec.DoctorID); ok && d.Name != "" {
			row.DoctorName = d.Name
		}
	}

	date, err := slotdate.Format(rec.SlotDate, e.MonthNames)
	if err != nil {
		// Month out of range: the calendar date still rolled into the window.
		date = rec.SlotDate
	}
	row.DateTime = date + ", " + rec.SlotTime
	return row
}

// Age returns completed years between dob and now, or "N/A" when dob is
// unknown or in the future.
func Age(dob *time.Time, now time.Time) string {
	if dob == nil || dob.IsZero() || dob.After(now) {
		return notAvailable
	}
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return strconv.Itoa(years)
}
