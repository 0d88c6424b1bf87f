// Package views exposes what each actor can see and do: paginated lists,
// lifecycle actions and reports.
package views

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

const DefaultPageSize = 4

type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// NewPage fills in TotalPages as ceil(total / size).
func NewPage[T any](items []T, page, size, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{Items: items, Page: page, PageSize: size, Total: total, TotalPages: pages}
}

// Item is one appointment as shown in a list.
type Item struct {
	appointment.Appointment
	DoctorName  string
	Speciality  string
	PatientName string
	Age         string
	Date        string
	StatusLabel string
}

// Report is an extracted report with the scope it was built for.
type Report struct {
	From       string
	To         string
	Rows       []report.Row
	WithDoctor bool
}

type Views struct {
	svc       *appointment.Service
	extractor *report.Extractor
	feedback  *feedback.Service
	pageSize  int
}

func New(svc *appointment.Service, extractor *report.Extractor, pageSize int) *Views {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Views{svc: svc, extractor: extractor, pageSize: pageSize}
}

func (v *Views) PageSize() int {
	return v.pageSize
}

// page lists one page of f. Page numbers start at 1; lower values are
// treated as 1.
func (v *Views) page(ctx context.Context, f appointment.Filter, page int) (Page[Item], error) {
	if page < 1 {
		page = 1
	}
	f.Limit = v.pageSize
	f.Offset = (page - 1) * v.pageSize

	appts, total, err := v.svc.List(ctx, f)
	if err != nil {
		return Page[Item]{}, err
	}
	items, err := v.items(ctx, appts)
	if err != nil {
		return Page[Item]{}, err
	}
	return NewPage(items, page, v.pageSize, total), nil
}

func (v *Views) items(ctx context.Context, appts []appointment.Appointment) ([]Item, error) {
	doctors, patients, err := v.svc.People(ctx, appts)
	if err != nil {
		return nil, fmt.Errorf("resolve people: %w", err)
	}

	now := v.extractor.Now()
	items := make([]Item, 0, len(appts))
	for _, a := range appts {
		it := Item{
			Appointment: a,
			Age:         "N/A",
			Date:        a.SlotDate,
			StatusLabel: a.Status.Label(),
		}
		if d, ok := doctors[a.DoctorID]; ok {
			it.DoctorName = d.Name
			it.Speciality = d.Speciality
		}
		if p, ok := patients[a.PatientID]; ok {
			it.PatientName = p.Name
			it.Age = report.Age(p.DOB, now)
		}
		if label, err := slotdate.Format(a.SlotDate, v.extractor.MonthNames); err == nil {
			it.Date = label
		}
		items = append(items, it)
	}
	return items, nil
}

func (v *Views) report(ctx context.Context, f appointment.Filter, from, to string, withDoctor bool) (Report, error) {
	appts, _, err := v.svc.List(ctx, f)
	if err != nil {
		return Report{}, err
	}
	doctors, patients, err := v.svc.People(ctx, appts)
	if err != nil {
		return Report{}, fmt.Errorf("resolve people: %w", err)
	}

	rows, err := v.extractor.Extract(appts, report.MapDirectory{Doctors: doctors, Patients: patients}, from, to)
	if err != nil {
		return Report{}, err
	}
	return Report{From: from, To: to, Rows: rows, WithDoctor: withDoctor}, nil
}

func (v *Views) Patient(actor appointment.Actor) *PatientView {
	return &PatientView{views: v, actor: actor}
}

func (v *Views) Doctor(actor appointment.Actor) *DoctorView {
	return &DoctorView{views: v, actor: actor}
}

func (v *Views) Admin(actor appointment.Actor) *AdminView {
	return &AdminView{views: v, actor: actor}
}

// BookedTimes lists the taken slot times of a doctor on a date.
func (v *Views) BookedTimes(ctx context.Context, doctorID uuid.UUID, slotDate string) ([]string, error) {
	return v.svc.BookedTimes(ctx, doctorID, slotDate)
}
