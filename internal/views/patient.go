package views

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/export"
)

type PatientView struct {
	views *Views
	actor appointment.Actor
}

// Page lists the patient's own appointments, newest first.
func (p *PatientView) Page(ctx context.Context, page int) (Page[Item], error) {
	return p.views.page(ctx, appointment.Filter{PatientID: &p.actor.ID, NewestFirst: true}, page)
}

func (p *PatientView) Book(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string) (*appointment.Appointment, error) {
	return p.views.svc.Book(ctx, p.actor, appointment.BookingRequest{
		DoctorID:  doctorID,
		PatientID: p.actor.ID,
		SlotDate:  slotDate,
		SlotTime:  slotTime,
	})
}

func (p *PatientView) Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return p.views.svc.Cancel(ctx, p.actor, id)
}

// Pay starts a payment and returns the URL to send the patient to.
func (p *PatientView) Pay(ctx context.Context, id uuid.UUID) (string, error) {
	return p.views.svc.StartPayment(ctx, p.actor, id)
}

// Summary renders the appointment summary PDF and its file name.
func (p *PatientView) Summary(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	appt, err := p.views.svc.Get(ctx, p.actor, id)
	if err != nil {
		return "", nil, err
	}
	items, err := p.views.items(ctx, []appointment.Appointment{*appt})
	if err != nil {
		return "", nil, err
	}
	it := items[0]

	var buf bytes.Buffer
	err = export.WriteSummaryPDF(&buf, export.Summary{
		Appointment: *appt,
		DoctorName:  it.DoctorName,
		Speciality:  it.Speciality,
		PatientName: it.PatientName,
		Currency:    p.views.extractor.Currency,
	})
	if err != nil {
		return "", nil, err
	}
	return export.SummaryFilename(appt.ID), buf.Bytes(), nil
}
