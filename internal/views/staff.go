package views

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

// DoctorView is scoped to the doctor's own appointments.
type DoctorView struct {
	views *Views
	actor appointment.Actor
}

func (d *DoctorView) filter() appointment.Filter {
	return appointment.Filter{DoctorID: &d.actor.ID}
}

func (d *DoctorView) Page(ctx context.Context, page int) (Page[Item], error) {
	return d.views.page(ctx, d.filter(), page)
}

func (d *DoctorView) Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return d.views.svc.Cancel(ctx, d.actor, id)
}

func (d *DoctorView) Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return d.views.svc.Complete(ctx, d.actor, id)
}

func (d *DoctorView) Report(ctx context.Context, from, to string) (Report, error) {
	return d.views.report(ctx, d.filter(), from, to, false)
}

// AdminView sees every appointment.
type AdminView struct {
	views *Views
	actor appointment.Actor
}

func (a *AdminView) Page(ctx context.Context, page int) (Page[Item], error) {
	return a.views.page(ctx, appointment.Filter{}, page)
}

func (a *AdminView) Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return a.views.svc.Cancel(ctx, a.actor, id)
}

func (a *AdminView) Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return a.views.svc.Complete(ctx, a.actor, id)
}

// Report covers all doctors. doctorID narrows it to one when not nil.
func (a *AdminView) Report(ctx context.Context, from, to string, doctorID *uuid.UUID) (Report, error) {
	return a.views.report(ctx, appointment.Filter{DoctorID: doctorID}, from, to, doctorID == nil)
}
