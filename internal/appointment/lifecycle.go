package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor may not act on this appointment")
	ErrDoctorUnavailable = errors.New("doctor is not accepting appointments")
	ErrInvalidSlot       = errors.New("invalid slot")

	// ErrSlotConflict is returned when the requested slot is already held.
	ErrSlotConflict = availability.ErrSlotConflict
)

// canCancel: patient-owner, doctor-owner or admin.
func canCancel(a Appointment, actor Actor) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return actor.ID == a.PatientID
	case RoleDoctor:
		return actor.ID == a.DoctorID
	}
	return false
}

func canComplete(a Appointment, actor Actor) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return actor.ID == a.DoctorID
	}
	return false
}

// CanView reports whether actor may read the appointment.
func CanView(a Appointment, actor Actor) bool {
	return canCancel(a, actor)
}

// Cancel returns the cancelled form of a. The permission check runs before
// the state check.
func Cancel(a Appointment, actor Actor, now time.Time) (Appointment, error) {
	if !canCancel(a, actor) {
		return a, ErrForbidden
	}
	if a.Status != StatusScheduled {
		return a, ErrInvalidTransition
	}
	next := a
	next.Status = StatusCancelled
	next.CancelledAt = &now
	next.UpdatedAt = now
	next.Version++
	return next, nil
}

func Complete(a Appointment, actor Actor, now time.Time) (Appointment, error) {
	if !canComplete(a, actor) {
		return a, ErrForbidden
	}
	if a.Status != StatusScheduled {
		return a, ErrInvalidTransition
	}
	next := a
	next.Status = StatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now
	next.Version++
	return next, nil
}

// MarkPaid records a confirmed payment. Paying an already paid appointment is
// a no-op and returns it unchanged, whatever its status.
func MarkPaid(a Appointment, now time.Time) (Appointment, error) {
	if a.Paid {
		return a, nil
	}
	if a.Status != StatusScheduled {
		return a, ErrInvalidTransition
	}
	next := a
	next.Paid = true
	next.PaidAt = &now
	next.UpdatedAt = now
	next.Version++
	return next, nil
}

// Supersedes checks that next may overwrite prev in storage: the booking terms
// are unchanged, the status only leaves Scheduled, payment never reverts and
// is only newly recorded on a scheduled appointment, and the version grows.
func Supersedes(prev, next Appointment) error {
	switch {
	case prev.ID != next.ID,
		prev.DoctorID != next.DoctorID,
		prev.PatientID != next.PatientID,
		prev.SlotDate != next.SlotDate,
		prev.SlotTime != next.SlotTime,
		prev.Amount != next.Amount:
		return fmt.Errorf("%w: booking terms are immutable", ErrInvalidTransition)
	case prev.Status != next.Status && prev.Status != StatusScheduled:
		return fmt.Errorf("%w: %s appointment cannot become %s", ErrInvalidTransition, prev.Status, next.Status)
	case prev.Paid && !next.Paid:
		return fmt.Errorf("%w: payment cannot be reverted", ErrInvalidTransition)
	case !prev.Paid && next.Paid && prev.Status != StatusScheduled:
		return fmt.Errorf("%w: %s appointment cannot be paid", ErrInvalidTransition, prev.Status)
	case next.Version <= prev.Version:
		return ErrStaleState
	}
	return nil
}
