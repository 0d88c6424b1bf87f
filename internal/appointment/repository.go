package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrStaleState means the stored state no longer matched the expected
	// precondition of a compare-and-swap.
	ErrStaleState = errors.New("appointment state changed concurrently")
)

// Repository contains all storage interactions needed by the engine and service.
// Returned appointments are copies; mutating them never changes stored state.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListPatientsByIDs(ctx context.Context, ids []uuid.UUID) ([]Patient, error)
	ListDoctorsByIDs(ctx context.Context, ids []uuid.UUID) ([]Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindAppointments(ctx context.Context, f Filter) ([]Appointment, error)
	CountAppointments(ctx context.Context, f Filter) (int, error)

	// CreateAppointment inserts a new scheduled appointment. It fails with
	// availability.ErrSlotConflict when an active appointment holds the slot.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// SaveAppointment upserts by id. Overwriting a stored record is refused
	// unless Supersedes allows it; the slot rule of CreateAppointment applies
	// to active records.
	SaveAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	// CompareAndSwap stores next only if the current state equals expected,
	// otherwise it fails with ErrStaleState.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expected State, next Appointment) (*Appointment, error)

	// ListActiveSlots returns every slot held by a non-cancelled appointment.
	ListActiveSlots(ctx context.Context) ([]availability.Entry, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
