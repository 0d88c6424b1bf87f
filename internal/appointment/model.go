package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCancelled || s == StatusCompleted
}

// Label is the display form used in lists and reports.
func (s Status) Label() string {
	switch s {
	case StatusCancelled:
		return "Cancelled"
	case StatusCompleted:
		return "Completed"
	default:
		return "Scheduled"
	}
}

// StatusFromFlags decodes the legacy cancelled/isCompleted flag pair.
// Cancelled wins when both are set.
func StatusFromFlags(cancelled, completed bool) Status {
	switch {
	case cancelled:
		return StatusCancelled
	case completed:
		return StatusCompleted
	default:
		return StatusScheduled
	}
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Actor is the authenticated caller of an operation. ID is the patient or
// doctor id for those roles and the admin's user id for admins.
type Actor struct {
	Role Role
	ID   uuid.UUID
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	DOB       *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Speciality string
	Fees       int64
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	SlotDate    string
	SlotTime    string
	Amount      int64
	Status      Status
	Paid        bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time
	PaidAt      *time.Time
}

func (a Appointment) Slot() availability.Slot {
	return availability.Slot{DoctorID: a.DoctorID, Date: a.SlotDate, Time: a.SlotTime}
}

// State is the mutable part of an appointment used as the compare-and-swap
// precondition.
type State struct {
	Status  Status
	Paid    bool
	Version int64
}

func (a Appointment) State() State {
	return State{Status: a.Status, Paid: a.Paid, Version: a.Version}
}

// Filter selects appointments for listing. A zero Limit means no limit.
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []Status
	SlotDate  string
	// NewestFirst orders by creation time descending instead of ascending.
	NewestFirst bool
	Limit       int
	Offset      int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingRequest asks for a slot with a doctor on behalf of a patient.
type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotDate  string
	SlotTime  string
}

// LegacyRecord is an appointment document exported from the previous store,
// which kept status as a cancelled/isCompleted flag pair.
type LegacyRecord struct {
	ID          uuid.UUID `json:"_id"`
	PatientID   uuid.UUID `json:"userId"`
	DoctorID    uuid.UUID `json:"docId"`
	SlotDate    string    `json:"slotDate"`
	SlotTime    string    `json:"slotTime"`
	Amount      int64     `json:"amount"`
	Date        int64     `json:"date"` // booking time in Unix milliseconds
	Cancelled   bool      `json:"cancelled"`
	Payment     bool      `json:"payment"`
	IsCompleted bool      `json:"isCompleted"`
}

// Appointment converts the document. Terminal timestamps are not part of the
// legacy shape, so they are set to the booking time.
func (r LegacyRecord) Appointment() Appointment {
	booked := time.UnixMilli(r.Date).UTC()
	a := Appointment{
		ID:        r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		SlotDate:  r.SlotDate,
		SlotTime:  r.SlotTime,
		Amount:    r.Amount,
		Status:    StatusFromFlags(r.Cancelled, r.IsCompleted),
		Paid:      r.Payment,
		CreatedAt: booked,
		UpdatedAt: booked,
	}
	switch a.Status {
	case StatusCancelled:
		a.CancelledAt = &booked
	case StatusCompleted:
		a.CompletedAt = &booked
	}
	if a.Paid {
		a.PaidAt = &booked
	}
	return a
}
