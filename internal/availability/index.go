// Package availability tracks which (doctor, date, time) slots are held by an
// active appointment.
package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSlotConflict = errors.New("slot already booked")
	ErrNotOwner     = errors.New("slot is held by another appointment")
)

// Slot is a bookable (doctor, date, time) triple.
type Slot struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%s/%s", s.DoctorID, s.Date, s.Time)
}

// Entry pairs a held slot with the appointment holding it.
type Entry struct {
	Slot  Slot
	Owner uuid.UUID
}

// Index is consulted before a booking is created. Reserve must be atomic for
// concurrent attempts on the same slot: exactly one caller wins.
type Index interface {
	IsAvailable(ctx context.Context, slot Slot) (bool, error)
	Reserve(ctx context.Context, slot Slot, owner uuid.UUID) error
	// Release frees the slot if owner still holds it. Releasing a free slot is a no-op.
	Release(ctx context.Context, slot Slot, owner uuid.UUID) error
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
	// Entries lists every held slot with its owner.
	Entries(ctx context.Context) ([]Entry, error)
}
