package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

// PaymentSessionCreator starts a hosted payment for an appointment and returns
// the URL the patient is sent to.
type PaymentSessionCreator interface {
	CreateSession(ctx context.Context, a Appointment, p Patient) (string, error)
}

var ErrPaymentsDisabled = errors.New("payments are not configured")

type Service struct {
	repo     Repository
	engine   *Engine
	index    availability.Index
	payments PaymentSessionCreator
	log      zerolog.Logger
}

// NewService wires the booking service. payments may be nil, in which case
// StartPayment fails with ErrPaymentsDisabled.
func NewService(repo Repository, locker Locker, index availability.Index, payments PaymentSessionCreator, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		engine:   NewEngine(repo, locker, index, logger),
		index:    index,
		payments: payments,
		log:      logger,
	}
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// Book reserves the slot in the availability index and then stores the
// appointment. Patients may only book for themselves and doctors may not book.
func (s *Service) Book(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	switch actor.Role {
	case RoleAdmin:
	case RolePatient:
		if actor.ID != req.PatientID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	slotDate, slotTime, err := normalizeSlot(req.SlotDate, req.SlotTime)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Available {
		return nil, ErrDoctorUnavailable
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appt := Appointment{
		ID:        uuid.New(),
		DoctorID:  doctor.ID,
		PatientID: req.PatientID,
		SlotDate:  slotDate,
		SlotTime:  slotTime,
		Amount:    doctor.Fees,
	}

	// The reservation and the insert run under the appointment lock so the
	// reconciler never mistakes an in-flight booking for an orphaned hold.
	var created *Appointment
	err = s.engine.locker.WithLock(ctx, lockName(appt.ID), func(ctx context.Context) error {
		if err := s.index.Reserve(ctx, appt.Slot(), appt.ID); err != nil {
			if errors.Is(err, availability.ErrSlotConflict) {
				return ErrSlotConflict
			}
			return fmt.Errorf("reserve slot: %w", err)
		}

		var err error
		created, err = s.repo.CreateAppointment(ctx, appt)
		if err != nil {
			s.release(context.WithoutCancel(ctx), appt, "release slot after failed booking")
			if errors.Is(err, availability.ErrSlotConflict) {
				return ErrSlotConflict
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	insertEvent(ctx, s.repo, s.log, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"slot_date":  created.SlotDate,
		"slot_time":  created.SlotTime,
		"amount":     created.Amount,
	})

	return created, nil
}

// Get loads one appointment visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(*appt, actor) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// List returns one window of the filtered appointments and the total number
// of matches ignoring Limit and Offset.
func (s *Service) List(ctx context.Context, f Filter) ([]Appointment, int, error) {
	total, err := s.repo.CountAppointments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.repo.FindAppointments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// BookedTimes lists the held times of a doctor on a day. Any spelling of the
// day is accepted.
func (s *Service) BookedTimes(ctx context.Context, doctorID uuid.UUID, slotDate string) ([]string, error) {
	date, err := slotdate.Normalize(slotDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.index.BookedTimes(ctx, doctorID, date)
}

// IsAvailable reports whether the slot is free. The date is normalised like
// a booking's.
func (s *Service) IsAvailable(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string) (bool, error) {
	date, tm, err := normalizeSlot(slotDate, slotTime)
	if err != nil {
		return false, err
	}
	return s.index.IsAvailable(ctx, availability.Slot{DoctorID: doctorID, Date: date, Time: tm})
}

// normalizeSlot returns the canonical slot date and the trimmed slot time.
// Slots are keyed on these strings, so two spellings of one day must never
// reach the index or the store.
func normalizeSlot(slotDate, slotTime string) (string, string, error) {
	date, err := slotdate.Normalize(slotDate)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	slotTime = strings.TrimSpace(slotTime)
	if slotTime == "" {
		return "", "", fmt.Errorf("%w: empty slot time", ErrInvalidSlot)
	}
	return date, slotTime, nil
}

func (s *Service) release(ctx context.Context, a Appointment, msg string) {
	if err := s.index.Release(ctx, a.Slot(), a.ID); err != nil && !errors.Is(err, availability.ErrNotOwner) {
		s.log.Warn().Err(err).Str("slot", a.Slot().String()).Msg(msg)
	}
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.engine.Cancel(ctx, id, actor)
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.engine.Complete(ctx, id, actor)
}

// StartPayment creates a provider payment session for the patient's own
// scheduled, unpaid appointment.
func (s *Service) StartPayment(ctx context.Context, actor Actor, id uuid.UUID) (string, error) {
	if s.payments == nil {
		return "", ErrPaymentsDisabled
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return "", err
	}
	if actor.Role != RolePatient || actor.ID != appt.PatientID {
		return "", ErrForbidden
	}
	if appt.Status != StatusScheduled || appt.Paid {
		return "", ErrInvalidTransition
	}

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return "", fmt.Errorf("load patient: %w", err)
	}

	url, err := s.payments.CreateSession(ctx, *appt, *patient)
	if err != nil {
		return "", fmt.Errorf("create payment session: %w", err)
	}
	return url, nil
}

// ConfirmPayment marks the appointment paid after the provider confirmed it.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.engine.MarkPaid(ctx, id)
}

// People resolves the doctors and patients referenced by appts.
func (s *Service) People(ctx context.Context, appts []Appointment) (map[uuid.UUID]Doctor, map[uuid.UUID]Patient, error) {
	doctorIDs := make([]uuid.UUID, 0, len(appts))
	patientIDs := make([]uuid.UUID, 0, len(appts))
	seen := make(map[uuid.UUID]struct{}, 2*len(appts))
	for _, a := range appts {
		if _, ok := seen[a.DoctorID]; !ok {
			seen[a.DoctorID] = struct{}{}
			doctorIDs = append(doctorIDs, a.DoctorID)
		}
		if _, ok := seen[a.PatientID]; !ok {
			seen[a.PatientID] = struct{}{}
			patientIDs = append(patientIDs, a.PatientID)
		}
	}

	doctors, err := s.repo.ListDoctorsByIDs(ctx, doctorIDs)
	if err != nil {
		return nil, nil, err
	}
	patients, err := s.repo.ListPatientsByIDs(ctx, patientIDs)
	if err != nil {
		return nil, nil, err
	}

	dm := make(map[uuid.UUID]Doctor, len(doctors))
	for _, d := range doctors {
		dm[d.ID] = d
	}
	pm := make(map[uuid.UUID]Patient, len(patients))
	for _, p := range patients {
		pm[p.ID] = p
	}
	return dm, pm, nil
}

// ReconcileResult counts what one reconciliation pass found.
type ReconcileResult struct {
	Held      int // active appointments holding their slot afterwards
	Restored  int // holds written back for active appointments
	Released  int // holds dropped for cancelled or unknown appointments
	Conflicts int // active appointments whose slot another owner holds
	Skipped   int // entries left alone because their lock was busy
}

// ReconcileAvailability brings the availability index in line with the
// stored appointments while bookings and cancels keep running. Neither the
// stored snapshot nor the index listing is trusted on its own: every change
// is decided on a fresh read of the appointment under its lock, the same lock
// Book and Cancel hold while they touch the index.
func (s *Service) ReconcileAvailability(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	active, err := s.repo.ListActiveSlots(ctx)
	if err != nil {
		return res, fmt.Errorf("list active slots: %w", err)
	}
	held, err := s.index.Entries(ctx)
	if err != nil {
		return res, fmt.Errorf("list held slots: %w", err)
	}

	activeOwners := make(map[uuid.UUID]struct{}, len(active))
	for _, e := range active {
		activeOwners[e.Owner] = struct{}{}
	}
	heldBy := make(map[availability.Slot]uuid.UUID, len(held))
	for _, e := range held {
		heldBy[e.Slot] = e.Owner
	}

	// Stale holds go first so an active appointment can take its slot back.
	for _, e := range held {
		if _, ok := activeOwners[e.Owner]; ok {
			continue
		}
		if err := s.reconcileHold(ctx, e, &res); err != nil {
			return res, err
		}
	}

	for _, e := range active {
		if owner, ok := heldBy[e.Slot]; ok && owner == e.Owner {
			res.Held++
			continue
		}
		if err := s.reconcileActive(ctx, e.Owner, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// reconcileHold drops a hold whose owner the snapshot did not list as active,
// unless a fresh read shows the owner is active after all.
func (s *Service) reconcileHold(ctx context.Context, e availability.Entry, res *ReconcileResult) error {
	return s.underLock(ctx, e.Owner, res, func(ctx context.Context) error {
		a, err := s.repo.GetAppointmentByID(ctx, e.Owner)
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
		case err != nil:
			return fmt.Errorf("load appointment %s: %w", e.Owner, err)
		case a.Status != StatusCancelled && a.Slot() == e.Slot:
			res.Held++
			return nil
		}

		if err := s.index.Release(ctx, e.Slot, e.Owner); err != nil {
			if errors.Is(err, availability.ErrNotOwner) {
				return nil
			}
			return fmt.Errorf("release slot %s: %w", e.Slot, err)
		}
		res.Released++
		return nil
	})
}

// reconcileActive writes back the hold of an appointment the snapshot listed
// as active, if a fresh read still shows it active.
func (s *Service) reconcileActive(ctx context.Context, id uuid.UUID, res *ReconcileResult) error {
	return s.underLock(ctx, id, res, func(ctx context.Context) error {
		a, err := s.repo.GetAppointmentByID(ctx, id)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load appointment %s: %w", id, err)
		}
		if a.Status == StatusCancelled {
			return nil
		}

		if err := s.index.Reserve(ctx, a.Slot(), a.ID); err != nil {
			if errors.Is(err, availability.ErrSlotConflict) {
				res.Conflicts++
				s.log.Warn().Str("appointment_id", a.ID.String()).Str("slot", a.Slot().String()).
					Msg("active appointment's slot is held by another owner")
				return nil
			}
			return fmt.Errorf("reserve slot %s: %w", a.Slot(), err)
		}
		res.Restored++
		res.Held++
		return nil
	})
}

// underLock runs fn under the appointment lock. An entry whose lock cannot be
// taken is counted as skipped; the next pass picks it up.
func (s *Service) underLock(ctx context.Context, id uuid.UUID, res *ReconcileResult, fn func(ctx context.Context) error) error {
	entered := false
	err := s.engine.locker.WithLock(ctx, lockName(id), func(ctx context.Context) error {
		entered = true
		return fn(ctx)
	})
	if err != nil && !entered && ctx.Err() == nil {
		res.Skipped++
		s.log.Warn().Err(err).Str("appointment_id", id.String()).Msg("appointment lock unavailable, left for the next pass")
		return nil
	}
	return err
}

// Restore writes a complete appointment record, typically one imported from
// the previous store. A new record is stored as given. A stored record is
// only overwritten when Supersedes allows it, so a restore can move an
// appointment forward through its lifecycle but never back. The slot index
// follows the stored status.
func (s *Service) Restore(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing appointment id", ErrInvalidSlot)
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, a.Status)
	}
	date, tm, err := normalizeSlot(a.SlotDate, a.SlotTime)
	if err != nil {
		return nil, err
	}
	a.SlotDate, a.SlotTime = date, tm

	if _, err := s.repo.GetDoctorByID(ctx, a.DoctorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, a.PatientID); err != nil {
		return nil, err
	}

	var saved *Appointment
	err = s.engine.locker.WithLock(ctx, lockName(a.ID), func(ctx context.Context) error {
		prev, err := s.repo.GetAppointmentByID(ctx, a.ID)
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			prev = nil
			a.Version = 1
		case err != nil:
			return fmt.Errorf("load appointment: %w", err)
		default:
			if prev.Status == a.Status && prev.Paid == a.Paid {
				saved = prev
				return nil
			}
			a.Version = prev.Version + 1
			if err := Supersedes(*prev, a); err != nil {
				return err
			}
		}

		if a.Status != StatusCancelled {
			if err := s.index.Reserve(ctx, a.Slot(), a.ID); err != nil {
				if errors.Is(err, availability.ErrSlotConflict) {
					return ErrSlotConflict
				}
				return fmt.Errorf("reserve slot: %w", err)
			}
		}

		saved, err = s.repo.SaveAppointment(ctx, a)
		if err != nil {
			if prev == nil && a.Status != StatusCancelled {
				s.release(context.WithoutCancel(ctx), a, "release slot after failed restore")
			}
			return err
		}
		if saved.Status == StatusCancelled {
			s.release(ctx, *saved, "release slot after restore")
		}

		insertEvent(ctx, s.repo, s.log, saved.ID, EventAppointmentRestored, map[string]any{
			"status":  string(saved.Status),
			"paid":    saved.Paid,
			"version": saved.Version,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
