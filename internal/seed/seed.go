// Package seed fills a directory with fake doctors, patients, login accounts
// and a spread of appointments in every lifecycle state.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

const AdminEmail = "admin@clinic.test"

var ErrAlreadySeeded = errors.New("directory already seeded")

var specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

// Directory stores doctor and patient profiles.
type Directory interface {
	UpsertDoctor(ctx context.Context, d appointment.Doctor) error
	UpsertPatient(ctx context.Context, p appointment.Patient) error
}

type Options struct {
	Doctors      int
	Patients     int
	Appointments int
	// Password is shared by every seeded account.
	Password string
	// Start is the first day appointments are spread over.
	Start time.Time
	Days  int
	// Fractions of booked appointments moved on after booking.
	CompleteRatio float64
	CancelRatio   float64
	PaidRatio     float64
	// Seed makes the data reproducible; 0 picks a random one.
	Seed uint64
}

func DefaultOptions() Options {
	return Options{
		Doctors:       10,
		Patients:      200,
		Appointments:  400,
		Password:      "clinic-demo-pass",
		Start:         time.Now().AddDate(0, 0, -14),
		Days:          28,
		CompleteRatio: 0.3,
		CancelRatio:   0.15,
		PaidRatio:     0.4,
	}
}

type Result struct {
	Doctors   []appointment.Doctor
	Patients  []appointment.Patient
	Booked    int
	Conflicts int
	Completed int
	Cancelled int
	Paid      int
}

type Seeder struct {
	dir      Directory
	accounts *account.Service
	svc      *appointment.Service
	log      zerolog.Logger
}

func New(dir Directory, accounts *account.Service, svc *appointment.Service, logger zerolog.Logger) *Seeder {
	return &Seeder{dir: dir, accounts: accounts, svc: svc, log: logger}
}

func DoctorEmail(i int) string  { return fmt.Sprintf("doctor%d@clinic.test", i+1) }
func PatientEmail(i int) string { return fmt.Sprintf("patient%d@clinic.test", i+1) }

// SlotTimes lists the half-hour consultation times offered each day.
func SlotTimes() []string {
	start := time.Date(2000, 1, 1, 10, 0, 0, 0, time.UTC)
	var times []string
	for t := start; t.Hour() < 21; t = t.Add(30 * time.Minute) {
		times = append(times, t.Format("03:04 PM"))
	}
	return times
}

func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	faker := gofakeit.New(opts.Seed)

	admin := appointment.Actor{Role: appointment.RoleAdmin, ID: uuid.New()}
	if _, err := s.accounts.Register(ctx, admin.ID, appointment.RoleAdmin, "Clinic Admin", AdminEmail, opts.Password); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, ErrAlreadySeeded
		}
		return nil, fmt.Errorf("register admin: %w", err)
	}

	res := &Result{}

	for i := 0; i < opts.Doctors; i++ {
		d := appointment.Doctor{
			ID:         uuid.New(),
			Name:       "Dr. " + faker.Name(),
			Email:      DoctorEmail(i),
			Speciality: faker.RandomString(specialities),
			Fees:       int64(faker.Number(4, 20) * 50),
			Available:  i == 0 || faker.Float64() < 0.9,
		}
		if err := s.dir.UpsertDoctor(ctx, d); err != nil {
			return nil, err
		}
		if _, err := s.accounts.Register(ctx, d.ID, appointment.RoleDoctor, d.Name, d.Email, opts.Password); err != nil {
			return nil, fmt.Errorf("register doctor %s: %w", d.Email, err)
		}
		res.Doctors = append(res.Doctors, d)
	}
	s.log.Info().Int("count", len(res.Doctors)).Msg("doctors seeded")

	dobFrom := time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	dobTo := time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < opts.Patients; i++ {
		p := appointment.Patient{
			ID:    uuid.New(),
			Name:  faker.Name(),
			Email: PatientEmail(i),
		}
		// A few patients never filled in their birth date.
		if faker.Float64() < 0.9 {
			dob := faker.DateRange(dobFrom, dobTo).Truncate(24 * time.Hour)
			p.DOB = &dob
		}
		if err := s.dir.UpsertPatient(ctx, p); err != nil {
			return nil, err
		}
		if _, err := s.accounts.Register(ctx, p.ID, appointment.RolePatient, p.Name, p.Email, opts.Password); err != nil {
			return nil, fmt.Errorf("register patient %s: %w", p.Email, err)
		}
		res.Patients = append(res.Patients, p)
	}
	s.log.Info().Int("count", len(res.Patients)).Msg("patients seeded")

	if err := s.book(ctx, faker, admin, opts, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Seeder) book(ctx context.Context, faker *gofakeit.Faker, admin appointment.Actor, opts Options, res *Result) error {
	var available []appointment.Doctor
	for _, d := range res.Doctors {
		if d.Available {
			available = append(available, d)
		}
	}
	if len(available) == 0 || len(res.Patients) == 0 || opts.Days <= 0 {
		return nil
	}

	times := SlotTimes()
	for i := 0; i < opts.Appointments; i++ {
		d := available[faker.Number(0, len(available)-1)]
		p := res.Patients[faker.Number(0, len(res.Patients)-1)]
		day := opts.Start.AddDate(0, 0, faker.Number(0, opts.Days-1))

		appt, err := s.svc.Book(ctx, admin, appointment.BookingRequest{
			DoctorID:  d.ID,
			PatientID: p.ID,
			SlotDate:  slotdate.FromTime(day),
			SlotTime:  faker.RandomString(times),
		})
		if errors.Is(err, appointment.ErrSlotConflict) {
			res.Conflicts++
			continue
		}
		if err != nil {
			return fmt.Errorf("book appointment: %w", err)
		}
		res.Booked++

		if faker.Float64() < opts.PaidRatio {
			if _, err := s.svc.ConfirmPayment(ctx, appt.ID); err != nil {
				return fmt.Errorf("mark paid: %w", err)
			}
			res.Paid++
		}

		roll := faker.Float64()
		switch {
		case roll < opts.CompleteRatio:
			doctor := appointment.Actor{Role: appointment.RoleDoctor, ID: d.ID}
			if _, err := s.svc.Complete(ctx, doctor, appt.ID); err != nil {
				return fmt.Errorf("complete appointment: %w", err)
			}
			res.Completed++
		case roll < opts.CompleteRatio+opts.CancelRatio:
			patient := appointment.Actor{Role: appointment.RolePatient, ID: p.ID}
			if _, err := s.svc.Cancel(ctx, patient, appt.ID); err != nil {
				return fmt.Errorf("cancel appointment: %w", err)
			}
			res.Cancelled++
		}
	}

	s.log.Info().
		Int("booked", res.Booked).
		Int("conflicts", res.Conflicts).
		Int("completed", res.Completed).
		Int("cancelled", res.Cancelled).
		Int("paid", res.Paid).
		Msg("appointments seeded")
	return nil
}
