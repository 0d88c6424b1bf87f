package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const appointmentColumns = `id, doctor_id, patient_id, slot_date, slot_time, amount, status, paid, version,
	created_at, updated_at, cancelled_at, completed_at, paid_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.DOB,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if email != nil {
		p.Email = *email
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var speciality *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&speciality,
		&d.Fees,
		&d.Available,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if speciality != nil {
		d.Speciality = *speciality
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotDate,
		&a.SlotTime,
		&a.Amount,
		&status,
		&a.Paid,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// whereClause renders the filter as a WHERE clause with positional args.
func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.SlotDate != "" {
		add("slot_date = $%d", f.SlotDate)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, dob, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, speciality, fees, available, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListPatientsByIDs(ctx context.Context, ids []uuid.UUID) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, dob, created_at, updated_at
		FROM patients
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDoctorsByIDs(ctx context.Context, ids []uuid.UUID) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, speciality, fees, available, created_at, updated_at
		FROM doctors
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	where, args := whereClause(f)

	order := "created_at ASC, id ASC"
	if f.NewestFirst {
		order = "created_at DESC, id DESC"
	}

	query := "SELECT " + appointmentColumns + " FROM appointments " + where + " ORDER BY " + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountAppointments(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)

	var n int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM appointments "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_date, slot_time, amount, status, paid, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', false, 1, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.SlotDate, a.SlotTime, a.Amount)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, availability.ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) SaveAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var saved *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, a.ID))
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
		case err != nil:
			return fmt.Errorf("lock appointment: %w", err)
		default:
			if err := Supersedes(*prev, a); err != nil {
				return err
			}
		}

		saved, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()), COALESCE($11, now()), $12, $13, $14)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    paid = EXCLUDED.paid,
			    version = EXCLUDED.version,
			    updated_at = EXCLUDED.updated_at,
			    cancelled_at = EXCLUDED.cancelled_at,
			    completed_at = EXCLUDED.completed_at,
			    paid_at = EXCLUDED.paid_at
			RETURNING `+appointmentColumns,
			a.ID, a.DoctorID, a.PatientID, a.SlotDate, a.SlotTime, a.Amount, string(a.Status), a.Paid, a.Version,
			nullableTime(a.CreatedAt), nullableTime(a.UpdatedAt), a.CancelledAt, a.CompletedAt, a.PaidAt))
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, availability.ErrSlotConflict
		}
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrStaleState) {
			return nil, err
		}
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expected State, next Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $5,
		    paid = $6,
		    version = $7,
		    updated_at = now(),
		    cancelled_at = $8,
		    completed_at = $9,
		    paid_at = $10
		WHERE id = $1
		  AND status = $2
		  AND paid = $3
		  AND version = $4
		RETURNING `+appointmentColumns,
		id, string(expected.Status), expected.Paid, expected.Version,
		string(next.Status), next.Paid, next.Version, next.CancelledAt, next.CompletedAt, next.PaidAt)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Either the id is unknown or the precondition failed.
		if _, getErr := r.GetAppointmentByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("compare and swap appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListActiveSlots(ctx context.Context) ([]availability.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, slot_date, slot_time
		FROM appointments
		WHERE status <> 'cancelled'
	`)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	defer rows.Close()

	var result []availability.Entry
	for rows.Next() {
		var e availability.Entry
		if err := rows.Scan(&e.Owner, &e.Slot.DoctorID, &e.Slot.Date, &e.Slot.Time); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpsertDoctor inserts d or refreshes the stored profile.
func (r *PgRepository) UpsertDoctor(ctx context.Context, d Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, speciality, fees, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			speciality = EXCLUDED.speciality,
			fees = EXCLUDED.fees,
			available = EXCLUDED.available,
			updated_at = now()
	`, d.ID, d.Name, d.Email, d.Speciality, d.Fees, d.Available)
	if err != nil {
		return fmt.Errorf("upsert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) UpsertPatient(ctx context.Context, p Patient) error {
	var email *string
	if p.Email != "" {
		email = &p.Email
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, dob, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			dob = EXCLUDED.dob,
			updated_at = now()
	`, p.ID, p.Name, email, p.DOB)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}
