package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order and every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS doctors (
		id          uuid PRIMARY KEY,
		name        text NOT NULL,
		email       text NOT NULL UNIQUE,
		speciality  text,
		fees        bigint NOT NULL DEFAULT 0 CHECK (fees >= 0),
		available   boolean NOT NULL DEFAULT true,
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id          uuid PRIMARY KEY,
		name        text NOT NULL,
		email       text UNIQUE,
		dob         date,
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id             uuid PRIMARY KEY,
		role           text NOT NULL CHECK (role IN ('patient', 'doctor', 'admin')),
		name           text NOT NULL,
		email          text NOT NULL UNIQUE,
		password_hash  text NOT NULL,
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id            uuid PRIMARY KEY,
		doctor_id     uuid NOT NULL REFERENCES doctors(id),
		patient_id    uuid NOT NULL REFERENCES patients(id),
		slot_date     text NOT NULL,
		slot_time     text NOT NULL,
		amount        bigint NOT NULL CHECK (amount >= 0),
		status        text NOT NULL CHECK (status IN ('scheduled', 'cancelled', 'completed')),
		paid          boolean NOT NULL DEFAULT false,
		version       bigint NOT NULL DEFAULT 1,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now(),
		cancelled_at  timestamptz,
		completed_at  timestamptz,
		paid_at       timestamptz
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_idx
		ON appointments (doctor_id, slot_date, slot_time)
		WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id          uuid PRIMARY KEY,
		author_id   uuid NOT NULL,
		text        text NOT NULL,
		created_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS feedback_created_idx ON feedback (created_at)`,
	`CREATE TABLE IF NOT EXISTS event_logs (
		id              bigserial PRIMARY KEY,
		event_type      text NOT NULL,
		appointment_id  uuid,
		payload         jsonb,
		created_at      timestamptz NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes used by the service in a
// single transaction.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}
