// Package account manages login credentials and the password reset flow.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

var (
	ErrUserNotFound       = errors.New("user does not exist")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// User is a login identity. For patients and doctors ID equals the patient or
// doctor id so a session maps straight onto an appointment actor.
type User struct {
	ID           uuid.UUID
	Role         appointment.Role
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Actor() appointment.Actor {
	return appointment.Actor{Role: u.Role, ID: u.ID}
}

type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u User) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}
