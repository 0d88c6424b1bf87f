package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/notify"
)

type Service struct {
	store        Store
	tokens       *TokenIssuer
	mailer       notify.Mailer
	resetURLBase string
	hashCost     int
	log          zerolog.Logger
}

func NewService(store Store, tokens *TokenIssuer, mailer notify.Mailer, resetURLBase string, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		tokens:       tokens,
		mailer:       mailer,
		resetURLBase: strings.TrimRight(resetURLBase, "/"),
		hashCost:     bcrypt.DefaultCost,
		log:          logger,
	}
}

// WithHashCost overrides the bcrypt cost used for new passwords.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Register creates a login. id may be uuid.Nil to assign a fresh one.
func (s *Service) Register(ctx context.Context, id uuid.UUID, role appointment.Role, name, email, password string) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, User{
		ID:           id,
		Role:         role,
		Name:         name,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
	})
}

// Authenticate returns the user for a matching email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// RequestReset mails a one-hour reset link to the user registered with email.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	u, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}

	token, err := s.tokens.Issue(*u)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/%s/%s", s.resetURLBase, u.ID, token)
	err = s.mailer.Send(ctx, notify.Message{
		To:      u.Email,
		Subject: "Password Reset Request",
		Body:    "Please click on the following link to reset your password: " + link,
	})
	if err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}

	s.log.Info().Str("user_id", u.ID.String()).Msg("password reset requested")
	return nil
}

// Reset replaces the password of user id if token is still valid for the
// password currently stored.
func (s *Service) Reset(ctx context.Context, id uuid.UUID, token, newPassword string) error {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tokens.Verify(*u, token); err != nil {
		return err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return err
	}

	s.log.Info().Str("user_id", u.ID.String()).Msg("password reset")
	return nil
}
