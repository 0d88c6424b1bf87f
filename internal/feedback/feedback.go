// Package feedback collects free-text feedback from patients for clinic
// staff to page through and export.
package feedback

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

const MaxLength = 2000

var (
	ErrEmpty   = errors.New("feedback text is empty")
	ErrTooLong = errors.New("feedback text is too long")
)

type Entry struct {
	ID        uuid.UUID
	AuthorID  uuid.UUID
	Text      string
	CreatedAt time.Time
}

type Store interface {
	Create(ctx context.Context, e Entry) (*Entry, error)
	// List returns one page newest first and the total count.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
	// Between returns entries created in [from, to], oldest first.
	Between(ctx context.Context, from, to time.Time) ([]Entry, error)
}

type Service struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, log: logger, now: time.Now}
}

// Submit stores feedback written by a patient.
func (s *Service) Submit(ctx context.Context, actor appointment.Actor, text string) (*Entry, error) {
	if actor.Role != appointment.RolePatient {
		return nil, appointment.ErrForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return nil, ErrTooLong
	}

	e, err := s.store.Create(ctx, Entry{
		ID:        uuid.New(),
		AuthorID:  actor.ID,
		Text:      text,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("feedback_id", e.ID.String()).Msg("feedback submitted")
	return e, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *Service) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	return s.store.Between(ctx, from, to)
}
