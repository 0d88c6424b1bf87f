package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentPaid      = "APPOINTMENT_PAID"
	EventAppointmentRestored  = "APPOINTMENT_RESTORED"
)

// Engine applies lifecycle transitions to stored appointments. Each
// transition runs under a per-appointment lock and commits with a
// compare-and-swap on the state it was computed from.
type Engine struct {
	repo   Repository
	locker Locker
	index  availability.Index
	log    zerolog.Logger
	now    func() time.Time
}

func NewEngine(repo Repository, locker Locker, index availability.Index, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		locker: locker,
		index:  index,
		log:    logger,
		now:    time.Now,
	}
}

// transition describes one lifecycle operation.
type transition struct {
	event string
	apply func(a Appointment, now time.Time) (Appointment, error)
	// reached reports whether a already holds the state apply would produce.
	reached func(a Appointment) bool
	// settle, if set, runs on the resulting record before the lock is released.
	settle func(ctx context.Context, a *Appointment)
}

func lockName(id uuid.UUID) string {
	return "appointment:" + id.String()
}

func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return e.run(ctx, id, transition{
		event: EventAppointmentCancelled,
		apply: func(a Appointment, now time.Time) (Appointment, error) {
			return Cancel(a, actor, now)
		},
		reached: func(a Appointment) bool { return a.Status == StatusCancelled },
		settle:  e.releaseSlot,
	}, actor)
}

// releaseSlot frees the slot of a cancelled appointment. It runs while the
// appointment lock is still held so the reconciler never observes a committed
// cancel with its slot still reserved.
func (e *Engine) releaseSlot(ctx context.Context, a *Appointment) {
	if err := e.index.Release(ctx, a.Slot(), a.ID); err != nil && !errors.Is(err, availability.ErrNotOwner) {
		// The reconciler drops holds of cancelled appointments, so a failed
		// release only delays the slot becoming bookable again.
		e.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("release slot after cancel")
	}
}

func (e *Engine) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return e.run(ctx, id, transition{
		event: EventAppointmentCompleted,
		apply: func(a Appointment, now time.Time) (Appointment, error) {
			return Complete(a, actor, now)
		},
		reached: func(a Appointment) bool { return a.Status == StatusCompleted },
	}, actor)
}

// MarkPaid confirms payment. It is driven by the payment provider, not by an
// actor, so no permission check applies.
func (e *Engine) MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.run(ctx, id, transition{
		event:   EventAppointmentPaid,
		apply:   MarkPaid,
		reached: func(a Appointment) bool { return a.Paid },
	}, Actor{})
}

func (e *Engine) run(ctx context.Context, id uuid.UUID, t transition, actor Actor) (*Appointment, error) {
	var result *Appointment

	err := e.locker.WithLock(ctx, lockName(id), func(lockCtx context.Context) error {
		var err error
		result, err = e.decide(lockCtx, id, t, actor)
		if err != nil {
			return err
		}
		if t.settle != nil {
			t.settle(lockCtx, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decide loads the appointment and commits t on it. The caller holds the
// appointment lock.
func (e *Engine) decide(ctx context.Context, id uuid.UUID, t transition, actor Actor) (*Appointment, error) {
	current, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, changed, err := e.attempt(ctx, *current, t)
	if err == nil {
		if changed {
			e.logEvent(ctx, id, t.event, actor)
		}
		return next, nil
	}
	if !errors.Is(err, ErrStaleState) {
		return nil, err
	}

	// Lost the race. Re-read once and decide on the fresh snapshot.
	fresh, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, applyErr := t.apply(*fresh, e.now()); errors.Is(applyErr, ErrInvalidTransition) && t.reached(*fresh) {
		return fresh, nil
	}

	next, changed, err = e.attempt(ctx, *fresh, t)
	if errors.Is(err, ErrStaleState) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	if changed {
		e.logEvent(ctx, id, t.event, actor)
	}
	return next, nil
}

// attempt computes the transition on a and commits it. changed is false when
// the transition was a no-op and nothing was written.
func (e *Engine) attempt(ctx context.Context, a Appointment, t transition) (*Appointment, bool, error) {
	next, err := t.apply(a, e.now())
	if err != nil {
		return nil, false, err
	}
	if next.Version == a.Version {
		return &next, false, nil
	}

	stored, err := e.repo.CompareAndSwap(ctx, a.ID, a.State(), next)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (e *Engine) logEvent(ctx context.Context, id uuid.UUID, eventType string, actor Actor) {
	payload := map[string]any{}
	if actor.Role != "" {
		payload["actor_role"] = string(actor.Role)
		payload["actor_id"] = actor.ID.String()
	}
	insertEvent(ctx, e.repo, e.log, id, eventType, payload)
}

func insertEvent(ctx context.Context, repo Repository, logger zerolog.Logger, id uuid.UUID, eventType string, payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		return
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       b,
		CreatedAt:     time.Now().UTC(),
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(fmt.Errorf("event %s for %s: %w", eventType, id, err)).Msg("insert event")
	}
}
