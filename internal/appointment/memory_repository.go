package appointment

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
)

// MemoryRepository keeps everything in process. It is used when no database
// is configured and in tests. All reads return copies.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]Appointment
	// order keeps insertion order so listings are stable.
	order  []uuid.UUID
	events []EventLog
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) PutDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) UpsertDoctor(_ context.Context, d Doctor) error {
	r.PutDoctor(d)
	return nil
}

func (r *MemoryRepository) UpsertPatient(_ context.Context, p Patient) error {
	r.PutPatient(p)
	return nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListPatientsByIDs(_ context.Context, ids []uuid.UUID) ([]Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Patient
	for _, id := range ids {
		if p, ok := r.patients[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListDoctorsByIDs(_ context.Context, ids []uuid.UUID) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Doctor
	for _, id := range ids {
		if d, ok := r.doctors[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) matching(f Filter) []Appointment {
	var out []Appointment
	for _, id := range r.order {
		a := r.appointments[id]
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.SlotDate != "" && a.SlotDate != f.SlotDate {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	if f.NewestFirst {
		// order is oldest first; reverse keeps ties in reverse insertion order.
		slices.Reverse(out)
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

func (r *MemoryRepository) FindAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.matching(f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Appointment{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountAppointments(_ context.Context, f Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matching(f)), nil
}

func (r *MemoryRepository) slotTaken(a Appointment) bool {
	for _, other := range r.appointments {
		if other.ID == a.ID || other.Status == StatusCancelled {
			continue
		}
		if other.DoctorID == a.DoctorID && other.SlotDate == a.SlotDate && other.SlotTime == a.SlotTime {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if r.slotTaken(a) {
		return nil, availability.ErrSlotConflict
	}

	now := r.now()
	a.Status = StatusScheduled
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	r.appointments[a.ID] = a
	r.order = append(r.order, a.ID)
	return &a, nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.appointments[a.ID]
	if exists {
		if err := Supersedes(prev, a); err != nil {
			return nil, err
		}
		a.CreatedAt = prev.CreatedAt
	}
	if a.Status != StatusCancelled && r.slotTaken(a) {
		return nil, availability.ErrSlotConflict
	}

	now := r.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if !exists {
		r.order = append(r.order, a.ID)
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) CompareAndSwap(_ context.Context, id uuid.UUID, expected State, next Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.State() != expected {
		return nil, ErrStaleState
	}

	// Identity and booking terms are immutable.
	next.ID = current.ID
	next.DoctorID = current.DoctorID
	next.PatientID = current.PatientID
	next.SlotDate = current.SlotDate
	next.SlotTime = current.SlotTime
	next.Amount = current.Amount
	next.CreatedAt = current.CreatedAt

	r.appointments[id] = next
	return &next, nil
}

func (r *MemoryRepository) ListActiveSlots(_ context.Context) ([]availability.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []availability.Entry
	for _, id := range r.order {
		a := r.appointments[id]
		if a.Status == StatusCancelled {
			continue
		}
		out = append(out, availability.Entry{Slot: a.Slot(), Owner: a.ID})
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}
