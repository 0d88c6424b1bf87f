package availability

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex keeps, per doctor, a map of slot date to booked slot times.
type MemoryIndex struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]map[string]map[string]uuid.UUID
}

var _ Index = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{doctors: make(map[uuid.UUID]map[string]map[string]uuid.UUID)}
}

func (m *MemoryIndex) IsAvailable(_ context.Context, slot Slot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, held := m.doctors[slot.DoctorID][slot.Date][slot.Time]
	return !held, nil
}

func (m *MemoryIndex) Reserve(_ context.Context, slot Slot, owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	times := m.times(slot.DoctorID, slot.Date)
	if current, held := times[slot.Time]; held {
		if current == owner {
			return nil
		}
		return ErrSlotConflict
	}
	times[slot.Time] = owner
	return nil
}

func (m *MemoryIndex) Release(_ context.Context, slot Slot, owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dates, ok := m.doctors[slot.DoctorID]
	if !ok {
		return nil
	}
	times, ok := dates[slot.Date]
	if !ok {
		return nil
	}
	current, held := times[slot.Time]
	if !held {
		return nil
	}
	if current != owner {
		return ErrNotOwner
	}

	delete(times, slot.Time)
	if len(times) == 0 {
		delete(dates, slot.Date)
	}
	if len(dates) == 0 {
		delete(m.doctors, slot.DoctorID)
	}
	return nil
}

func (m *MemoryIndex) BookedTimes(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	times := m.doctors[doctorID][date]
	out := make([]string, 0, len(times))
	for t := range times {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryIndex) Entries(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for doctorID, dates := range m.doctors {
		for date, times := range dates {
			for tm, owner := range times {
				out = append(out, Entry{Slot: Slot{DoctorID: doctorID, Date: date, Time: tm}, Owner: owner})
			}
		}
	}
	return out, nil
}

// times returns the slot-time set for doctor and date, creating it. Caller holds mu.
func (m *MemoryIndex) times(doctorID uuid.UUID, date string) map[string]uuid.UUID {
	dates, ok := m.doctors[doctorID]
	if !ok {
		dates = make(map[string]map[string]uuid.UUID)
		m.doctors[doctorID] = dates
	}
	times, ok := dates[date]
	if !ok {
		times = make(map[string]uuid.UUID)
		dates[date] = times
	}
	return times
}
