package appointment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

type fakePayments struct {
	createFn func(ctx context.Context, a Appointment, p Patient) (string, error)
}

func (f *fakePayments) CreateSession(ctx context.Context, a Appointment, p Patient) (string, error) {
	return f.createFn(ctx, a, p)
}

type serviceFixture struct {
	repo    *MemoryRepository
	index   *availability.MemoryIndex
	svc     *Service
	doctor  Doctor
	patient Patient
}

func newServiceFixture(t *testing.T, payments PaymentSessionCreator) *serviceFixture {
	t.Helper()
	repo := NewMemoryRepository()
	index := availability.NewMemoryIndex()

	doctor := Doctor{ID: uuid.New(), Name: "Dr. Rao", Email: "rao@example.com", Fees: 750, Available: true}
	patient := Patient{ID: uuid.New(), Name: "Asha", Email: "asha@example.com"}
	repo.PutDoctor(doctor)
	repo.PutPatient(patient)

	return &serviceFixture{
		repo:    repo,
		index:   index,
		svc:     NewService(repo, NewLocalLocker(), index, payments, zerolog.Nop()),
		doctor:  doctor,
		patient: patient,
	}
}

func (f *serviceFixture) request(slotTime string) BookingRequest {
	return BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, SlotDate: "14_2_2025", SlotTime: slotTime}
}

func (f *serviceFixture) patientActor() Actor {
	return Actor{Role: RolePatient, ID: f.patient.ID}
}

func TestService_Book(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patientActor(), f.request("10:30 AM"))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, f.doctor.Fees, appt.Amount)
	assert.False(t, appt.Paid)
	assert.Equal(t, int64(1), appt.Version)

	times, err := f.svc.BookedTimes(ctx, f.doctor.ID, "14_2_2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30 AM"}, times)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestService_BookRejections(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, Actor{Role: RolePatient, ID: uuid.New()}, f.request("9:00 AM"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Book(ctx, Actor{Role: RoleDoctor, ID: f.doctor.ID}, f.request("9:00 AM"))
	assert.ErrorIs(t, err, ErrForbidden)

	req := f.request("9:00 AM")
	req.SlotDate = "2025-02-14"
	_, err = f.svc.Book(ctx, f.patientActor(), req)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	var fe *slotdate.FormatError
	assert.True(t, errors.As(err, &fe))

	_, err = f.svc.Book(ctx, f.patientActor(), f.request("  "))
	assert.ErrorIs(t, err, ErrInvalidSlot)

	req = f.request("9:00 AM")
	req.DoctorID = uuid.New()
	_, err = f.svc.Book(ctx, f.patientActor(), req)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	away := Doctor{ID: uuid.New(), Name: "Dr. Away", Fees: 100}
	f.repo.PutDoctor(away)
	req = f.request("9:00 AM")
	req.DoctorID = away.ID
	_, err = f.svc.Book(ctx, f.patientActor(), req)
	assert.ErrorIs(t, err, ErrDoctorUnavailable)

	req = f.request("9:00 AM")
	req.PatientID = uuid.New()
	_, err = f.svc.Book(ctx, Actor{Role: RoleAdmin, ID: uuid.New()}, req)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	// None of the rejections held a slot.
	ok, err := f.index.IsAvailable(ctx, availability.Slot{DoctorID: f.doctor.ID, Date: "14_2_2025", Time: "9:00 AM"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_SlotConflictAndCancelFreesSlot(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, f.patientActor(), f.request("11:00 AM"))
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.patientActor(), f.request("11:00 AM"))
	assert.ErrorIs(t, err, ErrSlotConflict)

	_, err = f.svc.Cancel(ctx, f.patientActor(), first.ID)
	require.NoError(t, err)

	second, err := f.svc.Book(ctx, f.patientActor(), f.request("11:00 AM"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Cancelled records are kept.
	_, total, err := f.svc.List(ctx, Filter{PatientID: &f.patient.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestService_ConcurrentBookingOneWinner(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(ctx, f.patientActor(), f.request("4:00 PM"))
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrSlotConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), conflicts)
}

func TestService_GetVisibility(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patientActor(), f.request("10:00 AM"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.patientActor(), appt.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, Actor{Role: RoleDoctor, ID: f.doctor.ID}, appt.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, Actor{Role: RolePatient, ID: uuid.New()}, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Get(ctx, f.patientActor(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestService_ListPaging(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	var ids []uuid.UUID
	for _, tm := range []string{"9:00 AM", "9:30 AM", "10:00 AM", "10:30 AM", "11:00 AM"} {
		a, err := f.svc.Book(ctx, f.patientActor(), f.request(tm))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	items, total, err := f.svc.List(ctx, Filter{DoctorID: &f.doctor.ID, NewestFirst: true, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 4)
	assert.Equal(t, ids[4], items[0].ID)

	items, _, err = f.svc.List(ctx, Filter{DoctorID: &f.doctor.ID, NewestFirst: true, Limit: 4, Offset: 4})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ids[0], items[0].ID)
}

func TestService_Payment(t *testing.T) {
	var got Appointment
	payments := &fakePayments{createFn: func(_ context.Context, a Appointment, p Patient) (string, error) {
		got = a
		return "https://rzp.io/i/abc", nil
	}}
	f := newServiceFixture(t, payments)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patientActor(), f.request("1:00 PM"))
	require.NoError(t, err)

	_, err = f.svc.StartPayment(ctx, Actor{Role: RoleDoctor, ID: f.doctor.ID}, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	url, err := f.svc.StartPayment(ctx, f.patientActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/abc", url)
	assert.Equal(t, appt.ID, got.ID)

	paid, err := f.svc.ConfirmPayment(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	_, err = f.svc.StartPayment(ctx, f.patientActor(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_PaymentsDisabled(t *testing.T) {
	f := newServiceFixture(t, nil)
	_, err := f.svc.StartPayment(context.Background(), f.patientActor(), uuid.New())
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
}

// snapshotHookRepo runs afterSnapshot once ListActiveSlots has read the
// stored records, standing in for traffic that lands mid-reconciliation.
type snapshotHookRepo struct {
	*MemoryRepository
	afterSnapshot func()
}

func (r *snapshotHookRepo) ListActiveSlots(ctx context.Context) ([]availability.Entry, error) {
	entries, err := r.MemoryRepository.ListActiveSlots(ctx)
	if r.afterSnapshot != nil {
		r.afterSnapshot()
	}
	return entries, err
}

func TestService_ReconcileAvailability(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	kept, err := f.svc.Book(ctx, f.patientActor(), f.request("2:00 PM"))
	require.NoError(t, err)
	lost, err := f.svc.Book(ctx, f.patientActor(), f.request("2:30 PM"))
	require.NoError(t, err)
	dropped, err := f.svc.Book(ctx, f.patientActor(), f.request("3:00 PM"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.patientActor(), dropped.ID)
	require.NoError(t, err)

	// One hold vanished from the index, one belongs to nothing stored.
	require.NoError(t, f.index.Release(ctx, lost.Slot(), lost.ID))
	orphan := availability.Slot{DoctorID: f.doctor.ID, Date: "14_2_2025", Time: "3:30 PM"}
	require.NoError(t, f.index.Reserve(ctx, orphan, uuid.New()))

	res, err := f.svc.ReconcileAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Held: 2, Restored: 1, Released: 1}, res)

	for _, slot := range []availability.Slot{kept.Slot(), lost.Slot()} {
		ok, err := f.index.IsAvailable(ctx, slot)
		require.NoError(t, err)
		assert.False(t, ok, slot.String())
	}
	for _, slot := range []availability.Slot{dropped.Slot(), orphan} {
		ok, err := f.index.IsAvailable(ctx, slot)
		require.NoError(t, err)
		assert.True(t, ok, slot.String())
	}

	// A second pass finds nothing to do.
	res, err = f.svc.ReconcileAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Held: 2}, res)
}

func TestService_ReconcileKeepsCancelDoneMidPass(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patientActor(), f.request("10:30 AM"))
	require.NoError(t, err)

	hooked := &snapshotHookRepo{MemoryRepository: f.repo}
	f.svc = NewService(hooked, NewLocalLocker(), f.index, nil, zerolog.Nop())
	hooked.afterSnapshot = func() {
		hooked.afterSnapshot = nil
		_, err := f.svc.Cancel(ctx, f.patientActor(), appt.ID)
		require.NoError(t, err)
	}

	res, err := f.svc.ReconcileAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Held)
	assert.Equal(t, 0, res.Restored)

	ok, err := f.index.IsAvailable(ctx, appt.Slot())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.Book(ctx, f.patientActor(), f.request("10:30 AM"))
	assert.NoError(t, err)
}

func TestService_ReconcileKeepsBookingDoneMidPass(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	hooked := &snapshotHookRepo{MemoryRepository: f.repo}
	f.svc = NewService(hooked, NewLocalLocker(), f.index, nil, zerolog.Nop())

	var late *Appointment
	hooked.afterSnapshot = func() {
		hooked.afterSnapshot = nil
		var err error
		late, err = f.svc.Book(ctx, f.patientActor(), f.request("11:30 AM"))
		require.NoError(t, err)
	}

	res, err := f.svc.ReconcileAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Held: 1}, res)

	ok, err := f.index.IsAvailable(ctx, late.Slot())
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.svc.Book(ctx, f.patientActor(), f.request("11:30 AM"))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestService_BookNormalisesSlotDate(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, f.patientActor(), f.request("10:30 AM"))
	require.NoError(t, err)
	assert.Equal(t, "14_2_2025", first.SlotDate)

	req := f.request("10:30 AM")
	req.SlotDate = "14_02_2025"
	_, err = f.svc.Book(ctx, f.patientActor(), req)
	assert.ErrorIs(t, err, ErrSlotConflict)

	for _, bad := range []string{"14_2_2025_x", "30_2_2025", " 14_2_2025"} {
		req.SlotDate = bad
		_, err = f.svc.Book(ctx, f.patientActor(), req)
		assert.ErrorIs(t, err, ErrInvalidSlot, bad)
	}

	req = f.request(" 9:00 AM ")
	req.SlotDate = "09_03_2025"
	second, err := f.svc.Book(ctx, f.patientActor(), req)
	require.NoError(t, err)
	assert.Equal(t, "9_3_2025", second.SlotDate)
	assert.Equal(t, "9:00 AM", second.SlotTime)

	times, err := f.svc.BookedTimes(ctx, f.doctor.ID, "9_03_2025")
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM"}, times)

	ok, err := f.svc.IsAvailable(ctx, f.doctor.ID, "014_2_2025", "10:30 AM")
	require.NoError(t, err)
	assert.False(t, ok)

	_, total, err := f.svc.List(ctx, Filter{DoctorID: &f.doctor.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func (f *serviceFixture) legacy(slotTime string) LegacyRecord {
	return LegacyRecord{
		ID:        uuid.New(),
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		SlotDate:  "14_02_2025",
		SlotTime:  slotTime,
		Amount:    f.doctor.Fees,
		Date:      1739500000000,
	}
}

func TestService_RestoreMovesForwardOnly(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	rec := f.legacy("10:00 AM")
	created, err := f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Equal(t, "14_2_2025", created.SlotDate)
	assert.Equal(t, int64(1), created.Version)

	ok, err := f.index.IsAvailable(ctx, created.Slot())
	require.NoError(t, err)
	assert.False(t, ok)

	// Same document again changes nothing.
	again, err := f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Version)

	rec.IsCompleted, rec.Payment = true, true
	done, err := f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.True(t, done.Paid)
	assert.Equal(t, int64(2), done.Version)

	rec.IsCompleted, rec.Payment = false, false
	_, err = f.svc.Restore(ctx, rec.Appointment())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.repo.GetAppointmentByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.True(t, stored.Paid)

	var restoredEvents int
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventAppointmentRestored {
			restoredEvents++
		}
	}
	assert.Equal(t, 2, restoredEvents)
}

func TestService_RestoreFollowsSlotRules(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	booked, err := f.svc.Book(ctx, f.patientActor(), f.request("4:00 PM"))
	require.NoError(t, err)

	// An active import cannot take a held slot.
	_, err = f.svc.Restore(ctx, f.legacy("4:00 PM").Appointment())
	assert.ErrorIs(t, err, ErrSlotConflict)

	// A cancelled one can sit next to it and holds nothing.
	rec := f.legacy("4:00 PM")
	rec.Cancelled = true
	cancelled, err := f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Cancelling through a restore frees the slot.
	rec = f.legacy("5:00 PM")
	_, err = f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	rec.Cancelled = true
	_, err = f.svc.Restore(ctx, rec.Appointment())
	require.NoError(t, err)
	ok, err := f.svc.IsAvailable(ctx, f.doctor.ID, "14_2_2025", "5:00 PM")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.index.IsAvailable(ctx, booked.Slot())
	require.NoError(t, err)
	assert.False(t, ok)

	rec = f.legacy("6:00 PM")
	rec.SlotDate = "31_4_2025"
	_, err = f.svc.Restore(ctx, rec.Appointment())
	assert.ErrorIs(t, err, ErrInvalidSlot)

	rec = f.legacy("6:00 PM")
	rec.DoctorID = uuid.New()
	_, err = f.svc.Restore(ctx, rec.Appointment())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestMemoryRepository_SaveRefusesGoingBack(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := scheduled()
	a.Status = StatusCompleted
	_, err := repo.SaveAppointment(ctx, a)
	require.NoError(t, err)

	back := a
	back.Status = StatusScheduled
	back.Version = 2
	_, err = repo.SaveAppointment(ctx, back)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stale := a
	stale.Paid = true
	_, err = repo.SaveAppointment(ctx, stale)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.False(t, stored.Paid)
}

func TestService_People(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patientActor(), f.request("5:00 PM"))
	require.NoError(t, err)

	doctors, patients, err := f.svc.People(ctx, []Appointment{*appt, *appt})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", doctors[f.doctor.ID].Name)
	assert.Equal(t, "Asha", patients[f.patient.ID].Name)
}
