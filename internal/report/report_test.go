package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
)

func fixedExtractor() *Extractor {
	e := NewExtractor("$", time.UTC)
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func record(slotDate string, status appointment.Status, amount int64) appointment.Appointment {
	return appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		SlotDate:  slotDate,
		SlotTime:  "10:30 AM",
		Amount:    amount,
		Status:    status,
	}
}

func TestExtract_MonthIsOneBased(t *testing.T) {
	before := record("13_2_2025", appointment.StatusScheduled, 100)
	rec := record("14_2_2025", appointment.StatusScheduled, 500)
	after := record("15_2_2025", appointment.StatusScheduled, 900)
	after.SlotTime = "12:00 AM"

	rows, err := fixedExtractor().Extract([]appointment.Appointment{before, rec, after}, nil, "2025-02-14", "2025-02-14")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rec.ID, rows[0].AppointmentID)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "14 Feb 2025, 10:30 AM", rows[0].DateTime)
	assert.Equal(t, "$500", rows[0].Fees)

	// A March range must not pick up a February slot.
	_, err = fixedExtractor().Extract([]appointment.Appointment{rec}, nil, "2025-03-14", "2025-03-14")
	var empty *EmptyRangeError
	assert.True(t, errors.As(err, &empty))
}

func TestExtract_RowsAndDirectory(t *testing.T) {
	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	a := record("10_2_2025", appointment.StatusCompleted, 300)
	b := record("1_1_2025", appointment.StatusScheduled, 200)
	c := record("20_2_2025", appointment.StatusCancelled, 400)
	c.Paid = true

	dir := MapDirectory{
		Doctors:  map[uuid.UUID]appointment.Doctor{a.DoctorID: {ID: a.DoctorID, Name: "Dr. Mehta"}},
		Patients: map[uuid.UUID]appointment.Patient{a.PatientID: {ID: a.PatientID, Name: "Ravi", DOB: &dob}},
	}

	rows, err := fixedExtractor().Extract([]appointment.Appointment{a, b, c}, dir, "2025-02-01", "2025-02-28")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{
		Index:         1,
		AppointmentID: a.ID,
		PatientName:   "Ravi",
		Age:           "34",
		DateTime:      "10 Feb 2025, 10:30 AM",
		DoctorName:    "Dr. Mehta",
		Fees:          "$300",
		Status:        "Completed",
	}, rows[0])

	assert.Equal(t, 2, rows[1].Index)
	assert.Equal(t, c.ID, rows[1].AppointmentID)
	assert.Equal(t, "N/A", rows[1].PatientName)
	assert.Equal(t, "N/A", rows[1].Age)
	assert.Equal(t, "N/A", rows[1].DoctorName)
	assert.Equal(t, "Cancelled", rows[1].Status)
}

func TestExtract_InclusiveBoundsAndOrder(t *testing.T) {
	recs := []appointment.Appointment{
		record("28_2_2025", appointment.StatusScheduled, 1),
		record("1_2_2025", appointment.StatusScheduled, 2),
		record("31_1_2025", appointment.StatusScheduled, 3),
		record("1_3_2025", appointment.StatusScheduled, 4),
		record("bad", appointment.StatusScheduled, 5),
	}

	rows, err := fixedExtractor().Extract(recs, nil, "2025-02-01", "2025-02-28")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "$1", rows[0].Fees)
	assert.Equal(t, "$2", rows[1].Fees)
}

func TestExtract_EmptyRange(t *testing.T) {
	rec := record("14_2_2025", appointment.StatusScheduled, 500)
	cases := map[string]struct {
		records  []appointment.Appointment
		from, to string
	}{
		"no records":    {nil, "2025-02-01", "2025-02-28"},
		"missing from":  {[]appointment.Appointment{rec}, "", "2025-02-28"},
		"missing to":    {[]appointment.Appointment{rec}, "2025-02-01", ""},
		"bad bound":     {[]appointment.Appointment{rec}, "14/02/2025", "2025-02-28"},
		"inverted":      {[]appointment.Appointment{rec}, "2025-02-28", "2025-02-01"},
		"outside range": {[]appointment.Appointment{rec}, "2024-01-01", "2024-12-31"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rows, err := fixedExtractor().Extract(tc.records, nil, tc.from, tc.to)
			assert.Nil(t, rows)
			var empty *EmptyRangeError
			require.True(t, errors.As(err, &empty), "got %v", err)
			assert.Equal(t, tc.from, empty.From)
		})
	}
}

func TestExtract_OverflowDateRollsOver(t *testing.T) {
	// 31 Feb normalises to 3 Mar.
	rec := record("31_2_2025", appointment.StatusScheduled, 10)
	rows, err := fixedExtractor().Extract([]appointment.Appointment{rec}, nil, "2025-03-03", "2025-03-03")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "31 Feb 2025, 10:30 AM", rows[0].DateTime)
}

func TestColumnsMatchValues(t *testing.T) {
	r := Row{Index: 7, PatientName: "p", Age: "1", DateTime: "d", DoctorName: "doc", Fees: "$1", Status: "Scheduled"}
	assert.Len(t, r.Values(true), len(Columns(true)))
	assert.Len(t, r.Values(false), len(Columns(false)))
	assert.Equal(t, "7", r.Values(false)[0])
	assert.NotContains(t, r.Values(false), "doc")
}

func TestAge(t *testing.T) {
	now := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	dob := time.Date(2000, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "24", Age(&dob, now))
	assert.Equal(t, "25", Age(&dob, now.AddDate(0, 0, 1)))
	assert.Equal(t, "N/A", Age(nil, now))
	future := now.AddDate(1, 0, 0)
	assert.Equal(t, "N/A", Age(&future, now))
}
