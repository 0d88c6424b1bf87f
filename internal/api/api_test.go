package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/auth"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/notify"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/payment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/views"
)

const webhookSecret = "whsec_test"

type stubPayments struct{}

func (stubPayments) CreateSession(_ context.Context, a appointment.Appointment, _ appointment.Patient) (string, error) {
	return "https://pay.example.com/" + a.ID.String(), nil
}

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return nil
}

type testServer struct {
	handler  http.Handler
	repo     *appointment.MemoryRepository
	mail     *outbox
	sessions *auth.Issuer
	doctor   appointment.Doctor
	patient  appointment.Patient
	tokens   map[appointment.Role]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	repo := appointment.NewMemoryRepository()
	doctor := appointment.Doctor{ID: uuid.New(), Name: "Dr. Rao", Email: "rao@example.com", Fees: 500, Available: true}
	patient := appointment.Patient{ID: uuid.New(), Name: "Asha", Email: "asha@example.com"}
	repo.PutDoctor(doctor)
	repo.PutPatient(patient)

	svc := appointment.NewService(repo, appointment.NewLocalLocker(), availability.NewMemoryIndex(), stubPayments{}, logger)
	mail := &outbox{}
	accounts := account.NewService(account.NewMemoryStore(), account.NewTokenIssuer("secret", time.Hour), mail, "http://localhost:5173/reset-password", logger).
		WithHashCost(bcrypt.MinCost)
	sessions := auth.NewIssuer("secret", time.Hour)

	_, err := accounts.Register(ctx, patient.ID, appointment.RolePatient, patient.Name, patient.Email, "patient-pass")
	require.NoError(t, err)
	_, err = accounts.Register(ctx, doctor.ID, appointment.RoleDoctor, doctor.Name, doctor.Email, "doctor-pass")
	require.NoError(t, err)

	ts := &testServer{
		repo:     repo,
		mail:     mail,
		sessions: sessions,
		doctor:   doctor,
		patient:  patient,
		tokens:   map[appointment.Role]string{},
	}
	for role, id := range map[appointment.Role]uuid.UUID{
		appointment.RolePatient: patient.ID,
		appointment.RoleDoctor:  doctor.ID,
		appointment.RoleAdmin:   uuid.New(),
	} {
		tok, err := sessions.Issue(appointment.Actor{Role: role, ID: id})
		require.NoError(t, err)
		ts.tokens[role] = tok
	}

	extractor := report.NewExtractor("$", time.UTC)
	ts.handler = NewRouter(RouterConfig{
		Service:  svc,
		Views:    views.New(svc, extractor, 4).WithFeedback(feedback.NewService(feedback.NewMemoryStore(), logger)),
		Accounts: accounts,
		Sessions: sessions,
		Webhooks: payment.NewWebhookVerifier(webhookSecret),
		Logger:   logger,
		Env:      "test",
		Version:  "v0",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, role appointment.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[role])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) book(t *testing.T, slotTime string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/patient/appointments", appointment.RolePatient, BookAppointmentRequest{
		DoctorID: ts.doctor.ID.String(),
		SlotDate: "14_2_2025",
		SlotTime: slotTime,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "asha@example.com", Password: "patient-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "patient", resp.Role)

	actor, err := ts.sessions.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, ts.patient.ID, actor.ID)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "asha@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/patient/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/appointments", appointment.RolePatient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Error)
}

func TestBookingLifecycle(t *testing.T) {
	ts := newTestServer(t)

	appt := ts.book(t, "10:30 AM")
	assert.Equal(t, "scheduled", appt.Status)
	assert.Equal(t, int64(500), appt.Amount)

	// Same slot again conflicts.
	rec := ts.do(t, http.MethodPost, "/api/patient/appointments", appointment.RolePatient, BookAppointmentRequest{
		DoctorID: ts.doctor.ID.String(), SlotDate: "14_2_2025", SlotTime: "10:30 AM",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Slot not available", decodeError(t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/api/doctors/"+ts.doctor.ID.String()+"/slots?date=14_2_2025", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots BookedSlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Equal(t, []string{"10:30 AM"}, slots.Times)

	rec = ts.do(t, http.MethodGet, "/api/patient/appointments?page=1", appointment.RolePatient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page AppointmentPageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 4, page.PageSize)
	assert.Equal(t, "Dr. Rao", page.Items[0].DoctorName)
	assert.Equal(t, "14 Feb 2025", page.Items[0].Date)

	rec = ts.do(t, http.MethodPost, "/api/doctor/appointments/"+appt.ID.String()+"/complete", appointment.RoleDoctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var done AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, "completed", done.Status)

	rec = ts.do(t, http.MethodPost, "/api/patient/appointments/"+appt.ID.String()+"/cancel", appointment.RolePatient, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
}

func TestBadInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/patient/appointments?page=zero", appointment.RolePatient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/patient/appointments/not-a-uuid/cancel", appointment.RolePatient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/patient/appointments", appointment.RolePatient, BookAppointmentRequest{
		DoctorID: ts.doctor.ID.String(), SlotDate: "14-2-2025", SlotTime: "9:00 AM",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_slot", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/api/doctor/appointments/"+uuid.NewString()+"/complete", appointment.RoleDoctor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentFlow(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "11:00 AM")

	rec := ts.do(t, http.MethodPost, "/api/patient/appointments/"+appt.ID.String()+"/pay", appointment.RolePatient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session PaymentSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "https://pay.example.com/"+appt.ID.String(), session.SessionURL)

	body := fmt.Sprintf(`{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"id":"plink_1","reference_id":%q}},"payment":{"entity":{"id":"pay_1"}}}}`, appt.ID)
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", sig)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, send("bogus").Code)

	sig := hex.EncodeToString(mac.Sum(nil))
	rec = send(sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paid"`)

	// Redelivery is harmless.
	assert.Equal(t, http.StatusOK, send(sig).Code)

	stored, err := ts.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid)

	rec = ts.do(t, http.MethodPost, "/api/patient/appointments/"+appt.ID.String()+"/pay", appointment.RolePatient, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReports(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "9:00 AM")
	ts.book(t, "9:30 AM")

	rec := ts.do(t, http.MethodGet, "/api/admin/reports?from=2025-02-01&to=2025-02-28", appointment.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Len(t, rep.Rows, 2)
	assert.Contains(t, rep.Columns, "Doctor")
	assert.Equal(t, "Dr. Rao", rep.Rows[0].DoctorName)

	rec = ts.do(t, http.MethodGet, "/api/doctor/reports?from=2025-02-01&to=2025-02-28&format=xlsx", appointment.RoleDoctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Appointments_Report_2025-02-01_to_2025-02-28.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.NotZero(t, rec.Body.Len())

	rec = ts.do(t, http.MethodGet, "/api/doctor/reports?from=2025-02-01&to=2025-02-28&format=pdf", appointment.RoleDoctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = ts.do(t, http.MethodGet, "/api/doctor/reports?from=2025-03-01&to=2025-03-31", appointment.RoleDoctor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "empty_range", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/api/doctor/reports?from=2025-02-01&to=2025-02-28&format=csv", appointment.RoleDoctor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryPDF(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "12:00 PM")

	rec := ts.do(t, http.MethodGet, "/api/patient/appointments/"+appt.ID.String()+"/summary.pdf", appointment.RolePatient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Appointment_"+appt.ID.String()+".pdf")
}

func TestPasswordReset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User does not exist", decodeError(t, rec).Message)

	rec = ts.do(t, http.MethodPost, "/api/auth/forgot-password", "", ForgotPasswordRequest{Email: "asha@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.mail.msgs, 1)

	body := ts.mail.msgs[0].Body
	path := body[strings.Index(body, "/reset-password/"):]

	rec = ts.do(t, http.MethodPost, "/api/auth"+path, "", ResetPasswordRequest{Password: "brand-new-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "asha@example.com", Password: "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth"+path, "", ResetPasswordRequest{Password: "another-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_token", decodeError(t, rec).Error)
}

func TestWriteServiceError_HidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	writeServiceError(rec, req, zerolog.Nop(), errors.New("pq: connection refused to 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Equal(t, "Internal server error", decodeError(t, rec).Message)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFeedback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/patient/feedback", appointment.RolePatient, FeedbackRequest{Text: "Quick and kind"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/patient/feedback", appointment.RolePatient, FeedbackRequest{Text: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_feedback", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/api/doctor/feedback", appointment.RoleDoctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page FeedbackPageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Quick and kind", page.Items[0].Text)

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -1).Format(report.BoundLayout)
	to := now.AddDate(0, 0, 1).Format(report.BoundLayout)
	rec = ts.do(t, http.MethodGet, "/api/admin/feedback/report?format=xlsx&from="+from+"&to="+to, appointment.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Feedback_Report_"+from+"_to_"+to+".xlsx")

	rec = ts.do(t, http.MethodGet, "/api/admin/feedback/report?format=pdf&from="+from+"&to="+to, appointment.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
