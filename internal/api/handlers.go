package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/auth"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/export"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/payment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/views"
)

const maxWebhookBody = 1 << 20

type handlers struct {
	svc      *appointment.Service
	views    *views.Views
	accounts *account.Service
	sessions *auth.Issuer
	webhooks *payment.WebhookVerifier
	log      zerolog.Logger
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.log, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func actorOf(r *http.Request) appointment.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

// Auth

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	token, err := h.sessions.Issue(u.Actor())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Role: string(u.Role), ID: u.ID})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.RequestReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset email sent"})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.Reset(r.Context(), id, chi.URLParam(r, "token"), req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}

// Public

func (h *handlers) bookedSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")

	times, err := h.views.BookedTimes(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if times == nil {
		times = []string{}
	}
	writeJSON(w, http.StatusOK, BookedSlotsResponse{DoctorID: doctorID, Date: date, Times: times})
}

// paymentWebhook acknowledges every verified notification with 200 so the
// provider stops retrying, except on internal failures.
func (h *handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		h.fail(w, r, appointment.ErrPaymentsDisabled)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
		return
	}

	conf, err := h.webhooks.Parse(body, r.Header.Get("X-Razorpay-Signature"))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid_signature", "Invalid webhook signature")
		return
	case errors.Is(err, payment.ErrIgnoredEvent):
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "ignored"})
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_webhook", "Webhook payload not understood")
		return
	}

	appt, err := h.svc.ConfirmPayment(r.Context(), conf.AppointmentID)
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound), errors.Is(err, appointment.ErrInvalidTransition):
		h.log.Warn().
			Err(err).
			Str("appointment_id", conf.AppointmentID.String()).
			Str("payment_id", conf.PaymentID).
			Msg("payment received for appointment that cannot accept it")
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "rejected"})
		return
	case err != nil:
		h.fail(w, r, err)
		return
	}

	h.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("payment_id", conf.PaymentID).
		Msg("payment confirmed")
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "paid"})
}

// Patient

func (h *handlers) patientBook(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	appt, err := h.views.Patient(actorOf(r)).Book(r.Context(), doctorID, req.SlotDate, req.SlotTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) patientList(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	p, err := h.views.Patient(actorOf(r)).Page(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p))
}

func (h *handlers) patientCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.views.Patient(actorOf(r)).Cancel)
}

func (h *handlers) patientPay(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	url, err := h.views.Patient(actorOf(r)).Pay(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentSessionResponse{SessionURL: url})
}

func (h *handlers) patientSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	name, data, err := h.views.Patient(actorOf(r)).Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeFile(w, name, export.FormatPDF.ContentType(), data)
}

// Doctor

func (h *handlers) doctorList(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	p, err := h.views.Doctor(actorOf(r)).Page(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p))
}

func (h *handlers) doctorCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.views.Doctor(actorOf(r)).Cancel)
}

func (h *handlers) doctorComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.views.Doctor(actorOf(r)).Complete)
}

func (h *handlers) doctorReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := h.views.Doctor(actorOf(r)).Report(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, rep, "Doctor appointments")
}

// Admin

func (h *handlers) adminBook(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	appt, err := h.svc.Book(r.Context(), actorOf(r), appointment.BookingRequest{
		DoctorID:  doctorID,
		PatientID: patientID,
		SlotDate:  req.SlotDate,
		SlotTime:  req.SlotTime,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) adminList(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	p, err := h.views.Admin(actorOf(r)).Page(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p))
}

func (h *handlers) adminCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.views.Admin(actorOf(r)).Cancel)
}

func (h *handlers) adminComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.views.Admin(actorOf(r)).Complete)
}

func (h *handlers) adminReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var doctorID *uuid.UUID
	if raw := q.Get("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		doctorID = &id
	}

	rep, err := h.views.Admin(actorOf(r)).Report(r.Context(), q.Get("from"), q.Get("to"), doctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, rep, "Filtered Appointments")
}

// Feedback

func (h *handlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.views.Feedback(actorOf(r)).Submit(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, FeedbackResponse{ID: e.ID, Text: e.Text, CreatedAt: e.CreatedAt})
}

func (h *handlers) feedbackList(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	p, err := h.views.Feedback(actorOf(r)).Page(r.Context(), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackPageResponse{
		Items:      toFeedbackResponses(p.Items),
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	})
}

// feedbackReport answers with JSON or, for format=xlsx, a workbook.
func (h *handlers) feedbackReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format != "" && format != "json" && format != string(export.FormatXLSX) {
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be json or xlsx")
		return
	}

	rep, err := h.views.Feedback(actorOf(r)).Report(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, FeedbackReportResponse{From: rep.From, To: rep.To, Entries: toFeedbackResponses(rep.Entries)})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteFeedbackXLSX(&buf, rep.Entries, rep.Location); err != nil {
		h.fail(w, r, err)
		return
	}
	writeFile(w, export.FeedbackFilename(rep.From, rep.To), export.FormatXLSX.ContentType(), buf.Bytes())
}

// Shared

type transitionFunc func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

func (h *handlers) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

// writeReport answers with JSON unless format asks for a file.
func (h *handlers) writeReport(w http.ResponseWriter, r *http.Request, rep views.Report, title string) {
	raw := r.URL.Query().Get("format")
	if raw == "" || raw == "json" {
		writeJSON(w, http.StatusOK, toReportResponse(rep))
		return
	}

	format, err := export.ParseFormat(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be json, xlsx or pdf")
		return
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatXLSX:
		err = export.WriteXLSX(&buf, rep.Rows, rep.WithDoctor)
	case export.FormatPDF:
		err = export.WritePDF(&buf, rep.Rows, fmt.Sprintf("%s %s to %s", title, rep.From, rep.To), rep.WithDoctor)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeFile(w, export.ReportFilename(rep.From, rep.To, format), format.ContentType(), buf.Bytes())
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
