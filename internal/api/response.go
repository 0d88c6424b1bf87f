package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/auth"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	redisclient "github.com/hackgods/clinic-appointment-lifecycle/internal/redis"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings turns domain errors into stable codes and user-facing text.
// Order matters where errors wrap each other.
var errorMappings = []errorMapping{
	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Not authorized, login again"},
	{appointment.ErrForbidden, http.StatusForbidden, "forbidden", "You are not allowed to perform this action"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found", "Appointment not found"},
	{appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found", "Doctor not found"},
	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found", "Patient not found"},
	{appointment.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot", "Slot date or time is invalid"},
	{appointment.ErrSlotConflict, http.StatusConflict, "slot_not_available", "Slot not available"},
	{appointment.ErrDoctorUnavailable, http.StatusConflict, "doctor_unavailable", "Doctor not available"},
	{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "Appointment can no longer be changed this way"},
	{appointment.ErrPaymentsDisabled, http.StatusServiceUnavailable, "payments_disabled", "Online payment is not available"},
	{redisclient.ErrLockNotAcquired, http.StatusConflict, "appointment_busy", "Appointment is being updated, please retry"},
	{account.ErrUserNotFound, http.StatusBadRequest, "user_not_found", "User does not exist"},
	{account.ErrInvalidToken, http.StatusBadRequest, "invalid_token", "Invalid or expired token"},
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{account.ErrWeakPassword, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters"},
	{account.ErrEmailTaken, http.StatusConflict, "email_taken", "Email already registered"},
	{feedback.ErrEmpty, http.StatusBadRequest, "invalid_feedback", "Feedback text is required"},
	{feedback.ErrTooLong, http.StatusBadRequest, "invalid_feedback", "Feedback text is too long"},
}

// writeServiceError maps err to a response. Unknown errors are logged and
// answered with a fixed message so internals never reach the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var empty *report.EmptyRangeError
	if errors.As(err, &empty) {
		writeError(w, http.StatusNotFound, "empty_range", "No appointments found in the selected date range")
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}

	logger.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
