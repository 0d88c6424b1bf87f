package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/views"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string    `json:"token"`
	Role  string    `json:"role"`
	ID    uuid.UUID `json:"id"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id,omitempty"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	SlotDate    string     `json:"slot_date"`
	SlotTime    string     `json:"slot_time"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Paid        bool       `json:"paid"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		SlotDate:    a.SlotDate,
		SlotTime:    a.SlotTime,
		Amount:      a.Amount,
		Status:      string(a.Status),
		Paid:        a.Paid,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		CancelledAt: a.CancelledAt,
		CompletedAt: a.CompletedAt,
		PaidAt:      a.PaidAt,
	}
}

type AppointmentListItem struct {
	AppointmentResponse
	DoctorName  string `json:"doctor_name"`
	Speciality  string `json:"speciality,omitempty"`
	PatientName string `json:"patient_name"`
	Age         string `json:"age"`
	Date        string `json:"date"`
	StatusLabel string `json:"status_label"`
}

type AppointmentPageResponse struct {
	Items      []AppointmentListItem `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"total_pages"`
}

func toPageResponse(p views.Page[views.Item]) AppointmentPageResponse {
	items := make([]AppointmentListItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, AppointmentListItem{
			AppointmentResponse: toAppointmentResponse(it.Appointment),
			DoctorName:          it.DoctorName,
			Speciality:          it.Speciality,
			PatientName:         it.PatientName,
			Age:                 it.Age,
			Date:                it.Date,
			StatusLabel:         it.StatusLabel,
		})
	}
	return AppointmentPageResponse{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

type PaymentSessionResponse struct {
	SessionURL string `json:"session_url"`
}

type BookedSlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Times    []string  `json:"times"`
}

type ReportRow struct {
	Index         int       `json:"index"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientName   string    `json:"patient_name"`
	Age           string    `json:"age"`
	DateTime      string    `json:"date_time"`
	DoctorName    string    `json:"doctor_name,omitempty"`
	Fees          string    `json:"fees"`
	Status        string    `json:"status"`
}

type ReportResponse struct {
	From    string      `json:"from"`
	To      string      `json:"to"`
	Columns []string    `json:"columns"`
	Rows    []ReportRow `json:"rows"`
}

func toReportResponse(rep views.Report) ReportResponse {
	rows := make([]ReportRow, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		row := ReportRow{
			Index:         r.Index,
			AppointmentID: r.AppointmentID,
			PatientName:   r.PatientName,
			Age:           r.Age,
			DateTime:      r.DateTime,
			Fees:          r.Fees,
			Status:        r.Status,
		}
		if rep.WithDoctor {
			row.DoctorName = r.DoctorName
		}
		rows = append(rows, row)
	}
	return ReportResponse{From: rep.From, To: rep.To, Columns: report.Columns(rep.WithDoctor), Rows: rows}
}

type WebhookResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type FeedbackRequest struct {
	Text string `json:"text"`
}

type FeedbackResponse struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func toFeedbackResponses(entries []feedback.Entry) []FeedbackResponse {
	out := make([]FeedbackResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, FeedbackResponse{ID: e.ID, Text: e.Text, CreatedAt: e.CreatedAt})
	}
	return out
}

type FeedbackPageResponse struct {
	Items      []FeedbackResponse `json:"items"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
}

type FeedbackReportResponse struct {
	From    string             `json:"from"`
	To      string             `json:"to"`
	Entries []FeedbackResponse `json:"entries"`
}
