package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/auth"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/payment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/views"
)

type RouterConfig struct {
	Service  *appointment.Service
	Views    *views.Views
	Accounts *account.Service
	Sessions *auth.Issuer
	// Webhooks may be nil when payments are not configured.
	Webhooks *payment.WebhookVerifier
	Logger   zerolog.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{
		svc:      cfg.Service,
		views:    cfg.Views,
		accounts: cfg.Accounts,
		sessions: cfg.Sessions,
		webhooks: cfg.Webhooks,
		log:      cfg.Logger,
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/reset-password/{id}/{token}", h.resetPassword)
		})

		r.Get("/doctors/{id}/slots", h.bookedSlots)
		r.Post("/payments/webhook", h.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Sessions.Middleware(h.fail))

			r.Route("/patient", func(r chi.Router) {
				r.Use(auth.RequireRole(h.fail, appointment.RolePatient))
				r.Post("/appointments", h.patientBook)
				r.Get("/appointments", h.patientList)
				r.Post("/appointments/{id}/cancel", h.patientCancel)
				r.Post("/appointments/{id}/pay", h.patientPay)
				r.Get("/appointments/{id}/summary.pdf", h.patientSummary)
				r.Post("/feedback", h.submitFeedback)
			})

			r.Route("/doctor", func(r chi.Router) {
				r.Use(auth.RequireRole(h.fail, appointment.RoleDoctor))
				r.Get("/appointments", h.doctorList)
				r.Post("/appointments/{id}/cancel", h.doctorCancel)
				r.Post("/appointments/{id}/complete", h.doctorComplete)
				r.Get("/reports", h.doctorReport)
				r.Get("/feedback", h.feedbackList)
				r.Get("/feedback/report", h.feedbackReport)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(h.fail, appointment.RoleAdmin))
				r.Post("/appointments", h.adminBook)
				r.Get("/appointments", h.adminList)
				r.Post("/appointments/{id}/cancel", h.adminCancel)
				r.Post("/appointments/{id}/complete", h.adminComplete)
				r.Get("/reports", h.adminReport)
				r.Get("/feedback", h.feedbackList)
				r.Get("/feedback/report", h.feedbackReport)
			})
		})
	})

	return r
}
