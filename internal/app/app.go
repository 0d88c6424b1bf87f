// Package app assembles the service graph from configuration. Postgres and
// Redis are optional: without them the records, accounts, slot index and
// appointment locks live in process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/account"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/api"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/auth"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/availability"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/db"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/notify"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/payment"
	redisclient "github.com/hackgods/clinic-appointment-lifecycle/internal/redis"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/seed"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/views"
)

type App struct {
	Config config.Config
	Log    zerolog.Logger

	Pg    *pgxpool.Pool
	Redis *redis.Client

	Directory seed.Directory
	Service   *appointment.Service
	Accounts  *account.Service
	Sessions  *auth.Issuer
	Webhooks  *payment.WebhookVerifier
	Views     *views.Views
}

// New connects the configured backends and wires the services on top.
// Callers must Close the returned App.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		repo      appointment.Repository
		store     account.Store
		feedbacks feedback.Store
	)
	if cfg.PostgresDSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.Pg = pool
		if err := db.EnsureSchema(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		pg := appointment.NewPgRepository(pool)
		repo, a.Directory = pg, pg
		store = account.NewPgStore(pool)
		feedbacks = feedback.NewPgStore(pool)
		logger.Info().Msg("connected to Postgres")
	} else {
		mem := appointment.NewMemoryRepository()
		repo, a.Directory = mem, mem
		store = account.NewMemoryStore()
		feedbacks = feedback.NewMemoryStore()
		logger.Warn().Msg("POSTGRES_DSN not set, records are kept in memory")
	}

	var (
		index  availability.Index
		locker appointment.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		index = redisclient.NewSlotIndex(rdb)
		locker = redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info().Msg("connected to Redis")
	} else {
		index = availability.NewMemoryIndex()
		locker = appointment.NewLocalLocker()
	}

	var payments appointment.PaymentSessionCreator
	if cfg.PaymentsEnabled() {
		payments = payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.PaymentCallbackURL)
		if cfg.RazorpayWebhookSecret != "" {
			a.Webhooks = payment.NewWebhookVerifier(cfg.RazorpayWebhookSecret)
		}
	}

	var mailer notify.Mailer = notify.LogMailer{Log: logger}
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	a.Service = appointment.NewService(repo, locker, index, payments, logger)
	a.Accounts = account.NewService(store, account.NewTokenIssuer(cfg.JWTSecret, cfg.ResetTokenTTL), mailer, cfg.ResetURLBase, logger)
	a.Sessions = auth.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	a.Views = views.New(a.Service, report.NewExtractor(cfg.Currency, loc), cfg.PageSize).
		WithFeedback(feedback.NewService(feedbacks, logger))

	return a, nil
}

// Router returns the HTTP handler serving the app.
func (a *App) Router(version string) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Service:  a.Service,
		Views:    a.Views,
		Accounts: a.Accounts,
		Sessions: a.Sessions,
		Webhooks: a.Webhooks,
		Logger:   a.Log,
		PgPool:   a.Pg,
		Redis:    a.Redis,
		Env:      a.Config.Env,
		Version:  version,
	})
}

// Reconcile brings the slot index in line with stored appointments.
func (a *App) Reconcile(ctx context.Context) error {
	start := time.Now()
	res, err := a.Service.ReconcileAvailability(ctx)
	if err != nil {
		return err
	}
	a.Log.Info().
		Int("held_slots", res.Held).
		Int("restored", res.Restored).
		Int("released", res.Released).
		Int("conflicts", res.Conflicts).
		Int("skipped", res.Skipped).
		Dur("took", time.Since(start)).
		Msg("availability index reconciled")
	return nil
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error().Err(err).Msg("error closing redis")
		}
	}
	if a.Pg != nil {
		a.Pg.Close()
	}
}
