package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/app"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/export"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operator tasks for the clinic appointment service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration, requires Postgres and runs fn against the
// wired app.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	logger := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func seedCmd() *cobra.Command {
	opts := seed.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with fake doctors, patients and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				start := time.Now()
				res, err := seed.New(a.Directory, a.Accounts, a.Service, a.Log).Run(ctx, opts)
				if errors.Is(err, seed.ErrAlreadySeeded) {
					a.Log.Warn().Msg("database already seeded, nothing to do")
					return nil
				}
				if err != nil {
					return err
				}
				a.Log.Info().
					Int("doctors", len(res.Doctors)).
					Int("patients", len(res.Patients)).
					Int("appointments", res.Booked).
					Str("admin", seed.AdminEmail).
					Dur("took", time.Since(start)).
					Msg("seed complete")
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.Doctors, "doctors", opts.Doctors, "Number of doctors")
	cmd.Flags().IntVar(&opts.Patients, "patients", opts.Patients, "Number of patients")
	cmd.Flags().IntVar(&opts.Appointments, "appointments", opts.Appointments, "Booking attempts")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "Days to spread appointments over, starting two weeks ago")
	cmd.Flags().StringVar(&opts.Password, "password", opts.Password, "Password for every seeded account")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed, 0 picks one")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the Redis slot index with stored appointments once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if a.Redis == nil {
					return errors.New("REDIS_ADDR (or REDIS_URL) is required")
				}
				return a.Reconcile(ctx)
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var from, to, format, doctor, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an appointment report for a date range to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			var doctorID *uuid.UUID
			if doctor != "" {
				id, err := uuid.Parse(doctor)
				if err != nil {
					return fmt.Errorf("--doctor: %w", err)
				}
				doctorID = &id
			}

			return withApp(func(ctx context.Context, a *app.App) error {
				admin := appointment.Actor{Role: appointment.RoleAdmin}
				rep, err := a.Views.Admin(admin).Report(ctx, from, to, doctorID)
				if err != nil {
					return err
				}

				var buf bytes.Buffer
				switch f {
				case export.FormatXLSX:
					err = export.WriteXLSX(&buf, rep.Rows, rep.WithDoctor)
				case export.FormatPDF:
					err = export.WritePDF(&buf, rep.Rows, fmt.Sprintf("Appointments %s to %s", from, to), rep.WithDoctor)
				}
				if err != nil {
					return err
				}

				path := out
				if path == "" {
					path = export.ReportFilename(from, to, f)
				}
				if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				a.Log.Info().Str("path", path).Int("rows", len(rep.Rows)).Msg("report written")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or pdf")
	cmd.Flags().StringVar(&doctor, "doctor", "", "Only this doctor's appointments")
	cmd.Flags().StringVar(&out, "out", "", "Output path, defaults to the report file name")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func importCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load appointments exported from the previous store",
		Long: `Reads a JSON array of appointment documents with the cancelled, isCompleted
and payment flags of the previous store. Running it again with newer exports
moves appointments forward; a record never moves back in its lifecycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var records []appointment.LegacyRecord
			if err := json.Unmarshal(raw, &records); err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}

			return withApp(func(ctx context.Context, a *app.App) error {
				var restored, failed int
				for _, rec := range records {
					if _, err := a.Service.Restore(ctx, rec.Appointment()); err != nil {
						failed++
						a.Log.Warn().Err(err).Str("appointment_id", rec.ID.String()).Msg("record not imported")
						continue
					}
					restored++
				}
				a.Log.Info().Int("imported", restored).Int("failed", failed).Msg("import finished")
				if failed > 0 {
					return fmt.Errorf("%d of %d records failed", failed, len(records))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with the exported appointments")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
