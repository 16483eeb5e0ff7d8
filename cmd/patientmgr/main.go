package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/patientmgr/internal/config"
	"github.com/ehr/patientmgr/internal/domain/care"
	"github.com/ehr/patientmgr/internal/domain/clinical"
	"github.com/ehr/patientmgr/internal/domain/history"
	"github.com/ehr/patientmgr/internal/domain/identity"
	"github.com/ehr/patientmgr/internal/domain/scheduling"
	"github.com/ehr/patientmgr/internal/platform/ai"
	"github.com/ehr/patientmgr/internal/platform/db"
	"github.com/ehr/patientmgr/internal/platform/telemetry"
)

var errSetupFailed = errors.New("database setup failed")

// app is everything a command needs once configuration is loaded and the
// database is reachable.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	health      db.Pinger
	provisioner *db.Provisioner
	svc         *care.Service
	close       func()
}

func (a *app) Close() {
	if a.close != nil {
		a.close()
	}
}

// opener builds an app. provision controls whether the schema is applied
// before the app is returned.
type opener func(ctx context.Context, provision bool) (*app, error)

func main() {
	if err := newRootCmd(openApp).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "patientmgr",
		Short:        "Patient records with AI-assisted treatment planning",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(patientCmd(open))
	rootCmd.AddCommand(appointmentCmd(open))
	rootCmd.AddCommand(treatmentCmd(open))
	rootCmd.AddCommand(historyCmd(open))
	rootCmd.AddCommand(schemaCmd(open))
	rootCmd.AddCommand(serveCmd(open))
	return rootCmd
}

func openApp(ctx context.Context, provision bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(os.Stderr, cfg.Env, cfg.LogLevel)
	metrics := telemetry.New()

	mgr, err := db.Open(ctx, cfg.DatabaseURL(), logger, db.WithMetrics(metrics))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, err
	}
	closeDB := func() {
		if err := mgr.Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("failed to close database connection")
		}
	}

	prov := db.NewProvisioner(mgr, db.DefaultSchema(), logger)
	if provision && !prov.Provision(ctx) {
		closeDB()
		return nil, errSetupFailed
	}

	advisor, err := ai.NewFromConfig(ctx, cfg, logger, metrics)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init AI client: %w", err)
	}

	svc := care.NewService(
		identity.NewPatientRepo(mgr),
		scheduling.NewAppointmentRepo(mgr),
		clinical.NewTreatmentRepo(mgr, logger),
		history.NewRecordRepo(mgr),
		advisor,
		logger,
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		health:      mgr,
		provisioner: prov,
		svc:         svc,
		close:       closeDB,
	}, nil
}

// newLogger writes JSON, or console output in development, at the level
// named by level. Unknown levels fall back to info.
func newLogger(w io.Writer, env, level string) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
