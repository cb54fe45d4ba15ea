// Command newsletter runs the newsletter API, the delivery workers, and
// schema migrations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/delivery"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "newsletter",
		Short:         "Newsletter API and delivery workers",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state every subcommand starts from.
type app struct {
	cfg     config.Config
	db      *gorm.DB
	cleanup []func()
}

// bootstrap loads .env and config, sets up logging, tracing, and error
// reporting, and opens the migrated database.
func bootstrap(ctx context.Context, component string) (*app, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	log.Logger = log.With().Str("component", component).Str("version", Version).Logger()

	a := &app{cfg: cfg}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.cleanup = append(a.cleanup, func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	})

	flush, err := observability.SetupSentry(cfg.Sentry, Version)
	if err != nil {
		a.close()
		return nil, err
	}
	a.cleanup = append(a.cleanup, flush)

	db, err := repo.Open(cfg.DB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.cleanup = append(a.cleanup, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.db = db

	log.Info().Str("db_driver", db.Name()).Msg("bootstrap complete")
	return a, nil
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func (a *app) sender() email.Sender {
	if a.cfg.Email.BaseURL == "" {
		log.Warn().Msg("EMAIL_BASE_URL not set, emails are only logged")
		return email.LogSender{}
	}
	return email.NewClient(a.cfg.Email.BaseURL, a.cfg.Email.Sender, a.cfg.Email.AuthToken, a.cfg.Email.Timeout)
}

func (a *app) worker(sender email.Sender) *delivery.Worker {
	d := a.cfg.Delivery
	return delivery.NewWorker(delivery.NewQueue(a.db, d.LeaseTTL), sender, delivery.Options{
		PollInterval: d.PollInterval,
		ErrorBackoff: d.ErrorBackoff,
		SendTimeout:  a.cfg.Email.Timeout,
		Retry: delivery.RetryPolicy{
			MaxAttempts: d.MaxAttempts,
			Base:        d.RetryBase,
			Max:         d.RetryMax,
			Jitter:      delivery.DefaultRetryPolicy.Jitter,
		},
		SendRPS:   d.SendRPS,
		SendBurst: d.SendBurst,
	})
}
