package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tbourn/go-newsletter-backend/internal/config"
)

const sentryFlushTimeout = 2 * time.Second

// SetupSentry initializes the global Sentry hub used by the delivery workers
// to report storage failures. An empty DSN leaves Sentry disabled; the
// returned flush function is then a no-op.
func SetupSentry(cfg config.SentryConfig, release string) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}
