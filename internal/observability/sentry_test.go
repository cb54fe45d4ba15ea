package observability

import (
	"testing"

	"github.com/tbourn/go-newsletter-backend/internal/config"
)

func TestSetupSentry_EmptyDSNIsNoop(t *testing.T) {
	flush, err := SetupSentry(config.SentryConfig{}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flush == nil {
		t.Fatal("flush must not be nil")
	}
	flush()
}

func TestSetupSentry_BadDSN(t *testing.T) {
	flush, err := SetupSentry(config.SentryConfig{DSN: "not a dsn"}, "v0.0.0")
	if err == nil {
		t.Fatal("expected error for malformed DSN")
	}
	if flush != nil {
		t.Fatal("flush must be nil on error")
	}
}

func TestSetupSentry_ValidDSN(t *testing.T) {
	flush, err := SetupSentry(config.SentryConfig{
		DSN:         "https://public@o0.ingest.sentry.io/1",
		Environment: "test",
	}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flush()
}
