// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, the durable store, idempotency, the delivery workers, the mail
// transport, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-newsletter-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SentryConfig defines error reporting settings. An empty DSN disables Sentry.
type SentryConfig struct {
	DSN         string // SENTRY_DSN
	Environment string // SENTRY_ENVIRONMENT, else APP_ENV
}

// DatabaseConfig selects and tunes the durable store.
type DatabaseConfig struct {
	Driver       string // sqlite|postgres
	Path         string // SQLite file path
	URL          string // Postgres DSN
	MaxOpenConns int
}

// IdempotencyConfig tunes the idempotency ledger.
type IdempotencyConfig struct {
	KeyMaxLen  int           // maximum accepted key length in runes
	ReplayWait time.Duration // how long a losing duplicate waits for the saved response
}

// DeliveryConfig tunes the asynchronous delivery workers.
type DeliveryConfig struct {
	WorkerEnabled bool
	Concurrency   int
	PollInterval  time.Duration // sleep after the queue was found empty
	ErrorBackoff  time.Duration // sleep after an unexpected storage error
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	LeaseTTL      time.Duration // claim lifetime for the lease strategy (SQLite)
	SendRPS       float64       // 0 disables throttling
	SendBurst     int
}

// EmailConfig configures the mail transport. An empty BaseURL selects the
// log-only sender.
type EmailConfig struct {
	BaseURL   string
	Sender    string
	AuthToken string
	Timeout   time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	ShutdownTimeout   time.Duration

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	BaseURL        string // public URL used in confirmation links

	DB DatabaseConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	Idempotency IdempotencyConfig
	Delivery    DeliveryConfig
	Email       EmailConfig

	// Observability
	OTEL   OTELConfig
	Sentry SentryConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		BaseURL:        strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),

		DB: DatabaseConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "newsletter.db"),
			URL:          getenv("DATABASE_URL", ""),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		Idempotency: IdempotencyConfig{
			KeyMaxLen:  getint("IDEMPOTENCY_KEY_MAX_LEN", 50),
			ReplayWait: getdur("IDEMPOTENCY_REPLAY_WAIT", 10*time.Second),
		},

		Delivery: DeliveryConfig{
			WorkerEnabled: getbool("WORKER_ENABLED", true),
			Concurrency:   getint("WORKER_CONCURRENCY", 1),
			PollInterval:  getdur("WORKER_POLL_INTERVAL", 10*time.Second),
			ErrorBackoff:  getdur("WORKER_ERROR_BACKOFF", time.Second),
			MaxAttempts:   getint("DELIVERY_MAX_ATTEMPTS", 5),
			RetryBase:     getdur("DELIVERY_RETRY_BASE", 30*time.Second),
			RetryMax:      getdur("DELIVERY_RETRY_MAX", time.Hour),
			LeaseTTL:      getdur("DELIVERY_LEASE_TTL", 2*time.Minute),
			SendRPS:       getfloat("MAIL_SEND_RPS", 0),
			SendBurst:     getint("MAIL_SEND_BURST", 1),
		},

		Email: EmailConfig{
			BaseURL:   strings.TrimRight(getenv("EMAIL_BASE_URL", ""), "/"),
			Sender:    getenv("EMAIL_SENDER", "newsletter@example.com"),
			AuthToken: getenv("EMAIL_AUTH_TOKEN", ""),
			Timeout:   getdur("EMAIL_TIMEOUT", 10*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-newsletter-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Sentry: SentryConfig{
			DSN:         getenv("SENTRY_DSN", ""),
			Environment: sysutil.FirstNonEmpty(os.Getenv("SENTRY_ENVIRONMENT"), os.Getenv("APP_ENV"), "development"),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DB.MaxOpenConns < 1 {
		return cfg, errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Idempotency.KeyMaxLen < 1 {
		return cfg, errors.New("IDEMPOTENCY_KEY_MAX_LEN must be >= 1")
	}
	if cfg.Idempotency.ReplayWait <= 0 {
		return cfg, errors.New("IDEMPOTENCY_REPLAY_WAIT must be > 0")
	}
	if cfg.Delivery.Concurrency < 1 {
		return cfg, errors.New("WORKER_CONCURRENCY must be >= 1")
	}
	if cfg.Delivery.PollInterval <= 0 || cfg.Delivery.ErrorBackoff <= 0 {
		return cfg, errors.New("WORKER_POLL_INTERVAL and WORKER_ERROR_BACKOFF must be > 0")
	}
	if cfg.Delivery.MaxAttempts < 1 {
		return cfg, errors.New("DELIVERY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Delivery.RetryBase < 0 || cfg.Delivery.RetryMax < cfg.Delivery.RetryBase {
		return cfg, errors.New("DELIVERY_RETRY_BASE must be >= 0 and <= DELIVERY_RETRY_MAX")
	}
	if cfg.Delivery.LeaseTTL <= 0 {
		return cfg, errors.New("DELIVERY_LEASE_TTL must be > 0")
	}
	if cfg.Delivery.SendRPS < 0 {
		return cfg, errors.New("MAIL_SEND_RPS must be >= 0")
	}
	if cfg.Delivery.SendBurst < 1 {
		return cfg, errors.New("MAIL_SEND_BURST must be >= 1")
	}
	if cfg.Email.Timeout <= 0 {
		return cfg, errors.New("EMAIL_TIMEOUT must be > 0")
	}
	// A claimed task is settled within twice the send timeout; a shorter
	// lease lets a second worker reclaim it mid-send.
	if cfg.Delivery.LeaseTTL <= 2*cfg.Email.Timeout {
		return cfg, errors.New("DELIVERY_LEASE_TTL must exceed twice EMAIL_TIMEOUT")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
