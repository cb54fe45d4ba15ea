// Package httpapi wires the HTTP transport (Gin) to the newsletter services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/docs"
	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/http/handlers"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/idempotency"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// Deps are the runtime dependencies of the HTTP API.
type Deps struct {
	DB     *gorm.DB
	Sender email.Sender // confirmation emails
}

var (
	corsMethods = []string{"GET", "POST", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	corsExpose = []string{
		"X-Request-ID", "Content-Length", "Location", "ETag", "Retry-After",
		handlers.HeaderReplayed,
	}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. CORS and security headers
//
// Admin routes additionally authenticate the caller, validate the
// Idempotency-Key header and only then apply the rate limiter, so replays of
// a completed publish are not charged.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
		LogHeaders:  true,
	}))
	r.Use(middleware.Recovery())

	// 1 MiB covers any sane issue body.
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ledger := idempotency.NewLedger(deps.DB, idempotency.WithReplayWait(cfg.Idempotency.ReplayWait))
	subs := &services.SubscriptionService{
		DB:       deps.DB,
		Sender:   deps.Sender,
		BaseURL:  cfg.BaseURL,
		BasePath: cfg.APIBasePath,
	}
	newsletters := &services.NewsletterService{
		DB:          deps.DB,
		Ledger:      ledger,
		Subscribers: subs,
		BasePath:    cfg.APIBasePath,
		KeyMaxLen:   cfg.Idempotency.KeyMaxLen,
	}
	h := handlers.New(newsletters, subs)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		public := api.Group("/subscriptions", rl.Handler())
		public.POST("", h.Subscribe)
		public.GET("/confirm", h.ConfirmSubscription)

		admin := api.Group("/admin",
			middleware.RequireUser(),
			middleware.IdempotencyValidator(
				middleware.IdempotencyOptions{MaxLen: cfg.Idempotency.KeyMaxLen},
				ledgerLookup(ledger),
			),
			rl.Handler(),
			middleware.SecurityHeaders(middleware.SecurityOptions{
				NoStore: true,
				Expose:  []string{"Location", "ETag", handlers.HeaderReplayed},
			}),
		)
		admin.POST("/newsletters", h.PublishNewsletter)
		admin.GET("/newsletters", h.ListNewsletters)
		admin.GET("/newsletters/:id", h.GetNewsletter)
	}
}

// ledgerLookup reports completed responses only; in-flight keys still pay
// for a rate-limit token.
func ledgerLookup(l *idempotency.Ledger) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, key string) (bool, error) {
		_, err := l.Lookup(ctx, userID, idempotency.Key(key))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, idempotency.ErrNotFound), errors.Is(err, idempotency.ErrInFlight):
			return false, nil
		default:
			return false, err
		}
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap will cause downstream body
// reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
