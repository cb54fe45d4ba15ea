// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the Idempotency-Key header check for publish commands.
// It validates the key with the same rules as the idempotency ledger, stashes
// it in the Gin context, and asks a lookup whether the (user, key) pair
// already has a saved response. Known replays are marked so the rate limiter
// does not charge them.
//
// The middleware never serves the saved response itself; the publish handler
// goes through the ledger, which is the only source of truth.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/idempotency"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
// Clients may send the key as a form field instead; the header wins.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: a saved response exists
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a completed response already exists for this
// request's (user, key) pair.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length in characters. Values <= 0 use
	// idempotency.DefaultKeyMaxLen.
	MaxLen int
}

// IdempotencyLookup reports whether a completed response exists for
// (userID, key). Errors are ignored by the middleware; the handler will hit
// the ledger anyway.
type IdempotencyLookup func(ctx context.Context, userID, key string) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present.
//
// Behavior:
//   - header absent: no-op
//   - header invalid: 400 {"code":"bad_idempotency_key"}
//   - lookup hit for the authenticated user: replay and rate-bypass flags set
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = idempotency.DefaultKeyMaxLen
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderIdempotencyKey)
		if raw == "" {
			c.Next()
			return
		}
		key, err := idempotency.ParseKey(raw, maxLen)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    err.Error(),
			})
			return
		}
		c.Set(ctxKeyIdemKey, key.String())

		if uid := UserID(c); lookup != nil && uid != "" {
			if exists, _ := lookup(c.Request.Context(), uid, key.String()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
