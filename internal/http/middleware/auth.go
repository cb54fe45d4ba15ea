package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the operator identity asserted by the upstream
// authenticator.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// maxUserIDLen matches the width of the user_id column in the idempotency table.
const maxUserIDLen = 64

// RequireUser stores the X-User-ID header under "userID" and rejects
// requests without one with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" || len(uid) > maxUserIDLen {
			c.Header("WWW-Authenticate", `Header realm="operator"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "operator identity required",
			})
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the identity stored by RequireUser, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
