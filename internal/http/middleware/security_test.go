package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveWith(opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func withRequestID(expose string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-1")
		if expose != "" {
			c.Header("Access-Control-Expose-Headers", expose)
		}
		c.Next()
	}
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveWith(SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))

	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := h.Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	for _, name := range []string{
		"Permissions-Policy", "X-Permitted-Cross-Domain-Policies",
		"Cache-Control", "Pragma", "Expires",
		"Strict-Transport-Security", "Access-Control-Expose-Headers",
	} {
		if got := h.Get(name); got != "" {
			t.Errorf("unexpected %s = %q", name, got)
		}
	}
}

func TestSecurityHeaders_ExposeHeaders(t *testing.T) {
	cases := []struct {
		name   string
		pre    gin.HandlerFunc
		expose []string
		want   string
	}{
		{"request id only", withRequestID(""), nil, "X-Request-ID"},
		{"appends to existing", withRequestID("Foo"), nil, "Foo, X-Request-ID"},
		{"no duplicate", withRequestID("X-Request-ID, Foo"), nil, "X-Request-ID, Foo"},
		{"extra names", withRequestID(""), []string{"Location", "Idempotency-Replayed"}, "X-Request-ID, Location, Idempotency-Replayed"},
		{"extra without request id", nil, []string{"ETag"}, "ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveWith(SecurityOptions{Expose: tc.expose}, tc.pre, httptest.NewRequest(http.MethodGet, "/ok", nil))
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_PolicyNoStoreHSTS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveWith(SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, req)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if got, want := h.Get("Strict-Transport-Security"), "max-age=86400; includeSubDomains; preload"; got != want {
		t.Fatalf("HSTS = %q, want %q", got, want)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	plain := serveWith(SecurityOptions{EnableHSTS: true}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if got := plain.Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS on plain HTTP: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	proxied := serveWith(SecurityOptions{EnableHSTS: true}, nil, req)
	if got, want := proxied.Get("Strict-Transport-Security"), "max-age=15552000; includeSubDomains; preload"; got != want {
		t.Fatalf("default HSTS = %q, want %q", got, want)
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain HTTP should not be https")
	}
	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}
	if !isHTTPS(direct) {
		t.Fatalf("TLS request should be https")
	}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(proxied) {
		t.Fatalf("X-Forwarded-Proto=HTTPS should be https")
	}
}

func Test_exposeHeader(t *testing.T) {
	h := http.Header{}
	exposeHeader(h, "X-Request-ID")
	exposeHeader(h, "Idempotency-Replayed")
	exposeHeader(h, "X-Request-ID")
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Idempotency-Replayed" {
		t.Fatalf("expose header = %q", got)
	}
}
