package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serveWithHeaders runs one request through SecurityHeadersMiddleware so the
// response headers can be inspected.
func serveWithHeaders(cfg SecurityHeadersConfig) http.Header {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/api/v1/access/pirates", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/access/pirates", nil)
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestAPISecurityHeadersConfig(t *testing.T) {
	h := serveWithHeaders(APISecurityHeadersConfig())

	want := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           "DENY",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":           "no-referrer",
	}
	for header, value := range want {
		if got := h.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeaders_AlwaysPresent(t *testing.T) {
	// Even a fully zeroed config keeps the non-negotiable API headers.
	h := serveWithHeaders(SecurityHeadersConfig{})

	want := map[string]string{
		"X-Content-Type-Options":            "nosniff",
		"X-Permitted-Cross-Domain-Policies": "none",
		"Cross-Origin-Opener-Policy":        "same-origin",
		"Cross-Origin-Resource-Policy":      "same-origin",
	}
	for header, value := range want {
		if got := h.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeaders_OptionalHeadersOmitted(t *testing.T) {
	h := serveWithHeaders(SecurityHeadersConfig{})

	for _, header := range []string{
		"Strict-Transport-Security",
		"X-Frame-Options",
		"Content-Security-Policy",
		"Referrer-Policy",
	} {
		if got := h.Get(header); got != "" {
			t.Errorf("%s should be absent with a zero config, got %q", header, got)
		}
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	t.Run("without subdomains", func(t *testing.T) {
		h := serveWithHeaders(SecurityHeadersConfig{HSTSMaxAgeSeconds: 86400})
		if got := h.Get("Strict-Transport-Security"); got != "max-age=86400" {
			t.Errorf("HSTS = %q, want max-age=86400", got)
		}
	})

	t.Run("with subdomains", func(t *testing.T) {
		h := serveWithHeaders(SecurityHeadersConfig{HSTSMaxAgeSeconds: 86400, HSTSIncludeSubdomains: true})
		if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains" {
			t.Errorf("HSTS = %q, want max-age=86400; includeSubDomains", got)
		}
	})

	t.Run("zero max-age omits header", func(t *testing.T) {
		h := serveWithHeaders(SecurityHeadersConfig{HSTSIncludeSubdomains: true})
		if got := h.Get("Strict-Transport-Security"); got != "" {
			t.Errorf("HSTS should be absent when max-age is 0, got %q", got)
		}
	})
}

func TestSecurityHeaders_CustomFraming(t *testing.T) {
	h := serveWithHeaders(SecurityHeadersConfig{FrameOptions: "SAMEORIGIN"})
	if got := h.Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", got)
	}
}
