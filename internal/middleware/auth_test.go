package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/flotilla-games/entitlement-service/internal/auth"
	"github.com/flotilla-games/entitlement-service/internal/config"
)

// newAuthRouter builds a router with AuthMiddleware and a probe handler that
// echoes the identity the middleware placed in the context.
func newAuthRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/probe", func(c *gin.Context) {
		ownerID, _ := OwnerID(c)
		method, _ := c.Get("auth_method")
		kind, _ := c.Get("account_kind")
		c.JSON(http.StatusOK, gin.H{
			"owner_id":     ownerID,
			"auth_method":  method,
			"account_kind": kind,
			"system":       IsSystemCaller(c),
		})
	})
	return r
}

func authRequest(t *testing.T, r *gin.Engine, header string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "Basic dXNlcjpwYXNz")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidJWT(t *testing.T) {
	token, err := auth.GenerateJWT("owner-7", auth.AccountPlayer, auth.GetDefaultScopes(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{`"owner_id":"owner-7"`, `"auth_method":"jwt"`, `"account_kind":"player"`, `"system":false`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}

func TestAuthMiddleware_ExpiredJWT(t *testing.T) {
	token, err := auth.GenerateJWT("owner-7", auth.AccountPlayer, nil, -time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired token", w.Code)
	}
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "Bearer not.a.jwt")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for garbage token", w.Code)
	}
}

func TestAuthMiddleware_ValidServiceKey(t *testing.T) {
	key, hash, err := auth.GenerateServiceKey()
	if err != nil {
		t.Fatalf("GenerateServiceKey() error: %v", err)
	}

	cfg := &config.Config{}
	cfg.Economy.ServiceKeyHash = hash

	r := newAuthRouter(cfg)
	w := authRequest(t, r, "Bearer "+key)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{`"owner_id":"system"`, `"auth_method":"service_key"`, `"system":true`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
}

func TestAuthMiddleware_WrongServiceKey(t *testing.T) {
	_, hash, err := auth.GenerateServiceKey()
	if err != nil {
		t.Fatalf("GenerateServiceKey() error: %v", err)
	}

	cfg := &config.Config{}
	cfg.Economy.ServiceKeyHash = hash

	r := newAuthRouter(cfg)
	w := authRequest(t, r, "Bearer fltsvc_not-the-real-key")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for wrong service key", w.Code)
	}
}

func TestAuthMiddleware_ServiceKeyDisabledByEmptyHash(t *testing.T) {
	key, _, err := auth.GenerateServiceKey()
	if err != nil {
		t.Fatalf("GenerateServiceKey() error: %v", err)
	}

	// No hash configured: even a well-formed key must be rejected.
	r := newAuthRouter(&config.Config{})
	w := authRequest(t, r, "Bearer "+key)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when service keys are disabled", w.Code)
	}
}

func TestAuthMiddleware_JWTWithoutScopesGetsDefaults(t *testing.T) {
	token, err := auth.GenerateJWT("owner-8", auth.AccountPlayer, nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(&config.Config{}))
	r.GET("/probe", func(c *gin.Context) {
		scopes, ok := contextScopes(c)
		if !ok {
			t.Error("scopes missing from context")
		}
		if !auth.HasScope(scopes, auth.ScopeAccessPlay) {
			t.Error("expected default scopes to include access:play")
		}
		c.Status(http.StatusOK)
	})

	w := authRequest(t, r, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
