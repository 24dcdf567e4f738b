package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/flotilla-games/entitlement-service/internal/auth"
)

// scopeRouter builds a router whose middleware chain injects the given scopes
// (simulating AuthMiddleware) before the handler under test.
func scopeRouter(scopes []string, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if scopes != nil {
			c.Set("scopes", scopes)
		}
		c.Next()
	})
	r.GET("/", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func scopeRequest(r *gin.Engine) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   int
	}{
		{"has scope", []string{"vouchers:redeem"}, http.StatusOK},
		{"missing scope", []string{"access:play"}, http.StatusForbidden},
		{"admin wildcard", []string{"admin"}, http.StatusOK},
		{"voucher admin implies redeem", []string{"vouchers:admin"}, http.StatusOK},
		{"no scopes in context", nil, http.StatusForbidden},
		{"empty scope list", []string{}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := scopeRouter(tt.scopes, RequireScope(auth.ScopeVouchersRedeem))
			if got := scopeRequest(r); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequireAnyScope(t *testing.T) {
	guard := RequireAnyScope(auth.ScopeVouchersIssue, auth.ScopeVouchersRedeem)

	t.Run("one of several held", func(t *testing.T) {
		r := scopeRouter([]string{"vouchers:redeem"}, guard)
		if got := scopeRequest(r); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})

	t.Run("none held", func(t *testing.T) {
		r := scopeRouter([]string{"access:play"}, guard)
		if got := scopeRequest(r); got != http.StatusForbidden {
			t.Errorf("status = %d, want 403", got)
		}
	})
}

func TestRequireAllScopes(t *testing.T) {
	guard := RequireAllScopes(auth.ScopeAccessPlay, auth.ScopeVouchersRedeem)

	t.Run("all held", func(t *testing.T) {
		r := scopeRouter([]string{"access:play", "vouchers:redeem"}, guard)
		if got := scopeRequest(r); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})

	t.Run("one missing", func(t *testing.T) {
		r := scopeRouter([]string{"access:play"}, guard)
		if got := scopeRequest(r); got != http.StatusForbidden {
			t.Errorf("status = %d, want 403", got)
		}
	})
}

func TestRequireSystemCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(authMethod string) *gin.Engine {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if authMethod != "" {
				c.Set("auth_method", authMethod)
			}
			c.Next()
		})
		r.GET("/", RequireSystemCaller(), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}

	t.Run("service key caller passes", func(t *testing.T) {
		if got := scopeRequest(build("service_key")); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})

	t.Run("jwt caller blocked", func(t *testing.T) {
		if got := scopeRequest(build("jwt")); got != http.StatusForbidden {
			t.Errorf("status = %d, want 403", got)
		}
	})

	t.Run("unauthenticated blocked", func(t *testing.T) {
		if got := scopeRequest(build("")); got != http.StatusForbidden {
			t.Errorf("status = %d, want 403", got)
		}
	})
}
