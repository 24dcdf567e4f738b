// Package middleware (scope.go) implements scope-based authorization.
//
// Scopes are carried in the JWT (or implied by the service key) and checked
// at request time against the route's requirement. The entitlement service
// never stores accounts, so there is no per-request role lookup: the token
// is the whole authorization story.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/flotilla-games/entitlement-service/internal/auth"
)

// contextScopes pulls the scope list set by AuthMiddleware out of the gin
// context. A missing or malformed value reads as no scopes at all.
func contextScopes(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get("scopes")
	if !exists {
		return nil, false
	}
	userScopes, ok := scopesVal.([]string)
	if !ok {
		return nil, false
	}
	return userScopes, true
}

// RequireScope checks if the authenticated caller has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyScope checks if the authenticated caller has at least one of the required scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}

		c.Next()
	}
}

// RequireAllScopes checks if the authenticated caller has all of the required scopes
func RequireAllScopes(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := contextScopes(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		if !auth.HasAllScopes(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing one or more required scopes",
			})
			return
		}

		c.Next()
	}
}

// RequireSystemCaller restricts a route to service-key authentication.
// Platform hooks and purchase recording must not be reachable with a player
// token even if its scopes were somehow broadened.
func RequireSystemCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsSystemCaller(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Endpoint restricted to system callers",
			})
			return
		}
		c.Next()
	}
}
