package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates the request identifier between services.
	// The platform gateway stamps one on every call it forwards; redemption
	// retries after a client-observed timeout reuse it, which is what lets
	// support line up a duplicate-redemption report with the original
	// attempt in the logs.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key the identifier is stored under.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with an identifier: the inbound
// X-Request-ID when the caller sent one, a fresh UUID otherwise. The ID is
// stored in the context for the logger and echoed back in the response so
// game clients can quote it in bug reports. Register it before any
// middleware that logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the identifier RequestIDMiddleware stored, or "" when
// the middleware did not run.
func RequestID(c *gin.Context) string {
	id, _ := c.Get(RequestIDKey)
	s, _ := id.(string)
	return s
}
