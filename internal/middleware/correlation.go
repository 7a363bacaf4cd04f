// Package middleware contains Gin middleware for the application.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID stamps every request with a correlation ID, echoing an
// inbound one back unchanged so a client (or an upstream gateway) can
// thread its own ID through. The ID is attached to the request's
// context.Context, not just the gin key-value store, so every
// logging.Info/Warn/Error/Fatal call made against c.Request.Context()
// downstream of the websocket endpoint and the HTTP handlers picks it
// up automatically.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logging.CorrelationIDKey, correlationID))

		c.Next()
	}
}
