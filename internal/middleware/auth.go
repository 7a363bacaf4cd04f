package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/viksharma04/ludo-stacked-backend/internal/auth"
)

// tokenValidator is satisfied by *auth.Validator; narrowed here so this
// middleware can be exercised in tests without a live JWKS server.
type tokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// RequireAuth verifies the request's bearer token and stores the parsed
// claims under the "claims" context key, the same key ratelimit.RateLimiter
// reads to attribute request quota to a user rather than an IP.
func RequireAuth(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			code := http.StatusUnauthorized
			var verr *auth.VerificationError
			if errors.As(err, &verr) {
				c.AbortWithStatusJSON(code, gin.H{"error": string(verr.Reason)})
				return
			}
			c.AbortWithStatusJSON(code, gin.H{"error": "unauthorized"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
