// Package auth verifies bearer tokens issued by the identity provider
// against its published JWKS. It never signs or issues tokens itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/viksharma04/ludo-stacked-backend/internal/logging"
)

// RequiredAudience is the only audience claim value this service accepts.
const RequiredAudience = "authenticated"

// FailureReason is a tagged, stable classification of why a token was
// rejected. Wire-facing code maps these to the AUTH_FAILED/AUTH_EXPIRED
// error codes; it never forwards the underlying jwt-library error text.
type FailureReason string

const (
	FailureMissing            FailureReason = "missing"
	FailureMalformed          FailureReason = "malformed"
	FailureAlgorithmNotAllowed FailureReason = "algorithm_not_allowed"
	FailureExpired            FailureReason = "expired"
	FailureSignatureInvalid   FailureReason = "signature_invalid"
)

// VerificationError pairs a stable FailureReason with the underlying cause.
type VerificationError struct {
	Reason FailureReason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token verification failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token verification failed (%s)", e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func fail(reason FailureReason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

// Claims is the subset of the bearer token's claims the core cares about.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// allowedAlgorithms is the closed set of asymmetric signing algorithms this
// service will ever attempt to verify against the JWKS. HS* and "none" are
// rejected before any key lookup happens — jwt.WithValidMethods enforces
// this at parse time, one layer before ParseWithClaims even calls keyFunc.
var allowedAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Validator verifies tokens against a lazily-fetched, TTL-cached JWKS.
type Validator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
}

// NewValidator builds a Validator that fetches jwksURL lazily and refreshes
// it on the given TTL in the background (the jwx cache owns a goroutine for
// this — the call never blocks a request path on a refresh).
func NewValidator(ctx context.Context, jwksURL, issuer string, ttl time.Duration, regOpts ...jwk.RegisterOption) (*Validator, error) {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	cache := jwk.NewCache(ctx)
	opts := append([]jwk.RegisterOption{jwk.WithRefreshInterval(ttl)}, regOpts...)
	if err := cache.Register(jwksURL, opts...); err != nil {
		return nil, fmt.Errorf("register jwks cache: %w", err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not present")
		}

		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("jwks cache get: %w", err)
		}

		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("kid %q not in jwks", kid)
		}

		var pub interface{}
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("raw public key: %w", err)
		}
		return pub, nil
	}

	return &Validator{keyFunc: keyFunc, issuer: issuer, audience: RequiredAudience}, nil
}

// ValidateToken verifies signature, algorithm, audience, issuer (if set)
// and expiry, returning the typed FailureReason on rejection.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fail(FailureMissing, nil)
	}

	parseOpts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithAudience(v.audience),
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, parseOpts...)
	if err != nil {
		// jwt.WithValidMethods reports a disallowed alg as
		// ErrTokenSignatureInvalid; the header's alg tells it apart from a
		// genuinely bad signature.
		if token != nil && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			if alg, _ := token.Header["alg"].(string); !isAllowedAlgorithm(alg) {
				return nil, fail(FailureAlgorithmNotAllowed, err)
			}
		}
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fail(FailureExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fail(FailureSignatureInvalid, err)
		case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fail(FailureMalformed, err)
		default:
			// Anything not otherwise classified above is treated as a
			// malformed/unsupported token.
			return nil, fail(FailureMalformed, err)
		}
	}

	if !token.Valid {
		return nil, fail(FailureSignatureInvalid, nil)
	}

	alg, _ := token.Header["alg"].(string)
	if !isAllowedAlgorithm(alg) {
		return nil, fail(FailureAlgorithmNotAllowed, fmt.Errorf("alg %q not permitted", alg))
	}

	return claims, nil
}

func isAllowedAlgorithm(alg string) bool {
	for _, a := range allowedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// RedactForLog returns a log-safe summary of claims, never the raw token.
func (c *Claims) RedactForLog() string {
	return fmt.Sprintf("subject=%s email=%s", c.Subject, logging.RedactEmail(c.Email))
}
