package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWKSServer(t *testing.T) (*httptest.Server, *rsa.PrivateKey, string) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.FromRaw(&privateKey.PublicKey)
	require.NoError(t, err)
	_ = key.Set(jwk.KeyIDKey, "test-kid")
	_ = key.Set(jwk.AlgorithmKey, "RS256")
	_ = key.Set(jwk.KeyUsageKey, "sig")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := json.Marshal(map[string]interface{}{"keys": []interface{}{key}})
		_, _ = w.Write(buf)
	}))
	return server, privateKey, server.URL
}

// TestValidator_AlgorithmConfusion guards against a classic attack: an
// attacker signs a token with HS256, using the server's known RSA public
// key bytes as the HMAC secret, hoping the verifier's keyFunc will hand
// back a key usable for either algorithm family. jwt.WithValidMethods
// must reject the token before the keyFunc is ever consulted.
func TestValidator_AlgorithmConfusion(t *testing.T) {
	server, _, jwksURL := newTestJWKSServer(t)
	defer server.Close()

	v, err := NewValidator(context.Background(), jwksURL, "", time.Minute)
	require.NoError(t, err)

	token := jwt.New(jwt.SigningMethodHS256)
	token.Header["kid"] = "test-kid"
	token.Claims = jwt.MapClaims{
		"aud": RequiredAudience,
		"sub": "attacker",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.ValidateToken(signed)
	require.Error(t, err)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.NotEqual(t, FailureSignatureInvalid, verr.Reason, "must be rejected by method allowlist, not signature check")
}

func TestValidator_RejectsNoneAlgorithm(t *testing.T) {
	server, _, jwksURL := newTestJWKSServer(t)
	defer server.Close()

	v, err := NewValidator(context.Background(), jwksURL, "", time.Minute)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"aud": RequiredAudience,
		"sub": "attacker",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(signed)
	require.Error(t, err)
}

func TestValidator_AcceptsValidRS256Token(t *testing.T) {
	server, privateKey, jwksURL := newTestJWKSServer(t)
	defer server.Close()

	v, err := NewValidator(context.Background(), jwksURL, "", time.Minute)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{RequiredAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = "test-kid"
	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	claims, err := v.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidator_RejectsWrongAudience(t *testing.T) {
	server, privateKey, jwksURL := newTestJWKSServer(t)
	defer server.Close()

	v, err := NewValidator(context.Background(), jwksURL, "", time.Minute)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"some-other-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = "test-kid"
	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	_, err = v.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidator_MissingToken(t *testing.T) {
	server, _, jwksURL := newTestJWKSServer(t)
	defer server.Close()

	v, err := NewValidator(context.Background(), jwksURL, "", time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken("")
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FailureMissing, verr.Reason)
}
