package infra

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewJWTIssuer("s3cret", time.Hour)

	raw, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	tok, err := issuer.VerifyToken(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", tok.UID)
	assert.Equal(t, "a@example.com", tok.Claims["email"])
}

func TestJWTIssuer_RejectsWrongSecret(t *testing.T) {
	raw, err := NewJWTIssuer("one", time.Hour).Issue("user-1", "")
	require.NoError(t, err)

	_, err = NewJWTIssuer("two", time.Hour).VerifyToken(context.Background(), raw)
	assert.Error(t, err)
}

func TestJWTIssuer_RejectsExpired(t *testing.T) {
	issuer := NewJWTIssuer("s3cret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, err := issuer.Issue("user-1", "")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.VerifyToken(context.Background(), raw)
	assert.Error(t, err)
}

func TestJWTIssuer_RejectsNoneAlg(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: jwtIssuer}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTIssuer("s3cret", time.Hour).VerifyToken(context.Background(), raw)
	assert.Error(t, err)
}
