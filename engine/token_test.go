package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundtrip(t *testing.T) {
	iss := NewTokenIssuer(filepath.Join(t.TempDir(), "key.pem"))

	tok, err := iss.Sign(&jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenIssuerExpired(t *testing.T) {
	iss := NewTokenIssuer(filepath.Join(t.TempDir(), "key.pem"))

	tok, err := iss.Sign(&jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	_, err = iss.Verify(tok)
	assert.Error(t, err)
}

func TestTokenIssuerKeyPersistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "key.pem")
	a := NewTokenIssuer(file)
	b := NewTokenIssuer(file)

	tok, err := a.Sign(&jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = b.Verify(tok)
	assert.NoError(t, err)
}

func TestTokenIssuerOAuth2(t *testing.T) {
	iss := NewTokenIssuer(filepath.Join(t.TempDir(), "key.pem"))

	src := iss.OAuth2(func() *jwt.RegisteredClaims {
		return &jwt.RegisteredClaims{
			Subject:   "kiosk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	})

	tok, err := src.Token()
	require.NoError(t, err)

	claims, err := iss.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "kiosk", claims.Subject)
}
