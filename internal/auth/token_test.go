package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/cyberarcade/internal/models"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	acct := &models.Account{ID: "acct-1", Identifier: "user@example.com", Role: models.RoleAdmin}
	now := time.Now()

	token, expiresAt, err := tm.GenerateSessionToken(acct, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeSession, claims.Type)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	acct := &models.Account{ID: "acct-1", Identifier: "user@example.com", Role: models.RolePlayer}
	token, _, err := NewTokenManager(testSecret, time.Hour).GenerateSessionToken(acct, time.Now())
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-that-is-also-32-bytes!!", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	acct := &models.Account{ID: "acct-1", Identifier: "user@example.com"}

	token, _, err := tm.GenerateSessionToken(acct, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsForeignTokenType(t *testing.T) {
	claims := &models.TokenClaims{
		Type:      "refresh",
		AccountID: "acct-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
