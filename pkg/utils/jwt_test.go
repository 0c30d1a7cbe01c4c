package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "spec-forge")

	pair, err := m.GenerateTokenPair("user-1", "member", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "spec-forge", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	refresh, err := m.ParseToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.Type)
	assert.NotEqual(t, claims.ID, refresh.ID)

	_, err = m.ParseAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", "spec-forge")

	expired, err := m.GenerateToken("user-1", "member", TokenTypeAccess, -time.Hour)
	require.NoError(t, err)
	_, err = m.ParseToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other, err := NewJWTManager("other", "spec-forge").GenerateToken("user-1", "member", TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	_, err = m.ParseToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewJWTManager("secret", "someone-else").GenerateToken("user-1", "member", TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	_, err = m.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_ClockSkewAndSecret(t *testing.T) {
	m := NewJWTManager("secret", "")
	justExpired, err := m.GenerateToken("user-1", "member", TokenTypeAccess, -10*time.Second)
	require.NoError(t, err)
	_, err = m.ParseAccessToken(justExpired)
	assert.NoError(t, err)

	_, err = NewJWTManager("", "").GenerateToken("user-1", "member", TokenTypeAccess, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
