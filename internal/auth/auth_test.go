package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	ph := NewPasswordHasher()

	hash, err := ph.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := ph.VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ph.VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	ph := NewPasswordHasher()

	h1, err := ph.HashPassword("same")
	require.NoError(t, err)
	h2, err := ph.HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	ph := NewPasswordHasher()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong section count", "$argon2id$v=19$m=65536"},
		{"unparseable params", "$argon2id$v=19$nonsense$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ph.VerifyPassword("pw", tt.hash)
			assert.Error(t, err)
		})
	}
}

func TestJWTRoundTrip(t *testing.T) {
	h := NewJWTHandler("test-secret-key-at-least-32-characters", time.Hour, 24*time.Hour)
	userID := uuid.New()

	token, err := h.GenerateAccessToken(userID, "admin", "admin")
	require.NoError(t, err)

	claims, err := h.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "modbusmon", claims.Issuer)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	h := NewJWTHandler("test-secret-key-at-least-32-characters", time.Hour, 24*time.Hour)
	other := NewJWTHandler("another-secret-key-also-32-characters!", time.Hour, 24*time.Hour)

	token, err := h.GenerateAccessToken(uuid.New(), "admin", "admin")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	h := NewJWTHandler("test-secret-key-at-least-32-characters", -time.Minute, 24*time.Hour)

	token, err := h.GenerateAccessToken(uuid.New(), "admin", "admin")
	require.NoError(t, err)

	_, err = h.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestGenerateRefreshTokenIsRandomHex(t *testing.T) {
	h := NewJWTHandler("secret", time.Hour, 24*time.Hour)

	t1, err := h.GenerateRefreshToken()
	require.NoError(t, err)
	t2, err := h.GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, t1, 64)
	assert.NotEqual(t, t1, t2)
}
