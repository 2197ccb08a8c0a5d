package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestOpenRelayAcceptsClaimedUser(t *testing.T) {
	v := NewVerifier("")
	assert.True(t, v.Open())

	user, err := v.UserFor("anything", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = v.UserFor("anything", "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestSharedSecretMode(t *testing.T) {
	v := NewVerifier("hunter2")
	assert.False(t, v.Open())

	user, err := v.UserFor("hunter2", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = v.UserFor("hunter2", "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestJWTMode(t *testing.T) {
	v := NewVerifier("hunter2")

	// The subject claim wins over whatever user the JOIN asked for.
	user, err := v.UserFor(signHS256(t, "hunter2", "alice"), "mallory")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestJWTWrongSecretRejected(t *testing.T) {
	v := NewVerifier("hunter2")

	_, err := v.UserFor(signHS256(t, "not-the-secret", "alice"), "alice")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTWithoutSubjectRejected(t *testing.T) {
	v := NewVerifier("hunter2")

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("hunter2"))
	require.NoError(t, err)

	_, err = v.UserFor(token, "alice")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestGarbageTokenRejected(t *testing.T) {
	v := NewVerifier("hunter2")

	_, err := v.UserFor("not a token at all", "alice")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
