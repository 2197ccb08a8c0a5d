// Package auth verifies the credential presented in a JOIN message.
//
// Identity itself lives elsewhere: registration, password hashing, and token
// issuance are the identity service's business. The relay only needs to tie a
// connection to an opaque user id, and accepts either:
//
//   - a JWT signed (HMAC-SHA256) with the relay secret, whose subject claim
//     is the user id, or
//   - the relay secret itself, verbatim, in which case the claimed user id
//     on the JOIN is taken as is (shared-token mode for single-user
//     deployments).
//
// With no secret configured the relay is open and every claimed user id is
// accepted.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoUser       = errors.New("token carries no user id")
)

// Verifier checks JOIN credentials against the relay secret.
type Verifier struct {
	secret string
}

// NewVerifier returns a Verifier. An empty secret disables verification.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Open reports whether the relay accepts joins without credentials.
func (v *Verifier) Open() bool { return v.secret == "" }

// UserFor resolves the user id a credential authorizes. claimedUser is the
// id the JOIN asked for; it is only trusted in open or shared-secret mode.
func (v *Verifier) UserFor(token, claimedUser string) (string, error) {
	if v.secret == "" {
		if claimedUser == "" {
			return "", ErrNoUser
		}
		return claimedUser, nil
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) == 1 {
		if claimedUser == "" {
			return "", ErrNoUser
		}
		return claimedUser, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrNoUser
	}
	return subject, nil
}
