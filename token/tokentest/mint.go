// Package tokentest mints unsigned-for-production JWTs for tests and fakes.
package tokentest

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testSecret = []byte("solugarde-test-secret")

// Mint creates an HS256 access token for subject that expires at exp.
func Mint(subject, role string, exp time.Time) string {
	claims := jwtlib.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  exp.Unix(),
		"jti":  uuid.New().String(),
	}
	return sign(claims)
}

// MintExpiringIn creates a token for subject that expires d from now. d may be negative.
func MintExpiringIn(subject string, d time.Duration) string {
	return Mint(subject, "", time.Now().Add(d))
}

// MintWithoutExpiry creates a token that carries no exp claim
func MintWithoutExpiry(subject string) string {
	return sign(jwtlib.MapClaims{"sub": subject, "jti": uuid.New().String()})
}

func sign(claims jwtlib.MapClaims) string {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		panic("tokentest: " + err.Error())
	}
	return signed
}
