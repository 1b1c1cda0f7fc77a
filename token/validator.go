package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrMissingExpiry  = errors.New("token missing exp claim")
)

// parser decodes without verifying the signature. Padded segments are tolerated because some
// issuers emit standard base64 with padding.
var parser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())

// Expiry returns the exp claim of a token without verifying its signature.
// The result is advisory: the API remains the only authority on whether a token is accepted.
func Expiry(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, ErrMalformedToken
	}

	unverified, _, err := parser.ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return time.Time{}, ErrMalformedToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, ErrMissingExpiry
	}
	return exp.Time, nil
}

// IsLive reports whether the token's exp claim is still in the future.
// Any decoding failure reports false.
func IsLive(rawToken string) bool {
	exp, err := Expiry(rawToken)
	if err != nil {
		return false
	}
	return exp.Unix() > NowTimeFunc().Unix()
}

// RemainingLifetime returns the time left before exp, zero or negative when expired or unknown.
func RemainingLifetime(rawToken string) time.Duration {
	exp, err := Expiry(rawToken)
	if err != nil {
		return 0
	}
	return exp.Sub(NowTimeFunc())
}

// ExpiresWithin reports whether the token is expired, undecodable or expires within d.
func ExpiresWithin(rawToken string, d time.Duration) bool {
	return RemainingLifetime(rawToken) < d
}
