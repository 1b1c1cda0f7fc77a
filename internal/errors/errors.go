package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the Solugarde client
var (
	// Session errors
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Request errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network error: unable to reach the server")
	ErrValidation   = errors.New("request rejected")
	ErrServer       = errors.New("server error")

	// Storage errors
	ErrStorage  = errors.New("storage error")
	ErrNotFound = errors.New("not found")
)

const defaultAPIMessage = "An API error occurred"

// APIError is returned for any non-2xx response from the REST API.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultAPIMessage
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Unwrap maps the status class onto the sentinel errors so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status >= 500:
		return ErrServer
	case e.Status >= 400:
		return ErrValidation
	}
	return nil
}

// IsAuthError reports whether err ends the current session (401 after retry or failed refresh)
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNoRefreshToken)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
