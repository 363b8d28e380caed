// Package bakalari implements the Bakalari school-server API client.
// It is the only package that talks to the remote host: it owns the wire
// format, the token refresh flow, and the closed set of authentication
// errors the rest of the system dispatches on.
package bakalari

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH ERROR TAXONOMY
// The remote server signals terminal authentication failure through exactly
// these conditions. Everything else is transient.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidToken means the access token was rejected.
	ErrInvalidToken = errors.New("bakalari: invalid access token")

	// ErrInvalidRefreshToken means the refresh token was rejected.
	ErrInvalidRefreshToken = errors.New("bakalari: invalid refresh token")

	// ErrRefreshTokenExpired means the refresh token is past its lifetime.
	ErrRefreshTokenExpired = errors.New("bakalari: refresh token expired")

	// ErrTokenRedeemed means the refresh token was already exchanged once;
	// someone else rotated the pair and this copy is dead.
	ErrTokenRedeemed = errors.New("bakalari: refresh token already redeemed")

	// ErrMissingCredentials means the session has neither token available.
	ErrMissingCredentials = errors.New("bakalari: no tokens available")
)

// IsAuthError reports whether err belongs to the closed set of terminal
// authentication errors. Callers reset the session and request a re-login
// on these; any other error is treated as transient.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrRefreshTokenExpired) ||
		errors.Is(err, ErrTokenRedeemed) ||
		errors.Is(err, ErrMissingCredentials)
}

// APIError is a non-auth error response from the server.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// Code is the machine-readable error code from the body, when present.
	Code string

	// Message is the human-readable message from the body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bakalari: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("bakalari: api error %d: %s", e.StatusCode, e.Message)
}

// asAuthError maps a server error code to one of the closed auth errors,
// or nil when the code is not authentication-related.
func asAuthError(code string) error {
	switch code {
	case "invalid_token":
		return ErrInvalidToken
	case "invalid_refresh_token", "invalid_grant":
		return ErrInvalidRefreshToken
	case "refresh_token_expired":
		return ErrRefreshTokenExpired
	case "refresh_token_redeemed":
		return ErrTokenRedeemed
	default:
		return nil
	}
}
