package auth

import "errors"

// Sentinel errors for auth operations.
var (
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates a JWT that failed signature, expiry, or
	// structural validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTicketInvalid indicates an unknown or already-used WebSocket ticket.
	ErrTicketInvalid = errors.New("auth: invalid ticket")

	// ErrTicketExpired indicates a WebSocket ticket past its lifetime.
	ErrTicketExpired = errors.New("auth: ticket expired")
)
