// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorConflict     = errors.New("conflict")
	ErrorValidation   = errors.New("validation error")

	// ErrIsolationViolation is returned when a storage operation names a
	// namespace other than the one active for the caller. It signals a defect
	// or an attack, never absent data.
	ErrIsolationViolation = errors.New("isolation violation")

	// Crypto errors.
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrKeyUnavailable   = errors.New("key unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
