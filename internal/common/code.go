package common

import "errors"

// Stable error codes surfaced to API callers.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeIsolationViolation = "ISOLATION_VIOLATION"
	CodeDecryptionFailed   = "DECRYPTION_FAILED"
	CodeValidation         = "VALIDATION"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL"
)

// Code maps err onto its stable API code. Anything unrecognised, including
// ErrKeyUnavailable, is reported as INTERNAL so that details stay server-side.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIsolationViolation):
		return CodeIsolationViolation
	case errors.Is(err, ErrDecryptionFailed):
		return CodeDecryptionFailed
	case errors.Is(err, ErrorNotFound):
		return CodeNotFound
	case errors.Is(err, ErrorForbidden):
		return CodeForbidden
	case errors.Is(err, ErrorConflict):
		return CodeConflict
	case errors.Is(err, ErrorValidation):
		return CodeValidation
	case errors.Is(err, ErrorUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

// Message returns a caller-safe message for err. Internal failures collapse
// to a generic text; the full error is for the server log only.
func Message(err error) string {
	switch Code(err) {
	case CodeInternal:
		return ErrorInternal.Error()
	case CodeDecryptionFailed:
		return ErrDecryptionFailed.Error()
	default:
		return err.Error()
	}
}

var codeErrors = map[string]error{
	CodeNotFound:           ErrorNotFound,
	CodeForbidden:          ErrorForbidden,
	CodeConflict:           ErrorConflict,
	CodeIsolationViolation: ErrIsolationViolation,
	CodeDecryptionFailed:   ErrDecryptionFailed,
	CodeValidation:         ErrorValidation,
	CodeUnauthorized:       ErrorUnauthorized,
	CodeInternal:           ErrorInternal,
}

// FromCode is the inverse of Code for clients: it returns the sentinel a
// stable code stands for, or nil for an unknown code.
func FromCode(code string) error {
	return codeErrors[code]
}
