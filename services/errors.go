package services

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrCodeMismatch       = errors.New("invalid verification code")
	ErrConflict           = errors.New("already in use")
	ErrState              = errors.New("operation not allowed at the current verification level")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("login session not found or expired")
	ErrTooManyAttempts    = errors.New("too many failed verification attempts, please log in again")
	ErrExternalService    = errors.New("external service failure")
	ErrForbidden          = errors.New("forbidden")
)
