// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Quota errors. ErrQuotaExceeded is user-recoverable by upgrading or
	// buying credits and is never retried automatically.
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrInvalidPalette = errors.New("invalid palette")

	// ErrTransientStore covers lock acquisition timeouts and retryable
	// transaction conflicts.
	ErrTransientStore = errors.New("transient store error")

	// Billing errors.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
	ErrMappingUnresolved           = errors.New("billing customer mapping unresolved")
	ErrUnknownPrice                = errors.New("unknown price")
	ErrBillingNotConfigured        = errors.New("billing not configured")
)
