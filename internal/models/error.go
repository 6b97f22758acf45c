package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Throttling
	ErrRateLimited = errors.New("rate limit exceeded")

	// Credential verification errors. The wording is deliberately generic so the
	// HTTP layer cannot leak which part of a multi-factor check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// One-time passcode lifecycle errors
	ErrOtpExpired         = errors.New("passcode expired")
	ErrOtpAlreadyConsumed = errors.New("passcode already used")
	ErrOtpMismatch        = errors.New("passcode does not match")
	ErrDeliveryFailed     = errors.New("passcode delivery failed")

	// Authenticator-app verification
	ErrTotpMismatch    = errors.New("authenticator code does not match")
	ErrTotpNotEnrolled = errors.New("account has no authenticator secret")

	// Child-safety guard denials
	ErrOutsideAllowedHours = errors.New("action outside allowed hours")
	ErrSpendLimitExceeded  = errors.New("daily spend limit exceeded")
	ErrCategoryNotAllowed  = errors.New("category not allowed")
)
