package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Token errors
	ErrNoToken       = errors.New("no token")
	ErrTokenExpired  = errors.New("token expired")
	ErrPartialRecord = errors.New("partial token record")

	// Handoff errors
	ErrMissingHandoff   = errors.New("missing handoff code")
	ErrHandoffRejected  = errors.New("handoff rejected")
	ErrMalformedPayload = errors.New("malformed payload")

	// Verification errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidUser  = errors.New("invalid user payload")

	// Storage errors
	ErrStorageClosed = errors.New("storage closed")

	// Configuration errors
	ErrMissingBaseDomain = errors.New("base domain is required")
	ErrUnknownStorage    = errors.New("unknown storage backend")
)

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
