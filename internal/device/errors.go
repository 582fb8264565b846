package device

import "errors"

// Domain errors for the device package.
var (
	// ErrNotFound is returned when no record exists for a key or ID.
	ErrNotFound = errors.New("device: not found")

	// ErrInvalidKey is returned when a key is missing its device type.
	ErrInvalidKey = errors.New("device: invalid key")
)
