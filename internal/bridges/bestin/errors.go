package bestin

import "errors"

// Domain errors for the BESTIN bridge package.
var (
	// ErrNotConnected is returned when an operation requires a bus
	// connection but the transport is not connected.
	ErrNotConnected = errors.New("bestin: not connected to bus")

	// ErrConnectionFailed is returned when the connection to the bus fails.
	ErrConnectionFailed = errors.New("bestin: bus connection failed")

	// ErrInvalidAddress is returned when a bus address string is neither a
	// serial device path nor a host:port pair.
	ErrInvalidAddress = errors.New("bestin: invalid bus address")

	// ErrInvalidFrame is returned when a received frame is malformed.
	ErrInvalidFrame = errors.New("bestin: invalid frame")

	// ErrUnknownDeviceType is returned when a command names a device type
	// the encoder has no layout for.
	ErrUnknownDeviceType = errors.New("bestin: unknown device type")

	// ErrEncodingFailed is returned when building a command frame fails.
	ErrEncodingFailed = errors.New("bestin: command encoding failed")

	// ErrSendFailed is returned when writing a frame to the bus fails.
	ErrSendFailed = errors.New("bestin: frame send failed")

	// ErrRetriesExhausted is returned when a command leaves the queue
	// unconfirmed after the transmission ceiling.
	ErrRetriesExhausted = errors.New("bestin: command retries exhausted")

	// ErrEngineStopped is returned when a command is enqueued after the
	// engine has been stopped.
	ErrEngineStopped = errors.New("bestin: engine stopped")
)
