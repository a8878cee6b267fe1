package camera

import "errors"

// Domain-specific errors for bridge operations.
var (
	// ErrUnknownDevice is returned when no camera has the given name.
	ErrUnknownDevice = errors.New("camera: unknown device")

	// ErrUnknownCommand is returned for an unsupported command name.
	ErrUnknownCommand = errors.New("camera: unknown command")

	// ErrInvalidParameters is returned when command parameters are missing
	// or have the wrong type.
	ErrInvalidParameters = errors.New("camera: invalid parameters")

	// ErrRejected is returned when the camera refused the command, for
	// example because the property is missing or the value is out of range.
	ErrRejected = errors.New("camera: command rejected")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("camera: bridge stopped")
)
