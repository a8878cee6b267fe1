package indi

import "errors"

// Domain errors for the INDI client package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the INDI server.
	ErrNotConnected = errors.New("indi: not connected to server")

	// ErrConnectionFailed is returned when the connection to the server fails.
	ErrConnectionFailed = errors.New("indi: connection to server failed")

	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("indi: client closed")

	// ErrInvalidMessage is returned when a protocol message is malformed.
	ErrInvalidMessage = errors.New("indi: invalid message")

	// ErrInvalidNumber is returned when a number element cannot be parsed.
	ErrInvalidNumber = errors.New("indi: invalid number")

	// ErrSendFailed is returned when a command cannot be written to the server.
	ErrSendFailed = errors.New("indi: send failed")

	// ErrUnknownProperty is returned when a property is not defined on a device.
	ErrUnknownProperty = errors.New("indi: unknown property")
)
