package catalog

import "errors"

// Domain-specific errors for catalog operations.
var (
	// ErrNotFound is returned when a capture does not exist.
	ErrNotFound = errors.New("catalog: capture not found")

	// ErrInvalidCapture is returned when a capture lacks a device or path.
	ErrInvalidCapture = errors.New("catalog: invalid capture")

	// ErrRecorderClosed is returned by Record after Close.
	ErrRecorderClosed = errors.New("catalog: recorder closed")

	// ErrQueueFull is returned by Record when the pending queue is full.
	ErrQueueFull = errors.New("catalog: recorder queue full")
)
