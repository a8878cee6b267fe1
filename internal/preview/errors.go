package preview

import "errors"

// Domain-specific errors for preview operations.
var (
	// ErrNotFound is returned when a device, tab or frame does not exist.
	ErrNotFound = errors.New("preview: not found")

	// ErrNoImage is returned when a tab holds data that cannot be rendered.
	ErrNoImage = errors.New("preview: no renderable image")

	// ErrNilData is returned when nil image data is loaded.
	ErrNilData = errors.New("preview: nil image data")
)
