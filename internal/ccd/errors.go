package ccd

import "errors"

// Sentinel errors for the ccd package.
//
// Chip and device operations report success as a boolean the way the
// protocol does; these errors are returned by the helpers that need to say
// why (parsing, construction, the writer).
var (
	// ErrPropertyMissing indicates the backing property is not defined.
	ErrPropertyMissing = errors.New("ccd: property missing")

	// ErrOutOfRange indicates a requested value exceeds the declared bounds.
	ErrOutOfRange = errors.New("ccd: value out of range")

	// ErrInvalidArgument indicates a malformed enum name or option.
	ErrInvalidArgument = errors.New("ccd: invalid argument")

	// ErrNoChip indicates the device has no such sensor head.
	ErrNoChip = errors.New("ccd: no such chip")

	// ErrWriteFailed indicates a capture file could not be created or written.
	ErrWriteFailed = errors.New("ccd: write failed")

	// ErrWriterClosed indicates a write was submitted after Close.
	ErrWriterClosed = errors.New("ccd: writer closed")

	// ErrDecodeFailed indicates a payload could not be decoded as an image.
	ErrDecodeFailed = errors.New("ccd: decode failed")
)
