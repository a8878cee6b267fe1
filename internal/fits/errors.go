package fits

import "errors"

var (
	// ErrNotFITS indicates the file does not start with a SIMPLE card.
	ErrNotFITS = errors.New("fits: not a FITS file")

	// ErrNoEnd indicates the primary header has no END card.
	ErrNoEnd = errors.New("fits: header without END card")

	// ErrInvalidKey indicates a keyword that cannot be written.
	ErrInvalidKey = errors.New("fits: invalid keyword")

	// ErrUnsupportedImage indicates an image with no usable pixels.
	ErrUnsupportedImage = errors.New("fits: unsupported image")
)
