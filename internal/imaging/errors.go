package imaging

import "errors"

var (
	// ErrEmpty indicates a payload without bytes.
	ErrEmpty = errors.New("imaging: empty payload")

	// ErrUnsupportedFormat indicates a format the decoder does not handle.
	ErrUnsupportedFormat = errors.New("imaging: unsupported format")

	// ErrNoImage indicates a FITS file whose primary HDU holds no image.
	ErrNoImage = errors.New("imaging: no image in primary HDU")

	// ErrMalformedFITS indicates a FITS header or data unit that cannot be parsed.
	ErrMalformedFITS = errors.New("imaging: malformed fits")
)
