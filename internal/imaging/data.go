package imaging

import (
	"image"
	"time"
)

// Data is a decoded capture together with the metadata of its origin.
type Data struct {
	// Origin, filled in by the capture pipeline.
	Device   string
	Vector   string
	Element  string
	Chip     string
	Mode     string
	Filename string

	// Format is the lower-case extension without the dot.
	Format   string
	Width    int
	Height   int
	Channels int
	Bitpix   int
	Size     int

	// Header holds selected FITS keywords.
	Header map[string]string

	// Image is nil for payloads that could not be rendered, such as
	// undemosaiced raw files.
	Image image.Image

	Decoded time.Time
}
