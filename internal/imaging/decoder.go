package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	_ "golang.org/x/image/bmp"  // register BMP
	"golang.org/x/image/tiff"   // TIFF, also used for raw previews
	_ "golang.org/x/image/webp" // register WebP
)

// headerKeys are the FITS keywords copied into Data.Header.
var headerKeys = []string{"OBJECT", "FILTER", "EXPTIME", "DATE-OBS", "INSTRUME", "CCD-TEMP", "GAIN", "XBINNING", "YBINNING", "IMAGETYP"}

// rasterFormats are decoded with image.Decode.
var rasterFormats = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true, "webp": true,
}

// rawFormats are camera raw containers.
var rawFormats = map[string]bool{
	"cr2": true, "cr3": true, "crw": true, "nef": true,
	"raf": true, "dng": true, "arw": true,
}

// IsRaster reports whether format is a raster image format.
func IsRaster(format string) bool { return rasterFormats[strings.ToLower(format)] }

// IsRaw reports whether format is a camera raw format.
func IsRaw(format string) bool { return rawFormats[strings.ToLower(format)] }

// Decoder decodes payloads. The zero value is ready to use.
type Decoder struct {
	// Now stamps Data.Decoded. Defaults to time.Now.
	Now func() time.Time
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{Now: time.Now}
}

// Decode decodes data of the given format ("fits", "jpg", "cr2", ...).
func (d *Decoder) Decode(data []byte, format string) (*Data, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	format = strings.ToLower(strings.TrimPrefix(format, "."))

	var (
		out *Data
		err error
	)
	switch {
	case strings.Contains(format, "fits") || format == "fit":
		out, err = decodeFITS(data)
	case rasterFormats[format]:
		out, err = decodeRaster(data)
	case rawFormats[format]:
		out = decodeRaw(data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	out.Format = format
	out.Size = len(data)
	out.Decoded = d.now()
	return out, nil
}

func (d *Decoder) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// decodeFITS turns fitsio panics on malformed headers or data into errors.
func decodeFITS(data []byte) (out *Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrMalformedFITS, r)
		}
	}()

	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: open fits: %w", err)
	}
	defer f.Close()

	hdu, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, ErrNoImage
	}
	hdr := hdu.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, ErrNoImage
	}

	out = &Data{
		Width:    axes[0],
		Height:   axes[1],
		Channels: 1,
		Bitpix:   hdr.Bitpix(),
		Header:   make(map[string]string),
	}
	if len(axes) > 2 {
		out.Channels = axes[2]
	}
	if out.Width <= 0 || out.Height <= 0 || out.Channels <= 0 {
		return nil, fmt.Errorf("%w: axes %v", ErrMalformedFITS, axes)
	}
	for _, key := range headerKeys {
		if card := hdr.Get(key); card != nil {
			out.Header[key] = strings.TrimSpace(fmt.Sprint(card.Value))
		}
	}

	// fitsio renders 2D images only; cubes keep their metadata.
	if len(axes) == 2 {
		out.Image = hdu.Image()
	}
	return out, nil
}

func decodeRaster(data []byte) (*Data, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode raster: %w", err)
	}
	return fromImage(img), nil
}

// decodeRaw never fails: TIFF-based raw containers yield their first IFD
// as a preview, anything else only its size.
func decodeRaw(data []byte) *Data {
	if img, err := tiff.Decode(bytes.NewReader(data)); err == nil {
		return fromImage(img)
	}
	return &Data{}
}

func fromImage(img image.Image) *Data {
	b := img.Bounds()
	out := &Data{Width: b.Dx(), Height: b.Dy(), Channels: 3, Bitpix: 8, Image: img}
	switch img.(type) {
	case *image.Gray:
		out.Channels = 1
	case *image.Gray16:
		out.Channels, out.Bitpix = 1, 16
	case *image.RGBA64, *image.NRGBA64:
		out.Bitpix = 16
	}
	return out
}
