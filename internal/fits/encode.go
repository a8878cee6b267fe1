package fits

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/astrogo/fitsio"
)

// Encode writes img as an 8-bit FITS image. Grey images become a 2D
// image, anything else a 3-plane (R, G, B) cube.
func Encode(w io.Writer, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return ErrUnsupportedImage
	}

	var (
		axes []int
		raw  []byte
	)
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		axes = []int{width, height}
		raw = make([]byte, 0, width*height)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				raw = append(raw, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		}
	default:
		axes = []int{width, height, 3}
		plane := width * height
		raw = make([]byte, 3*plane)
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				raw[i] = c.R
				raw[plane+i] = c.G
				raw[2*plane+i] = c.B
				i++
			}
		}
	}

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("fits: create: %w", err)
	}
	defer f.Close()

	hdu := fitsio.NewImage(8, axes)
	defer hdu.Close()

	if err := hdu.Write(&raw); err != nil {
		return fmt.Errorf("fits: write pixels: %w", err)
	}
	if err := f.Write(hdu); err != nil {
		return fmt.Errorf("fits: write image: %w", err)
	}
	return nil
}

// EncodeFile writes img to path with mode 0644.
func EncodeFile(path string, img image.Image) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fits: create %s: %w", path, err)
	}
	if err := Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
