package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared size of decoded images.
const DefaultMaxPixels = 40_000_000

// ErrTooManyPixels is returned when an image header declares more pixels
// than the decoder is allowed to allocate.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// Decode reads an encoded image and converts it to grey. The header is
// checked first: images declaring more than maxPixels pixels fail with
// ErrTooManyPixels before any pixel buffer is allocated. maxPixels <= 0
// means DefaultMaxPixels.
func Decode(r io.Reader, maxPixels int) (*image.Gray, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d, at most %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToGray(img), nil
}

// DecodeBytes decodes an in-memory encoded image.
func DecodeBytes(data []byte, maxPixels int) (*image.Gray, error) {
	return Decode(bytes.NewReader(data), maxPixels)
}

// Load reads and decodes the image file at path.
func Load(path string, maxPixels int) (*image.Gray, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	g, err := Decode(f, maxPixels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
