// Package imaging holds the grey-level image helpers shared by the locator,
// the quality gate and the feature extractor. Filtering runs in OpenCV
// through gocv; images cross the boundary as 8-bit single-channel mats.
package imaging

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// ToGray converts any image to an 8-bit grey image anchored at the origin.
// Grey images already anchored at the origin are returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Crop copies the part of g inside r into a new image anchored at the origin.
func Crop(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := range r.Dy() {
		src := g.Pix[g.PixOffset(r.Min.X, r.Min.Y+y):]
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], src[:r.Dx()])
	}
	return dst
}

// packed returns g's pixels as one contiguous row-major buffer.
func packed(g *image.Gray) []byte {
	b := g.Bounds()
	if b.Min == (image.Point{}) && g.Stride == b.Dx() {
		return g.Pix[:b.Dx()*b.Dy()]
	}
	return Crop(g, b).Pix
}

// ToMat copies g into a new CV_8U mat. The caller closes it.
func ToMat(g *image.Gray) (gocv.Mat, error) {
	b := g.Bounds()
	if b.Empty() {
		return gocv.Mat{}, errors.New("empty image")
	}
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, packed(g))
	if err != nil {
		return m, fmt.Errorf("creating mat: %w", err)
	}
	return m, nil
}

// FromMat copies a CV_8U mat back into a grey image.
func FromMat(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() || m.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("expected a non-empty 8-bit mat, got type %v", m.Type())
	}
	rows, cols := m.Rows(), m.Cols()
	pix := m.ToBytes()
	if len(pix) != rows*cols {
		return nil, fmt.Errorf("mat holds %d bytes for %dx%d", len(pix), cols, rows)
	}
	return &image.Gray{Pix: pix, Stride: cols, Rect: image.Rect(0, 0, cols, rows)}, nil
}

// Float64s copies a CV_64F mat into a row-major slice.
func Float64s(m gocv.Mat) ([]float64, error) {
	if m.Empty() {
		return nil, errors.New("empty mat")
	}
	data, err := m.DataPtrFloat64()
	if err != nil {
		return nil, fmt.Errorf("reading mat: %w", err)
	}
	out := make([]float64, len(data))
	copy(out, data)
	return out, nil
}
