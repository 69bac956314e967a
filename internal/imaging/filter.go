package imaging

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// run copies g into a mat, applies op and hands the non-empty result to read.
func run(g *image.Gray, name string, op func(src gocv.Mat, dst *gocv.Mat), read func(dst gocv.Mat) error) error {
	src, err := ToMat(g)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	op(src, &dst)
	if dst.Empty() {
		return fmt.Errorf("%s produced no output", name)
	}
	return read(dst)
}

func grayOp(g *image.Gray, name string, op func(src gocv.Mat, dst *gocv.Mat)) (*image.Gray, error) {
	var out *image.Gray
	err := run(g, name, op, func(dst gocv.Mat) error {
		var err error
		out, err = FromMat(dst)
		return err
	})
	return out, err
}

func floatOp(g *image.Gray, name string, op func(src gocv.Mat, dst *gocv.Mat)) ([]float64, error) {
	var out []float64
	err := run(g, name, op, func(dst gocv.Mat) error {
		var err error
		out, err = Float64s(dst)
		return err
	})
	return out, err
}

// Resize scales g to w x h with bilinear interpolation.
func Resize(g *image.Gray, w, h int) (*image.Gray, error) {
	return grayOp(g, "resize", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Resize(src, dst, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	})
}

// EqualizeHist spreads the grey-level histogram of g over the full 0-255
// range.
func EqualizeHist(g *image.Gray) (*image.Gray, error) {
	return grayOp(g, "equalize", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.EqualizeHist(src, dst)
	})
}

// GaussianBlur smooths g with a ksize x ksize Gaussian whose sigma OpenCV
// derives from the size.
func GaussianBlur(g *image.Gray, ksize int) (*image.Gray, error) {
	return grayOp(g, "gaussian blur", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.GaussianBlur(src, dst, image.Pt(ksize, ksize), 0, 0, gocv.BorderReflect101)
	})
}

// Canny returns the edge map of g: 255 on edges, 0 elsewhere.
func Canny(g *image.Gray, low, high float64) (*image.Gray, error) {
	return grayOp(g, "canny", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Canny(src, dst, float32(low), float32(high))
	})
}

// Sobel returns the (dx, dy) derivative of g with a ksize aperture, every
// value multiplied by scale.
func Sobel(g *image.Gray, dx, dy, ksize int, scale float64) ([]float64, error) {
	return floatOp(g, "sobel", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Sobel(src, dst, gocv.MatTypeCV64F, dx, dy, ksize, scale, 0, gocv.BorderReflect101)
	})
}

// Laplacian applies the 4-neighbour Laplacian operator to g.
func Laplacian(g *image.Gray) ([]float64, error) {
	return floatOp(g, "laplacian", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Laplacian(src, dst, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderReflect101)
	})
}

// Kernel is a dense square correlation kernel.
type Kernel struct {
	Size int
	Data []float64
}

// L1 returns the sum of absolute coefficients.
func (k Kernel) L1() float64 {
	var s float64
	for _, v := range k.Data {
		s += math.Abs(v)
	}
	return s
}

func (k Kernel) mat() gocv.Mat {
	m := gocv.NewMatWithSize(k.Size, k.Size, gocv.MatTypeCV64F)
	for y := range k.Size {
		for x := range k.Size {
			m.SetDoubleAt(y, x, k.Data[y*k.Size+x])
		}
	}
	return m
}

// GaborKernel builds a size x size real Gabor filter with zero phase.
// theta is in radians, lambda is the wavelength in pixels and gamma the
// spatial aspect ratio.
func GaborKernel(size int, sigma, theta, lambda, gamma float64) (Kernel, error) {
	m := gocv.GetGaborKernel(image.Pt(size, size), sigma, theta, lambda, gamma, 0, gocv.MatTypeCV64F)
	defer m.Close()
	data, err := Float64s(m)
	if err != nil {
		return Kernel{}, fmt.Errorf("gabor kernel: %w", err)
	}
	if len(data) != size*size {
		return Kernel{}, fmt.Errorf("gabor kernel has %d coefficients, want %d", len(data), size*size)
	}
	return Kernel{Size: size, Data: data}, nil
}

// Filter correlates g with k. Borders mirror.
func Filter(g *image.Gray, k Kernel) ([]float64, error) {
	km := k.mat()
	defer km.Close()
	return floatOp(g, "filter", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Filter2D(src, dst, gocv.MatTypeCV64F, km, image.Pt(-1, -1), 0, gocv.BorderReflect101)
	})
}
