package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// meanStdDev reads the first-channel mean and standard deviation of m.
func meanStdDev(m gocv.Mat) (mean, std float64) {
	mm, sm := gocv.NewMat(), gocv.NewMat()
	defer mm.Close()
	defer sm.Close()
	gocv.MeanStdDev(m, &mm, &sm)
	return mm.GetDoubleAt(0, 0), sm.GetDoubleAt(0, 0)
}

// GrayMeanStd returns mean intensity and its standard deviation for g.
func GrayMeanStd(g *image.Gray) (mean, std float64, err error) {
	m, err := ToMat(g)
	if err != nil {
		return 0, 0, fmt.Errorf("mean/stddev: %w", err)
	}
	defer m.Close()
	mean, std = meanStdDev(m)
	return mean, std, nil
}

// LaplacianVariance is the variance of the Laplacian response, a standard
// sharpness measure: blurry crops have little second-order energy.
func LaplacianVariance(g *image.Gray) (float64, error) {
	var v float64
	err := run(g, "laplacian", func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Laplacian(src, dst, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderReflect101)
	}, func(dst gocv.Mat) error {
		_, std := meanStdDev(dst)
		v = std * std
		return nil
	})
	return v, err
}

// MeanStd returns the mean and population standard deviation of values.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

// Percentile returns the q-th percentile (0-100) of sorted values using
// linear interpolation between the closest ranks.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// SortedCopy returns a sorted copy of values.
func SortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
