package features

import (
	"image"
	"math"

	"github.com/kozaktomas/facegate/internal/imaging"
)

func binomial(n int) []float64 {
	row := []float64{1}
	for range n {
		next := make([]float64, len(row)+1)
		for i, v := range row {
			next[i] += v
			next[i+1] += v
		}
		row = next
	}
	return row
}

// sobelScale returns the factor that maps a black to white step edge to
// unit magnitude for an OpenCV Sobel aperture of the given size, so every
// kernel size shares one scale.
func sobelScale(size int) float64 {
	var smoothSum, derivPos float64
	for _, v := range binomial(size - 1) {
		smoothSum += v
	}
	// The derivative kernel is binomial(size-3) convolved with [-1 0 1].
	base := binomial(size - 3)
	deriv := make([]float64, size)
	for i, v := range base {
		deriv[i] -= v
		deriv[i+2] += v
	}
	for _, v := range deriv {
		if v > 0 {
			derivPos += v
		}
	}
	return 1 / (smoothSum * derivPos * 255)
}

// orientation folds the gradient direction onto [0, pi): opposite
// gradients describe the same edge.
func orientation(gx, gy float64) float64 {
	theta := math.Atan2(gy, gx)
	if theta < 0 {
		theta += math.Pi
	}
	if theta >= math.Pi {
		theta -= math.Pi
	}
	return theta
}

// gradientFeatures computes, per Sobel aperture, the mean gradient
// magnitude of every cell followed by one magnitude-weighted orientation
// histogram per cell, each normalised by its own sum. Every component is
// centred on its mean over the cells.
func (e *Extractor) gradientFeatures(g *image.Gray) ([]float64, error) {
	n := e.grid.cells
	bins := e.cfg.DirectionBins
	out := make([]float64, 0, e.layout[Gradient])

	for i, k := range e.cfg.GradientKernels {
		gx, err := imaging.Sobel(g, 1, 0, k, e.sobel[i])
		if err != nil {
			return nil, err
		}
		gy, err := imaging.Sobel(g, 0, 1, k, e.sobel[i])
		if err != nil {
			return nil, err
		}

		mag := make([]float64, len(gx))
		hist := make([]float64, bins*n) // bin-major
		for p := range gx {
			mag[p] = math.Hypot(gx[p], gy[p])
			b := histBin(orientation(gx[p], gy[p]), 0, math.Pi, bins)
			hist[b*n+e.grid.of[p]] += mag[p]
		}
		for c := range n {
			var sum float64
			for b := range bins {
				sum += hist[b*n+c]
			}
			for b := range bins {
				hist[b*n+c] /= sum + epsilon
			}
		}

		block := append(e.grid.pool(mag), hist...)
		centerBlocks(block, n)
		out = append(out, block...)
	}
	return out, nil
}
