package features

import (
	"errors"
	"fmt"
)

// EdgeThreshold is a Canny hysteresis threshold pair.
type EdgeThreshold struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Config selects the enabled families and their parameters.
type Config struct {
	// Resolution is the side of the square the crop is resized to.
	Resolution int      `yaml:"resolution"`
	Families   []Family `yaml:"families"`

	LBPRadii  []int `yaml:"lbp_radii"`
	LBPPoints []int `yaml:"lbp_points"`

	GradientKernels []int `yaml:"gradient_kernels"`
	// DirectionBins splits the unsigned gradient orientation range [0, pi).
	DirectionBins int `yaml:"direction_bins"`

	// GridSize is the side of the cell grid every family except LBP pools
	// its per-pixel responses over.
	GridSize int `yaml:"grid_size"`

	GaborOrientations []float64 `yaml:"gabor_orientations"` // degrees
	GaborFrequencies  []float64 `yaml:"gabor_frequencies"`  // cycles per pixel
	GaborKernelSize   int       `yaml:"gabor_kernel_size"`
	GaborSigma        float64   `yaml:"gabor_sigma"`
	GaborGamma        float64   `yaml:"gabor_gamma"`

	EdgeThresholds []EdgeThreshold `yaml:"edge_thresholds"`
}

// maxLBPBins caps the per-configuration LBP histogram; wider codes fold
// onto their low byte.
const maxLBPBins = 256

// regionalStats is the number of statistics per grid cell.
const regionalStats = 7

// DefaultConfig returns the full five-family configuration.
func DefaultConfig() Config {
	return Config{
		Resolution:        256,
		Families:          append([]Family(nil), AllFamilies...),
		LBPRadii:          []int{1, 2, 3, 4, 5},
		LBPPoints:         []int{8, 16},
		GradientKernels:   []int{3, 5, 7},
		DirectionBins:     8,
		GridSize:          16,
		GaborOrientations: []float64{0, 45, 90, 135},
		GaborFrequencies:  []float64{0.1, 0.3, 0.5},
		GaborKernelSize:   21,
		GaborSigma:        5,
		GaborGamma:        0.5,
		EdgeThresholds: []EdgeThreshold{
			{Low: 50, High: 150},
			{Low: 100, High: 200},
			{Low: 150, High: 250},
		},
	}
}

// Enabled reports whether f is switched on.
func (c Config) Enabled(f Family) bool {
	for _, x := range c.Families {
		if x == f {
			return true
		}
	}
	return false
}

// Validate checks the configuration for values that would produce empty
// or meaningless vectors.
func (c Config) Validate() error {
	if len(c.Families) == 0 {
		return errors.New("no feature families enabled")
	}
	seen := make(map[Family]bool)
	for _, f := range c.Families {
		if _, err := ParseFamily(string(f)); err != nil {
			return err
		}
		if seen[f] {
			return fmt.Errorf("feature family %s listed twice", f)
		}
		seen[f] = true
	}
	if c.Resolution < 16 {
		return fmt.Errorf("resolution %d too small", c.Resolution)
	}
	if c.GridSize <= 0 || c.GridSize > c.Resolution {
		return fmt.Errorf("invalid grid size %d", c.GridSize)
	}

	if c.Enabled(LBP) {
		if len(c.LBPRadii) == 0 || len(c.LBPPoints) == 0 {
			return errors.New("LBP needs at least one radius and one point count")
		}
		for _, r := range c.LBPRadii {
			if r <= 0 || 2*r >= c.Resolution {
				return fmt.Errorf("invalid LBP radius %d", r)
			}
		}
		for _, p := range c.LBPPoints {
			if p <= 0 || p > 32 {
				return fmt.Errorf("invalid LBP point count %d", p)
			}
		}
	}
	if c.Enabled(Gradient) {
		if len(c.GradientKernels) == 0 || c.DirectionBins <= 0 {
			return errors.New("gradient family needs kernels and direction bins")
		}
		for _, k := range c.GradientKernels {
			if k < 3 || k%2 == 0 || k > 31 {
				return fmt.Errorf("gradient kernel size %d must be odd and within [3, 31]", k)
			}
		}
	}
	if c.Enabled(Gabor) {
		if len(c.GaborOrientations) == 0 || len(c.GaborFrequencies) == 0 {
			return errors.New("gabor family needs orientations and frequencies")
		}
		if c.GaborKernelSize < 3 || c.GaborKernelSize%2 == 0 {
			return fmt.Errorf("gabor kernel size %d must be odd and at least 3", c.GaborKernelSize)
		}
		if c.GaborSigma <= 0 || c.GaborGamma <= 0 {
			return errors.New("gabor sigma and gamma must be positive")
		}
		for _, f := range c.GaborFrequencies {
			if f <= 0 {
				return fmt.Errorf("invalid gabor frequency %v", f)
			}
		}
	}
	if c.Enabled(Edge) {
		if len(c.EdgeThresholds) == 0 {
			return errors.New("edge family needs threshold pairs")
		}
		for _, t := range c.EdgeThresholds {
			if t.Low < 0 || t.High < t.Low {
				return fmt.Errorf("invalid edge thresholds (%v, %v)", t.Low, t.High)
			}
		}
	}
	return nil
}

// Layout returns the vector lengths this configuration produces.
func (c Config) Layout() Layout {
	cells := c.GridSize * c.GridSize
	l := make(Layout)
	for _, f := range c.Families {
		switch f {
		case LBP:
			n := 0
			for range c.LBPRadii {
				for _, p := range c.LBPPoints {
					n += lbpBins(p)
				}
			}
			l[f] = n
		case Gradient:
			l[f] = len(c.GradientKernels) * (1 + c.DirectionBins) * cells
		case Regional:
			l[f] = regionalStats * cells
		case Gabor:
			l[f] = len(c.GaborOrientations) * len(c.GaborFrequencies) * cells
		case Edge:
			l[f] = len(c.EdgeThresholds) * cells
		}
	}
	return l
}

func lbpBins(points int) int {
	if points >= 8 {
		return maxLBPBins
	}
	return 1 << points
}
