// Package quality rejects face crops that are too small, blurry, badly lit
// or flat before any features are computed.
package quality

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// Rejection reasons, checked in this order.
var (
	ErrFaceTooSmall = errors.New("face too small")
	ErrTooBlurry    = errors.New("face too blurry")
	ErrPoorLighting = errors.New("poor lighting")
	ErrLowContrast  = errors.New("low contrast")
)

// contrastNorm scales the standard deviation into the quality score.
const contrastNorm = 50.0

// Thresholds configure the gate.
type Thresholds struct {
	MinFaceSize   int     `yaml:"min_face_size"`
	BlurThreshold float64 `yaml:"blur_threshold"`
	MinBrightness float64 `yaml:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness"`
	MinContrast   float64 `yaml:"min_contrast"`
}

// DefaultThresholds returns the standard gate settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFaceSize:   50,
		BlurThreshold: 100,
		MinBrightness: 30,
		MaxBrightness: 230,
		MinContrast:   20,
	}
}

// Validate checks that the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.MinFaceSize <= 0 {
		return errors.New("min_face_size must be positive")
	}
	if t.BlurThreshold <= 0 {
		return errors.New("blur_threshold must be positive")
	}
	if t.MinBrightness < 0 || t.MaxBrightness > 255 || t.MinBrightness >= t.MaxBrightness {
		return fmt.Errorf("invalid brightness band [%v, %v]", t.MinBrightness, t.MaxBrightness)
	}
	if t.MinContrast < 0 {
		return errors.New("min_contrast must not be negative")
	}
	return nil
}

// Report carries the measurements behind a gate decision.
type Report struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Sharpness  float64 `json:"sharpness"`  // Laplacian variance
	Brightness float64 `json:"brightness"` // mean intensity
	Contrast   float64 `json:"contrast"`   // intensity standard deviation
	Score      float64 `json:"score"`      // combined score in [0, 1]
}

// Gate applies Thresholds to face crops.
type Gate struct {
	t Thresholds
}

// New creates a gate.
func New(t Thresholds) *Gate {
	return &Gate{t: t}
}

// Thresholds returns the gate configuration.
func (g *Gate) Thresholds() Thresholds {
	return g.t
}

// Check measures crop and returns the first failed check, if any. The
// report is filled as far as the checks got and always carries a score.
func (g *Gate) Check(crop *image.Gray) (Report, error) {
	b := crop.Bounds()
	r := Report{Width: b.Dx(), Height: b.Dy()}

	if min(r.Width, r.Height) < g.t.MinFaceSize {
		return r, fmt.Errorf("%w: %dx%d, minimum %d px", ErrFaceTooSmall, r.Width, r.Height, g.t.MinFaceSize)
	}

	var err error
	if r.Sharpness, err = imaging.LaplacianVariance(crop); err != nil {
		return r, fmt.Errorf("measuring sharpness: %w", err)
	}
	if r.Brightness, r.Contrast, err = imaging.GrayMeanStd(crop); err != nil {
		return r, fmt.Errorf("measuring brightness: %w", err)
	}
	r.Score = math.Min(1, r.Sharpness/g.t.BlurThreshold*0.6+r.Contrast/contrastNorm*0.4)

	// A perfectly flat crop has no detail to judge sharpness on; it is
	// reported by the photometric checks instead.
	flat := r.Contrast == 0
	if !flat && r.Sharpness <= g.t.BlurThreshold {
		return r, fmt.Errorf("%w: sharpness %.1f, need above %.1f", ErrTooBlurry, r.Sharpness, g.t.BlurThreshold)
	}
	if r.Brightness < g.t.MinBrightness || r.Brightness > g.t.MaxBrightness {
		return r, fmt.Errorf("%w: mean brightness %.1f outside [%.0f, %.0f]",
			ErrPoorLighting, r.Brightness, g.t.MinBrightness, g.t.MaxBrightness)
	}
	if r.Contrast <= g.t.MinContrast {
		return r, fmt.Errorf("%w: contrast %.1f, need above %.1f", ErrLowContrast, r.Contrast, g.t.MinContrast)
	}
	return r, nil
}
