package features

import (
	"fmt"
	"image"
	"math"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// blurKernelSize is the aperture of the noise-suppression blur.
const blurKernelSize = 3

// gaborFilter is one bank entry with its L1 norm precomputed.
type gaborFilter struct {
	kernel imaging.Kernel
	l1     float64
}

// Extractor computes feature bundles. Its tables are built once and only
// read afterwards, so one Extractor can serve concurrent callers.
type Extractor struct {
	cfg    Config
	layout Layout
	lbp    []lbpTable
	sobel  []float64
	gabor  []gaborFilter
	grid   cellGrid
}

// NewExtractor validates cfg and precomputes the LBP offset tables, Sobel
// scales, the Gabor filter bank and the pixel to cell map.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature config: %w", err)
	}
	e := &Extractor{
		cfg:    cfg,
		layout: cfg.Layout(),
		grid:   newCellGrid(cfg.Resolution, cfg.GridSize),
	}

	if cfg.Enabled(LBP) {
		for _, r := range cfg.LBPRadii {
			for _, p := range cfg.LBPPoints {
				e.lbp = append(e.lbp, newLBPTable(r, p))
			}
		}
	}
	if cfg.Enabled(Gradient) {
		for _, k := range cfg.GradientKernels {
			e.sobel = append(e.sobel, sobelScale(k))
		}
	}
	if cfg.Enabled(Gabor) {
		for _, theta := range cfg.GaborOrientations {
			for _, freq := range cfg.GaborFrequencies {
				k, err := imaging.GaborKernel(cfg.GaborKernelSize, cfg.GaborSigma, theta*math.Pi/180, 1/freq, cfg.GaborGamma)
				if err != nil {
					return nil, err
				}
				e.gabor = append(e.gabor, gaborFilter{kernel: k, l1: k.L1()})
			}
		}
	}
	return e, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Layout returns the vector lengths every bundle from this extractor has.
func (e *Extractor) Layout() Layout {
	return e.layout
}

// Preprocess resizes the crop to the working resolution, equalises its
// histogram and applies a light blur.
func (e *Extractor) Preprocess(crop *image.Gray) (*image.Gray, error) {
	resized, err := imaging.Resize(crop, e.cfg.Resolution, e.cfg.Resolution)
	if err != nil {
		return nil, err
	}
	equalized, err := imaging.EqualizeHist(resized)
	if err != nil {
		return nil, err
	}
	return imaging.GaussianBlur(equalized, blurKernelSize)
}

// Extract computes the enabled families for crop. The result is validated:
// empty or non-finite vectors fail with ErrExtraction.
func (e *Extractor) Extract(crop *image.Gray) (Bundle, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty crop", ErrExtraction)
	}

	prep, err := e.Preprocess(crop)
	if err != nil {
		return nil, fmt.Errorf("%w: preprocessing: %w", ErrExtraction, err)
	}

	b := make(Bundle, len(e.cfg.Families))
	for _, f := range AllFamilies {
		if !e.cfg.Enabled(f) {
			continue
		}
		var v []float64
		switch f {
		case LBP:
			v = e.lbpFeatures(prep)
		case Gradient:
			v, err = e.gradientFeatures(prep)
		case Regional:
			v = e.regionalFeatures(prep)
		case Gabor:
			v, err = e.gaborFeatures(prep)
		case Edge:
			v, err = e.edgeFeatures(prep)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, f, err)
		}
		if err := checkVector(f, v); err != nil {
			return nil, err
		}
		if len(v) != e.layout[f] {
			return nil, fmt.Errorf("%w: %s produced %d values, expected %d", ErrExtraction, f, len(v), e.layout[f])
		}
		b[f] = v
	}
	return b, nil
}
