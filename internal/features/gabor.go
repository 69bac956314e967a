package features

import (
	"image"
	"math"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// gaborFeatures filters g with every bank entry and records the mean
// absolute response per cell, scaled to [0, 1] by the kernel's L1 norm and
// centred on its mean over the cells.
func (e *Extractor) gaborFeatures(g *image.Gray) ([]float64, error) {
	out := make([]float64, 0, e.layout[Gabor])
	for _, f := range e.gabor {
		resp, err := imaging.Filter(g, f.kernel)
		if err != nil {
			return nil, err
		}
		scale := 1 / (f.l1 * 255)
		for i, v := range resp {
			resp[i] = math.Abs(v) * scale
		}
		energy := e.grid.pool(resp)
		centerBlocks(energy, e.grid.cells)
		out = append(out, energy...)
	}
	return out, nil
}
