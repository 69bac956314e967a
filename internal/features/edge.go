package features

import (
	"image"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// edgeFeatures runs Canny once per threshold pair and records the fraction
// of every cell's pixels marked as edges, centred on its mean over the
// cells.
func (e *Extractor) edgeFeatures(g *image.Gray) ([]float64, error) {
	out := make([]float64, 0, e.layout[Edge])
	marked := make([]float64, len(e.grid.of))
	for _, t := range e.cfg.EdgeThresholds {
		edges, err := imaging.Canny(g, t.Low, t.High)
		if err != nil {
			return nil, err
		}
		for i, v := range edges.Pix[:len(marked)] {
			marked[i] = 0
			if v != 0 {
				marked[i] = 1
			}
		}
		density := e.grid.pool(marked)
		centerBlocks(density, e.grid.cells)
		out = append(out, density...)
	}
	return out, nil
}
