package features

import (
	"image"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// regionalFeatures records mean, standard deviation, min, max, median and
// quartiles of every grid cell on the [0, 1] intensity scale. Values are
// laid out statistic by statistic, each centred on its mean over the cells.
func (e *Extractor) regionalFeatures(g *image.Gray) []float64 {
	n := e.grid.cells
	values := make([][]float64, n)
	w := g.Bounds().Dx()
	for p, c := range e.grid.of {
		values[c] = append(values[c], float64(g.Pix[(p/w)*g.Stride+p%w])/255)
	}

	out := make([]float64, regionalStats*n)
	for c, cell := range values {
		mean, std := imaging.MeanStd(cell)
		sorted := imaging.SortedCopy(cell)
		stats := [regionalStats]float64{
			mean,
			std,
			sorted[0],
			sorted[len(sorted)-1],
			imaging.Percentile(sorted, 50),
			imaging.Percentile(sorted, 25),
			imaging.Percentile(sorted, 75),
		}
		for s, v := range stats {
			out[s*n+c] = v
		}
	}
	centerBlocks(out, n)
	return out
}
