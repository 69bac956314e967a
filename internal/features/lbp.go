package features

import (
	"image"
	"math"
)

// lbpTable holds the neighbour sampling pattern for one (radius, points)
// configuration as row/column offsets, computed once instead of per pixel.
type lbpTable struct {
	radius int
	points int
	bins   int
	dRow   []int
	dCol   []int
}

func newLBPTable(radius, points int) lbpTable {
	t := lbpTable{
		radius: radius,
		points: points,
		bins:   lbpBins(points),
		dRow:   make([]int, points),
		dCol:   make([]int, points),
	}
	for k := range points {
		angle := 2 * math.Pi * float64(k) / float64(points)
		// Truncation toward zero picks the nearest pixel on the inner side.
		t.dRow[k] = int(float64(radius) * math.Cos(angle))
		t.dCol[k] = int(float64(radius) * math.Sin(angle))
	}
	return t
}

// histogram computes the L1-normalised pattern histogram of g's interior.
// Neighbour k sets bit k, so folding a 16-point code onto its low byte
// keeps neighbours 0 to 7.
func (t lbpTable) histogram(g *image.Gray) []float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	hist := make([]float64, t.bins)
	mask := t.bins - 1

	for row := t.radius; row < h-t.radius; row++ {
		for col := t.radius; col < w-t.radius; col++ {
			center := g.Pix[g.PixOffset(b.Min.X+col, b.Min.Y+row)]
			code := 0
			for k := range t.points {
				r := max(0, min(h-1, row+t.dRow[k]))
				c := max(0, min(w-1, col+t.dCol[k]))
				if g.Pix[g.PixOffset(b.Min.X+c, b.Min.Y+r)] >= center {
					code |= 1 << k
				}
			}
			hist[code&mask]++
		}
	}

	normalizeHist(hist)
	return hist
}

func (e *Extractor) lbpFeatures(g *image.Gray) []float64 {
	out := make([]float64, 0, e.layout[LBP])
	for _, t := range e.lbp {
		out = append(out, t.histogram(g)...)
	}
	return out
}
