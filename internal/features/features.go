// Package features computes the five descriptor families that make up a
// face's feature bundle.
package features

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrExtraction reports a vector that came out empty or non-finite.
var ErrExtraction = errors.New("feature extraction failed")

// epsilon keeps histogram normalisation finite for empty histograms.
const epsilon = 1e-7

// Family names a descriptor family.
type Family string

const (
	LBP      Family = "LBP"
	Gradient Family = "GRADIENT"
	Regional Family = "REGIONAL"
	Gabor    Family = "GABOR"
	Edge     Family = "EDGE"
)

// AllFamilies lists every family in canonical order.
var AllFamilies = []Family{LBP, Gradient, Regional, Gabor, Edge}

// ParseFamily resolves a family name case-insensitively.
func ParseFamily(s string) (Family, error) {
	f := Family(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(AllFamilies, f) {
		return "", fmt.Errorf("unknown feature family %q", s)
	}
	return f, nil
}

// Bundle maps each enabled family to its feature vector.
type Bundle map[Family][]float64

// Families returns the families present in b in canonical order.
func (b Bundle) Families() []Family {
	var out []Family
	for _, f := range AllFamilies {
		if _, ok := b[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Layout returns the vector length of every family in b.
func (b Bundle) Layout() Layout {
	l := make(Layout, len(b))
	for f, v := range b {
		l[f] = len(v)
	}
	return l
}

// Clone returns a deep copy of b.
func (b Bundle) Clone() Bundle {
	out := make(Bundle, len(b))
	for f, v := range b {
		out[f] = slices.Clone(v)
	}
	return out
}

// Validate checks that every vector is non-empty and finite.
func (b Bundle) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: bundle has no families", ErrExtraction)
	}
	for _, f := range b.Families() {
		if err := checkVector(f, b[f]); err != nil {
			return err
		}
	}
	return nil
}

func checkVector(f Family, v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: %s vector is empty", ErrExtraction, f)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s[%d] is %v", ErrExtraction, f, i, x)
		}
	}
	return nil
}

// Layout maps a family to its vector length.
type Layout map[Family]int

// Equal reports whether both layouts have the same families and lengths.
func (l Layout) Equal(o Layout) bool {
	if len(l) != len(o) {
		return false
	}
	for f, n := range l {
		if m, ok := o[f]; !ok || m != n {
			return false
		}
	}
	return true
}

// String renders the layout in canonical family order, e.g. "LBP:2560 EDGE:3".
func (l Layout) String() string {
	var parts []string
	for _, f := range AllFamilies {
		if n, ok := l[f]; ok {
			parts = append(parts, fmt.Sprintf("%s:%d", f, n))
		}
	}
	return strings.Join(parts, " ")
}

// normalizeHist divides h by its own sum.
func normalizeHist(h []float64) {
	var sum float64
	for _, v := range h {
		sum += v
	}
	for i := range h {
		h[i] /= sum + epsilon
	}
}

// histBin maps v in [lo, hi] onto one of n bins, clamping out-of-range
// values into the edge bins.
func histBin(v, lo, hi float64, n int) int {
	b := int((v - lo) / (hi - lo) * float64(n))
	return max(0, min(n-1, b))
}

// cellGrid assigns every pixel of a size x size image to one of grid x grid
// cells. Spatial families pool their per-pixel responses per cell.
type cellGrid struct {
	cells  int
	of     []int     // pixel index to cell index
	pixels []float64 // pixel count per cell
}

func newCellGrid(size, grid int) cellGrid {
	g := cellGrid{
		cells:  grid * grid,
		of:     make([]int, size*size),
		pixels: make([]float64, grid*grid),
	}
	for y := range size {
		row := y * grid / size
		for x := range size {
			c := row*grid + x*grid/size
			g.of[y*size+x] = c
			g.pixels[c]++
		}
	}
	return g
}

// pool sums values per cell and divides by the cell's pixel count.
func (g cellGrid) pool(values []float64) []float64 {
	out := make([]float64, g.cells)
	for i, v := range values {
		out[g.of[i]] += v
	}
	for c := range out {
		out[c] /= g.pixels[c]
	}
	return out
}

// centerBlocks subtracts from each consecutive block of n values its own
// mean, leaving how every cell deviates from the face-wide average.
func centerBlocks(v []float64, n int) {
	for start := 0; start+n <= len(v); start += n {
		block := v[start : start+n]
		var mean float64
		for _, x := range block {
			mean += x
		}
		mean /= float64(n)
		for i := range block {
			block[i] -= mean
		}
	}
}
