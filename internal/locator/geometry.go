package locator

import (
	"image"
	"sort"
)

// Detection is a scored candidate box.
type Detection struct {
	Box   image.Rectangle
	Score float64
}

// IoU calculates Intersection over Union between two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()) + float64(b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// SuppressOverlaps keeps the highest-scoring detection of every group whose
// pairwise IoU exceeds threshold. Output is ordered by score, descending.
func SuppressOverlaps(dets []Detection, threshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var kept []Detection
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if IoU(d.Box, k.Box) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
