package locator

import (
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/kozaktomas/facegate/internal/imaging"
)

// Pigo detection defaults. Scores below MinScore are discarded as noise.
const (
	pigoMinSize      = 50
	pigoMaxSize      = 1000
	pigoShiftFactor  = 0.1
	pigoScaleFactor  = 1.1
	pigoClusterIoU   = 0.2
	pigoMinScore     = 5.0
	pigoSuppressIoU  = 0.3
	minCascadeLength = 16
)

// Pigo locates faces with a pixel-intensity-comparison cascade.
type Pigo struct {
	classifier *pigo.Pigo

	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	MinScore    float64
	// Angle rotates the cascade: 0 is upright, 1.0 is a full turn.
	Angle float64
}

// NewPigo unpacks a facefinder cascade.
func NewPigo(cascade []byte) (*Pigo, error) {
	if len(cascade) < minCascadeLength {
		return nil, errors.New("cascade data too short")
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error reading the cascade file: %w", err)
	}
	return &Pigo{
		classifier:  classifier,
		MinSize:     pigoMinSize,
		MaxSize:     pigoMaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		MinScore:    pigoMinScore,
	}, nil
}

// LoadPigo reads the cascade file at path.
func LoadPigo(path string) (*Pigo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading cascade: %w", err)
	}
	return NewPigo(data)
}

// Locate implements Locator.
func (p *Pigo) Locate(img *image.Gray) ([]image.Rectangle, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	g := imaging.ToGray(img)
	cols, rows := g.Bounds().Dx(), g.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     p.MinSize,
		MaxSize:     min(p.MaxSize, max(cols, rows)),
		ShiftFactor: p.ShiftFactor,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: g.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    g.Stride,
		},
	}

	dets := p.classifier.RunCascade(params, p.Angle)
	dets = p.classifier.ClusterDetections(dets, pigoClusterIoU)

	kept := SuppressOverlaps(frameDetections(dets, img.Bounds(), p.MinScore), pigoSuppressIoU)
	boxes := make([]image.Rectangle, len(kept))
	for i, d := range kept {
		boxes[i] = d.Box
	}
	return boxes, nil
}

// frameDetections turns cascade hits on the origin-anchored copy of frame
// into scored boxes in frame's own coordinates, dropping weak hits.
func frameDetections(dets []pigo.Detection, frame image.Rectangle, minScore float64) []Detection {
	local := image.Rect(0, 0, frame.Dx(), frame.Dy())
	var scored []Detection
	for _, d := range dets {
		if float64(d.Q) < minScore {
			continue
		}
		half := d.Scale / 2
		box := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).Intersect(local)
		if box.Empty() {
			continue
		}
		scored = append(scored, Detection{Box: box.Add(frame.Min), Score: float64(d.Q)})
	}
	return scored
}
