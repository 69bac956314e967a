// Package locator finds face regions in grey images and picks the one the
// recognition pipeline works on.
package locator

import (
	"errors"
	"image"

	"go.uber.org/zap"
)

// DefaultPadding is the fraction of the shorter box side added around the
// selected face before cropping.
const DefaultPadding = 0.10

// Locator returns candidate face boxes for img. An empty result is the
// normal "no face" outcome, not an error.
type Locator interface {
	Locate(img *image.Gray) ([]image.Rectangle, error)
}

// FullFrame treats the whole image as the face. It serves callers that
// already hand over tight face crops.
type FullFrame struct{}

// Locate returns the image bounds unless the image is empty.
func (FullFrame) Locate(img *image.Gray) ([]image.Rectangle, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	return []image.Rectangle{img.Bounds()}, nil
}

// FullFrameFallback is FullFrame for the end of a Chain: every time it
// fires it logs that no face was detected and the whole image is used.
type FullFrameFallback struct {
	Log *zap.Logger
}

// Locate implements Locator.
func (f FullFrameFallback) Locate(img *image.Gray) ([]image.Rectangle, error) {
	boxes, err := FullFrame{}.Locate(img)
	if len(boxes) > 0 && f.Log != nil {
		f.Log.Warn("no face detected, using the full frame",
			zap.Int("width", boxes[0].Dx()),
			zap.Int("height", boxes[0].Dy()))
	}
	return boxes, err
}

// Build assembles the configured locator: the pigo cascade at cascadePath,
// followed by a logged full-frame fallback when fullFrame is set. Without
// either there is no way to locate a face.
func Build(cascadePath string, fullFrame bool, log *zap.Logger) (Locator, error) {
	var chain Chain
	if cascadePath != "" {
		detector, err := LoadPigo(cascadePath)
		if err != nil {
			return nil, err
		}
		chain = append(chain, detector)
	}
	if fullFrame {
		chain = append(chain, FullFrameFallback{Log: log})
	}
	switch len(chain) {
	case 0:
		return nil, errors.New("no face locator configured: set a cascade file or enable the full-frame fallback")
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// Chain runs locators in order and returns the first non-empty result, so a
// strict primary detector can fall back to a more permissive one.
type Chain []Locator

// Locate implements Locator.
func (c Chain) Locate(img *image.Gray) ([]image.Rectangle, error) {
	for _, l := range c {
		boxes, err := l.Locate(img)
		if err != nil {
			return nil, err
		}
		if len(boxes) > 0 {
			return boxes, nil
		}
	}
	return nil, nil
}

// Largest returns the box with the greatest area. The first one wins ties.
func Largest(boxes []image.Rectangle) (image.Rectangle, bool) {
	best := -1
	bestArea := -1
	for i, b := range boxes {
		if b.Empty() {
			continue
		}
		if a := b.Dx() * b.Dy(); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}
	return boxes[best], true
}

// Pad grows box by fraction of its shorter side on every edge and clamps
// the result to bounds.
func Pad(box, bounds image.Rectangle, fraction float64) image.Rectangle {
	p := int(float64(min(box.Dx(), box.Dy())) * fraction)
	grown := image.Rect(box.Min.X-p, box.Min.Y-p, box.Max.X+p, box.Max.Y+p)
	return grown.Intersect(bounds)
}

// SelectFace picks the largest box and pads it. ok is false when there is
// nothing to select.
func SelectFace(boxes []image.Rectangle, bounds image.Rectangle, padding float64) (image.Rectangle, bool) {
	box, ok := Largest(boxes)
	if !ok {
		return image.Rectangle{}, false
	}
	face := Pad(box, bounds, padding)
	if face.Empty() {
		return image.Rectangle{}, false
	}
	return face, true
}
