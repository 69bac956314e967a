package quality

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func uniform(size int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// checker returns a checkerboard alternating lo and hi every cell pixels.
func checker(size, cell int, lo, hi uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := lo
			if (x/cell+y/cell)%2 == 0 {
				v = hi
			}
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

// ramp returns a horizontal gradient: well lit, contrasted but with no
// second-order detail.
func ramp(size int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			g.SetGray(x, y, color.Gray{Y: uint8(40 + x*170/size)})
		}
	}
	return g
}

func TestGate_Check(t *testing.T) {
	gate := New(DefaultThresholds())

	tests := []struct {
		name    string
		img     *image.Gray
		wantErr error
	}{
		{"too small", checker(40, 2, 40, 200), ErrFaceTooSmall},
		{"all black", uniform(100, 0), ErrPoorLighting},
		{"all white", uniform(100, 255), ErrPoorLighting},
		{"uniform grey", uniform(100, 128), ErrLowContrast},
		{"smooth ramp", ramp(100), ErrTooBlurry},
		{"dark texture", checker(100, 1, 0, 40), ErrPoorLighting},
		{"faint texture", checker(100, 1, 118, 138), ErrLowContrast},
		{"good", checker(100, 2, 40, 200), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Check(tt.img)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGate_ReportScore(t *testing.T) {
	gate := New(DefaultThresholds())

	r, err := gate.Check(checker(100, 2, 40, 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Score != 1 {
		t.Errorf("sharp high-contrast crop should score 1, got %v", r.Score)
	}
	if r.Brightness != 120 {
		t.Errorf("expected brightness 120, got %v", r.Brightness)
	}
	if r.Contrast != 80 {
		t.Errorf("expected contrast 80, got %v", r.Contrast)
	}

	r, _ = gate.Check(uniform(100, 128))
	if r.Score != 0 {
		t.Errorf("flat crop should score 0, got %v", r.Score)
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	bad := DefaultThresholds()
	bad.MinBrightness = 240
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted brightness band")
	}

	bad = DefaultThresholds()
	bad.MinFaceSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero face size")
	}
}
