package transition

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestSynthesizeLinearBlend(t *testing.T) {
	a := solid(2, 2, color.NRGBA{R: 0, G: 200, B: 0, A: 255})
	b := solid(2, 2, color.NRGBA{R: 200, G: 0, B: 100, A: 255})

	frames, err := Synthesize(a, b, 3, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	want := []color.NRGBA{
		{R: 50, G: 150, B: 25, A: 255},
		{R: 100, G: 100, B: 50, A: 255},
		{R: 150, G: 50, B: 75, A: 255},
	}
	for i, frame := range frames {
		if got := frame.NRGBAAt(1, 1); got != want[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, got, want[i])
		}
		if frame == a || frame == b {
			t.Fatal("expected freshly allocated frames")
		}
	}
	if a.NRGBAAt(0, 0).G != 200 || b.NRGBAAt(0, 0).R != 200 {
		t.Fatal("inputs were modified")
	}
}

func TestSynthesizeBlendsAlpha(t *testing.T) {
	a := solid(1, 1, color.NRGBA{})
	b := solid(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	frames, err := Synthesize(a, b, 1, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := frames[0].NRGBAAt(0, 0); got.A != 128 {
		t.Fatalf("expected half alpha, got %+v", got)
	}
}

func TestSynthesizeWithCurve(t *testing.T) {
	a := solid(1, 1, color.NRGBA{A: 255})
	b := solid(1, 1, color.NRGBA{R: 255, A: 255})
	curve, err := CurveByName("in-out-quad")
	if err != nil {
		t.Fatalf("CurveByName: %v", err)
	}
	frames, err := Synthesize(a, b, 3, curve)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	// in-out-quad(0.25) = 0.125, (0.5) = 0.5, (0.75) = 0.875
	for i, want := range []uint8{32, 128, 223} {
		if got := frames[i].NRGBAAt(0, 0).R; got != want {
			t.Fatalf("frame %d: got %d want %d", i, got, want)
		}
	}
}

func TestSynthesizeErrors(t *testing.T) {
	a := solid(2, 2, color.NRGBA{})
	if _, err := Synthesize(a, a, 0, nil); !errors.Is(err, ErrInvalidSteps) {
		t.Fatalf("expected ErrInvalidSteps, got %v", err)
	}
	if _, err := Synthesize(a, solid(3, 2, color.NRGBA{}), 2, nil); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if _, err := CurveByName("bounce"); err == nil {
		t.Fatal("expected unknown easing error")
	}
}
