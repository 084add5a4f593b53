package frameprep

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"anigiffy/internal/project"
	"anigiffy/internal/testsupport"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

func newPreparer(t *testing.T, maxDim int) *Preparer {
	t.Helper()
	p, err := New(maxDim, "nearest")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAllowedExtension(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.gif", "e.webp"} {
		if !AllowedExtension(name) {
			t.Errorf("expected %s to be allowed", name)
		}
	}
	for _, name := range []string{"a.bmp", "noext", "x.png.exe", ".png.txt"} {
		if AllowedExtension(name) {
			t.Errorf("expected %s to be rejected", name)
		}
	}
}

func TestContainCentersWithoutUpscaling(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WritePNG(t, dir, "small.png", testsupport.Solid(20, 10, red))

	frame, err := newPreparer(t, 2000).Prepare(path, Options{Width: 100, Height: 100, Transparent: true, AlphaThreshold: 128})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if frame.Bounds() != image.Rect(0, 0, 100, 100) {
		t.Fatalf("unexpected bounds %v", frame.Bounds())
	}
	// 20x10 stays 20x10 and lands at (40,45).
	if got := frame.NRGBAAt(40, 45); got != red {
		t.Fatalf("expected red at top-left of placed image, got %+v", got)
	}
	if got := frame.NRGBAAt(59, 54); got != red {
		t.Fatalf("expected red at bottom-right of placed image, got %+v", got)
	}
	if got := frame.NRGBAAt(39, 45); got.A != 0 {
		t.Fatalf("expected transparent padding, got %+v", got)
	}
	if got := frame.NRGBAAt(40, 55); got.A != 0 {
		t.Fatalf("expected transparent padding below image, got %+v", got)
	}
}

func TestContainScalesDownPreservingAspect(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WritePNG(t, dir, "wide.png", testsupport.Solid(400, 100, red))

	frame, err := newPreparer(t, 2000).Prepare(path, Options{Width: 100, Height: 100, Background: white})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	// Scaled to 100x25 at y offset 37.
	if got := frame.NRGBAAt(50, 37); got != red {
		t.Fatalf("expected image row at y=37, got %+v", got)
	}
	if got := frame.NRGBAAt(50, 36); got != white {
		t.Fatalf("expected background above image, got %+v", got)
	}
	if got := frame.NRGBAAt(50, 62); got != white {
		t.Fatalf("expected background below image, got %+v", got)
	}
}

func TestUpscaleOption(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WritePNG(t, dir, "tiny.png", testsupport.Solid(10, 10, red))

	frame, err := newPreparer(t, 0).Prepare(path, Options{Width: 50, Height: 50, Background: white, Upscale: true})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := frame.NRGBAAt(0, 0); got != red {
		t.Fatalf("expected upscaled image to fill canvas, got %+v", got)
	}
}

func TestCoverAndStretchFillCanvas(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WritePNG(t, dir, "tall.png", testsupport.Solid(50, 200, red))

	for _, fit := range []project.Fit{project.FitCover, project.FitStretch} {
		frame, err := newPreparer(t, 0).Prepare(path, Options{Width: 100, Height: 100, Background: white, Fit: fit})
		if err != nil {
			t.Fatalf("%s: Prepare: %v", fit, err)
		}
		for _, pt := range []image.Point{{0, 0}, {99, 99}, {0, 99}, {99, 0}} {
			if got := frame.NRGBAAt(pt.X, pt.Y); got != red {
				t.Fatalf("%s: expected %v covered, got %+v", fit, pt, got)
			}
		}
	}
}

func TestTransparentModeBinarizesAlpha(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 127})
	src.SetNRGBA(2, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	src.SetNRGBA(3, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	path := testsupport.WritePNG(t, dir, "alpha.png", src)

	frame, err := newPreparer(t, 0).Prepare(path, Options{Width: 4, Height: 1, Transparent: true, AlphaThreshold: 128})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := []color.NRGBA{
		{},
		{},
		{R: 10, G: 20, B: 30, A: 255},
		{R: 10, G: 20, B: 30, A: 255},
	}
	for x, w := range want {
		if got := frame.NRGBAAt(x, 0); got != w {
			t.Fatalf("pixel %d: got %+v want %+v", x, got, w)
		}
	}
}

func TestOpaqueModeFlattensOverBackground(t *testing.T) {
	dir := t.TempDir()
	bg := color.NRGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}
	path := testsupport.WritePNG(t, dir, "half.png", testsupport.HalfTransparent(10, 10, red))

	frame, err := newPreparer(t, 0).Prepare(path, Options{Width: 10, Height: 10, Background: bg})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := frame.NRGBAAt(0, 0); got != red {
		t.Fatalf("expected opaque source pixel kept, got %+v", got)
	}
	if got := frame.NRGBAAt(9, 9); got != bg {
		t.Fatalf("expected background where source was transparent, got %+v", got)
	}
	for i := 3; i < len(frame.Pix); i += 4 {
		if frame.Pix[i] != 0xff {
			t.Fatalf("expected every pixel opaque, found alpha %d", frame.Pix[i])
		}
	}
}

func TestFlattenBlendsPartialAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0xff, A: 0x80})
	Flatten(img, color.NRGBA{B: 0xff, A: 0xff})
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 0x80, B: 0x7f, A: 0xff}) {
		t.Fatalf("unexpected blend %+v", got)
	}
}

func TestRejectsOversizedSourceBeforeDecode(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WritePNG(t, dir, "big.png", testsupport.Solid(300, 20, red))

	_, err := newPreparer(t, 200).Prepare(path, Options{Width: 100, Height: 100})
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if !errors.Is(err, ErrTooLarge) {
		t.Fatal("expected DimensionError to match ErrTooLarge")
	}
	if dimErr.Width != 300 || dimErr.Max != 200 {
		t.Fatalf("unexpected dimension error %+v", dimErr)
	}
}

func TestRejectsUnsupportedAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.png")
	if err := os.WriteFile(text, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newPreparer(t, 0).Inspect(text); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	good := testsupport.EncodePNG(t, testsupport.Solid(8, 8, red))
	truncated := filepath.Join(dir, "truncated.png")
	if err := os.WriteFile(truncated, good[:len(good)/2], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newPreparer(t, 0).Prepare(truncated, Options{Width: 8, Height: 8}); err == nil {
		t.Fatal("expected error for truncated png")
	}

	if _, err := newPreparer(t, 0).Prepare(filepath.Join(dir, "missing.png"), Options{Width: 8, Height: 8}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestInspectReportsFormat(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteJPEG(t, dir, "photo.jpg", testsupport.Solid(32, 16, red))

	info, err := newPreparer(t, 2000).Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info != (Info{Format: "jpeg", Width: 32, Height: 16}) {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestResamplerNames(t *testing.T) {
	for _, name := range []string{"", "catmull-rom", "Bilinear", "approx-bilinear", "nearest"} {
		if _, err := Resampler(name); err != nil {
			t.Errorf("Resampler(%q): %v", name, err)
		}
	}
	if _, err := Resampler("lanczos"); err == nil {
		t.Fatal("expected error for unknown resampler")
	}
}
