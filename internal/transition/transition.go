// Package transition synthesizes cross-fade frames between two prepared frames.
package transition

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/fogleman/ease"
)

var (
	// ErrInvalidSteps indicates a step count below one.
	ErrInvalidSteps = errors.New("transition steps must be at least 1")
	// ErrSizeMismatch indicates the two frames have different bounds.
	ErrSizeMismatch = errors.New("transition frames differ in size")
)

// Curve maps linear progress in (0,1) to a blend factor.
type Curve func(t float64) float64

// DefaultCurve is the plain linear cross-fade.
const DefaultCurve = "linear"

var curves = map[string]Curve{
	"linear":       ease.Linear,
	"in-out-quad":  ease.InOutQuad,
	"in-out-cubic": ease.InOutCubic,
	"in-out-sine":  ease.InOutSine,
}

// CurveByName looks up an easing curve by its configuration name.
func CurveByName(name string) (Curve, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultCurve
	}
	c, ok := curves[key]
	if !ok {
		return nil, fmt.Errorf("unknown transition easing %q", name)
	}
	return c, nil
}

// Synthesize returns steps frames blending a into b. Frame i (1-based) uses
// factor curve(i/(steps+1)). Inputs are not modified. A nil curve is linear.
func Synthesize(a, b *image.NRGBA, steps int, curve Curve) ([]*image.NRGBA, error) {
	if steps < 1 {
		return nil, ErrInvalidSteps
	}
	if a.Rect.Size() != b.Rect.Size() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, a.Rect.Size(), b.Rect.Size())
	}
	if curve == nil {
		curve = ease.Linear
	}

	w, h := a.Rect.Dx(), a.Rect.Dy()
	frames := make([]*image.NRGBA, 0, steps)
	for i := 1; i <= steps; i++ {
		t := curve(float64(i) / float64(steps+1))
		frame := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):]
			rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):]
			out := frame.Pix[frame.PixOffset(0, y):]
			for x := 0; x < 4*w; x++ {
				out[x] = lerp(ra[x], rb[x], t)
			}
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func lerp(a, b uint8, t float64) uint8 {
	v := math.Round(float64(a)*(1-t) + float64(b)*t)
	return uint8(max(0, min(255, v)))
}
