package frameprep

import (
	"fmt"
	"strings"

	"golang.org/x/image/draw"
)

// DefaultResampler is used when no resampler is configured.
const DefaultResampler = "catmull-rom"

var resamplers = map[string]draw.Interpolator{
	"catmull-rom":     draw.CatmullRom,
	"bilinear":        draw.BiLinear,
	"approx-bilinear": draw.ApproxBiLinear,
	"nearest":         draw.NearestNeighbor,
}

// Resampler looks up a scaling filter by its configuration name.
func Resampler(name string) (draw.Interpolator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultResampler
	}
	interp, ok := resamplers[key]
	if !ok {
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
	return interp, nil
}
