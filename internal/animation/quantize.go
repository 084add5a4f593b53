package animation

import (
	"image"
	"image/color"
	"slices"

	"github.com/ericpauley/go-quantize/quantize"
)

// Frames are reduced to an indexed palette per frame. Images with few enough
// distinct colours keep them exactly; anything richer goes through a weighted
// median cut. Neither path depends on map order or randomness, so identical
// input always produces an identical palette and index layout.

// medianCut averages each box and ignores fully transparent pixels, which
// are mapped to the reserved key instead.
var medianCut = quantize.MedianCutQuantizer{
	Aggregation: quantize.Mean,
	Weighting: func(img image.Image, x, y int) uint32 {
		if n, ok := img.(*image.NRGBA); ok && n.Pix[n.PixOffset(x, y)+3] == 0 {
			return 0
		}
		return 1
	},
}

// quantizeFrame maps img onto a palette of at most 256 entries. In transparent
// mode index 0 is reserved for fully transparent pixels and at most 255
// colours are used for the rest.
func quantizeFrame(img *image.NRGBA, transparent bool) *image.Paletted {
	maxColors, offset := 256, 0
	if transparent {
		maxColors, offset = 255, 1
	}

	colors, lookup, ok := exactPalette(img, transparent, maxColors)
	if !ok {
		colors, lookup = medianCutPalette(img, maxColors)
	}

	pal := make(color.Palette, 0, offset+len(colors))
	if transparent {
		pal = append(pal, color.NRGBA{})
	}
	for _, c := range colors {
		pal = append(pal, c)
	}
	if len(pal) == 0 {
		pal = append(pal, color.NRGBA{A: 0xff})
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewPaletted(image.Rect(0, 0, w, h), pal)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < w; x++ {
			p := row[4*x : 4*x+4]
			if transparent && p[3] == 0 {
				dst[x] = 0
				continue
			}
			dst[x] = uint8(offset + lookup(p[0], p[1], p[2]))
		}
	}
	return out
}

func packRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// exactPalette returns the distinct visible colours of img in ascending
// order, or ok=false when there are more than maxColors of them.
func exactPalette(img *image.NRGBA, transparent bool, maxColors int) ([]color.NRGBA, func(r, g, b uint8) int, bool) {
	seen := make(map[uint32]struct{}, maxColors+1)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			p := row[4*x : 4*x+4]
			if transparent && p[3] == 0 {
				continue
			}
			seen[packRGB(p[0], p[1], p[2])] = struct{}{}
			if len(seen) > maxColors {
				return nil, nil, false
			}
		}
	}

	keys := make([]uint32, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	colors := make([]color.NRGBA, len(keys))
	index := make(map[uint32]int, len(keys))
	for i, k := range keys {
		colors[i] = color.NRGBA{R: uint8(k >> 16), G: uint8(k >> 8), B: uint8(k), A: 0xff}
		index[k] = i
	}
	return colors, func(r, g, b uint8) int { return index[packRGB(r, g, b)] }, true
}

// medianCutPalette builds at most maxColors opaque entries and a nearest
// colour lookup. Lookups are memoized per colour; ties go to the lower index.
func medianCutPalette(img *image.NRGBA, maxColors int) ([]color.NRGBA, func(r, g, b uint8) int) {
	raw := medianCut.Quantize(make(color.Palette, 0, maxColors), img)
	colors := make([]color.NRGBA, len(raw))
	for i, c := range raw {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		n.A = 0xff
		colors[i] = n
	}

	memo := make(map[uint32]int)
	return colors, func(r, g, b uint8) int {
		key := packRGB(r, g, b)
		if i, ok := memo[key]; ok {
			return i
		}
		best, bestDist := 0, -1
		for i, c := range colors {
			dr, dg, db := int(r)-int(c.R), int(g)-int(c.G), int(b)-int(c.B)
			if d := dr*dr + dg*dg + db*db; bestDist < 0 || d < bestDist {
				best, bestDist = i, d
			}
		}
		memo[key] = best
		return best
	}
}
