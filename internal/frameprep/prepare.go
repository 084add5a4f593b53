package frameprep

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"anigiffy/internal/project"
)

var allowedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {},
}

var supportedFormats = map[string]struct{}{
	"png": {}, "jpeg": {}, "gif": {}, "webp": {},
}

// AllowedExtension reports whether name carries an accepted image extension.
func AllowedExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	_, ok := allowedExtensions[ext]
	return ok
}

// Options describes the target canvas and alpha policy for one frame.
type Options struct {
	Width, Height  int
	Transparent    bool
	Background     color.NRGBA
	AlphaThreshold int
	Fit            project.Fit
	// Upscale lets contain-fit enlarge sources smaller than the canvas.
	Upscale bool
}

// OptionsFromSettings derives frame options from project settings.
func OptionsFromSettings(s project.Settings) (Options, error) {
	bg, err := s.Background()
	if err != nil && !s.Transparent {
		return Options{}, err
	}
	return Options{
		Width:          s.Width,
		Height:         s.Height,
		Transparent:    s.Transparent,
		Background:     bg,
		AlphaThreshold: s.AlphaThreshold,
		Fit:            s.FitMode(),
	}, nil
}

// Info describes a validated source image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Preparer decodes and fits source images. The zero value has no dimension
// limit and uses Catmull-Rom scaling.
type Preparer struct {
	MaxDimension int
	Scaler       draw.Scaler
}

// New returns a Preparer for the named resampler.
func New(maxDimension int, resampler string) (*Preparer, error) {
	scaler, err := Resampler(resampler)
	if err != nil {
		return nil, err
	}
	return &Preparer{MaxDimension: maxDimension, Scaler: scaler}, nil
}

// Inspect fully decodes path and applies the format and dimension checks
// without producing a frame.
func (p *Preparer) Inspect(path string) (Info, error) {
	_, info, err := p.decode(path)
	return info, err
}

// Prepare returns the canvas-sized frame for path.
func (p *Preparer) Prepare(path string, opts Options) (*image.NRGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", opts.Width, opts.Height)
	}
	src, _, err := p.decode(path)
	if err != nil {
		return nil, err
	}
	frame := p.fit(toNRGBA(src), opts)
	if opts.Transparent {
		Binarize(frame, opts.AlphaThreshold)
	} else {
		Flatten(frame, opts.Background)
	}
	return frame, nil
}

func (p *Preparer) decode(path string) (image.Image, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, Info{}, ErrUnsupportedFormat
		}
		return nil, Info{}, fmt.Errorf("read image header: %w", err)
	}
	if _, ok := supportedFormats[format]; !ok {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	info := Info{Format: format, Width: cfg.Width, Height: cfg.Height}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, info, ErrEmptyImage
	}
	if p.MaxDimension > 0 && (cfg.Width > p.MaxDimension || cfg.Height > p.MaxDimension) {
		return nil, info, &DimensionError{Width: cfg.Width, Height: cfg.Height, Max: p.MaxDimension}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, info, fmt.Errorf("rewind image: %w", err)
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, info, fmt.Errorf("decode image: %w", err)
	}
	return img, info, nil
}

func (p *Preparer) scaler() draw.Scaler {
	if p.Scaler == nil {
		return draw.CatmullRom
	}
	return p.Scaler
}

func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func (p *Preparer) fit(src *image.NRGBA, opts Options) *image.NRGBA {
	tw, th := opts.Width, opts.Height
	w, h := src.Rect.Dx(), src.Rect.Dy()
	canvas := image.NewNRGBA(image.Rect(0, 0, tw, th))

	switch opts.Fit {
	case project.FitStretch:
		p.scaleInto(canvas, canvas.Bounds(), src)
	case project.FitCover:
		scale := math.Max(float64(tw)/float64(w), float64(th)/float64(h))
		sw, sh := scaledSize(w, h, scale)
		scaled := image.NewNRGBA(image.Rect(0, 0, sw, sh))
		p.scaleInto(scaled, scaled.Bounds(), src)
		offset := image.Pt((sw-tw)/2, (sh-th)/2)
		draw.Draw(canvas, canvas.Bounds(), scaled, offset, draw.Src)
	default:
		scale := math.Min(float64(tw)/float64(w), float64(th)/float64(h))
		if !opts.Upscale {
			scale = math.Min(scale, 1)
		}
		sw, sh := scaledSize(w, h, scale)
		sw, sh = min(sw, tw), min(sh, th)
		x, y := (tw-sw)/2, (th-sh)/2
		p.scaleInto(canvas, image.Rect(x, y, x+sw, y+sh), src)
	}
	return canvas
}

func scaledSize(w, h int, scale float64) (int, int) {
	sw := max(1, int(math.Round(float64(w)*scale)))
	sh := max(1, int(math.Round(float64(h)*scale)))
	return sw, sh
}

// scaleInto draws src into r. Same-size draws copy rows so colours under
// partial alpha survive unchanged.
func (p *Preparer) scaleInto(dst *image.NRGBA, r image.Rectangle, src *image.NRGBA) {
	if r.Dx() == src.Rect.Dx() && r.Dy() == src.Rect.Dy() {
		for y := 0; y < r.Dy(); y++ {
			from := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
			to := dst.PixOffset(r.Min.X, r.Min.Y+y)
			copy(dst.Pix[to:to+4*r.Dx()], src.Pix[from:from+4*r.Dx()])
		}
		return
	}
	p.scaler().Scale(dst, r, src, src.Rect, draw.Src, nil)
}

// Binarize makes every pixel either fully transparent black or fully opaque.
// Pixels with alpha below threshold are cleared.
func Binarize(img *image.NRGBA, threshold int) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		if int(pix[i+3]) < threshold {
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0
			continue
		}
		pix[i+3] = 0xff
	}
}

// Flatten composites img over bg in place, leaving every pixel opaque.
func Flatten(img *image.NRGBA, bg color.NRGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0xff {
			continue
		}
		inv := 0xff - a
		pix[i] = uint8((uint32(pix[i])*a + uint32(bg.R)*inv + 127) / 0xff)
		pix[i+1] = uint8((uint32(pix[i+1])*a + uint32(bg.G)*inv + 127) / 0xff)
		pix[i+2] = uint8((uint32(pix[i+2])*a + uint32(bg.B)*inv + 127) / 0xff)
		pix[i+3] = 0xff
	}
}
