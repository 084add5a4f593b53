package frameprep

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat indicates the source is not PNG, JPEG, GIF or WebP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge indicates the source exceeds the maximum dimension.
	ErrTooLarge = errors.New("image too large")
	// ErrEmptyImage indicates the source has a zero width or height.
	ErrEmptyImage = errors.New("image has no pixels")
)

// DimensionError reports a source that is wider or taller than allowed.
type DimensionError struct {
	Width, Height int
	Max           int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("image dimensions %dx%d exceed maximum %d", e.Width, e.Height, e.Max)
}

func (e *DimensionError) Unwrap() error { return ErrTooLarge }
