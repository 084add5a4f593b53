package animation

import (
	"errors"
	"fmt"

	"anigiffy/internal/project"
)

// Error kinds reported by ErrorKind.
const (
	KindNoFrames          = "no_frames"
	KindValidation        = "validation"
	KindNoValidFrames     = "no_valid_frames"
	KindNotFound          = "not_found"
	KindResourceExhausted = "resource_exhausted"
	KindIO                = "io"
)

type kindError struct {
	msg  string
	kind string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrNoFrames indicates the project has an empty timeline.
	ErrNoFrames error = &kindError{msg: "project has no frames", kind: KindNoFrames}
	// ErrNoValidFrames indicates every frame was skipped during preparation.
	ErrNoValidFrames error = &kindError{msg: "no valid frames to create GIF", kind: KindNoValidFrames}
	// ErrSourceNotFound indicates a frame's source image does not exist.
	ErrSourceNotFound error = &kindError{msg: "source image not found", kind: KindNotFound}
)

// ValidationError lists every problem found in a project.
type ValidationError = project.ValidationError

// OutputTooLargeError reports an encode stopped at the byte budget. Size is
// how far the output had grown when the limit was crossed, not the size the
// finished GIF would have had.
type OutputTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *OutputTooLargeError) Error() string {
	return fmt.Sprintf("generated GIF exceeds size limit of %d bytes", e.Limit)
}

func (e *OutputTooLargeError) ErrorKind() string { return KindResourceExhausted }

// IOError wraps an encode or filesystem failure, including cancellation.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) ErrorKind() string { return KindIO }

// Kind returns the ErrorKind of the first error in err's chain that has one,
// or KindIO for anything unclassified.
func Kind(err error) string {
	var classified interface{ ErrorKind() string }
	if errors.As(err, &classified) {
		return classified.ErrorKind()
	}
	return KindIO
}
