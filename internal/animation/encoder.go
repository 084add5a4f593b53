package animation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"time"

	"anigiffy/internal/config"
	"anigiffy/internal/frameprep"
	"anigiffy/internal/logging"
	"anigiffy/internal/project"
	"anigiffy/internal/transition"
)

// DefaultPreviewFrames caps preview encodes when nothing else is configured.
const DefaultPreviewFrames = 10

// SuccessMessage is reported for every completed encode except truncated
// previews.
const SuccessMessage = "GIF created successfully"

// ResolveFunc maps a frame's file reference to a readable local path.
// Implementations return ErrSourceNotFound when the file does not exist.
type ResolveFunc func(ref string) (string, error)

// SkippedFrame records a frame left out of the animation.
type SkippedFrame struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Result is a completed encode.
type Result struct {
	Data []byte
	Size int64
	// Durations holds the display time in milliseconds of every frame in
	// the output, transitions included.
	Durations []int
	// FrameCount is len(Durations).
	FrameCount int
	// SourceFrames counts project frames that made it into the output.
	SourceFrames int
	Skipped      []SkippedFrame
	Message      string
}

// Encoder renders projects to GIF. It holds no per-encode state, so one
// Encoder may serve concurrent calls.
type Encoder struct {
	Preparer      *frameprep.Preparer
	Limits        project.Limits
	MaxOutputSize int64
	Curve         transition.Curve
	PreviewFrames int
	Logger        *slog.Logger
}

// New builds an Encoder from the configured quotas and render options.
func New(cfg *config.Config, logger *slog.Logger) (*Encoder, error) {
	prep, err := frameprep.New(cfg.Quotas.MaxDimension, cfg.Render.Resampler)
	if err != nil {
		return nil, err
	}
	curve, err := transition.CurveByName(cfg.Render.TransitionEasing)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		Preparer: prep,
		Limits: project.Limits{
			MaxDimension: cfg.Quotas.MaxDimension,
			MaxFrames:    cfg.Quotas.MaxFrames,
		},
		MaxOutputSize: cfg.Quotas.MaxOutputSize,
		Curve:         curve,
		PreviewFrames: cfg.Render.PreviewFrames,
		Logger:        logging.NewComponentLogger(logger, "encoder"),
	}, nil
}

// Encode renders every frame of p. Frames whose source cannot be resolved or
// prepared are skipped and listed in the result; the encode fails only when
// none remain. The context is checked between frames.
func (e *Encoder) Encode(ctx context.Context, p *project.Project, resolve ResolveFunc) (*Result, error) {
	if p == nil || len(p.Frames) == 0 {
		return nil, ErrNoFrames
	}
	if err := p.Validate(e.Limits); err != nil {
		return nil, err
	}
	opts, err := frameprep.OptionsFromSettings(p.Settings)
	if err != nil {
		return nil, &ValidationError{Problems: []string{"Invalid background color: " + p.Settings.BackgroundColor}}
	}

	started := time.Now()
	logger := logging.WithContext(ctx, e.logger()).With(logging.String(logging.FieldProject, p.Name))
	out := &budgetWriter{limit: e.MaxOutputSize}
	stream, err := openGIFStream(out, p.Settings)
	if err != nil {
		return nil, e.streamFailed(logger, out, "write gif header", err)
	}
	seq := newSequencer(p.Settings, e.Curve, stream.frame)
	result := &Result{}

	for _, frame := range p.Frames {
		if err := ctx.Err(); err != nil {
			return nil, &IOError{Op: "encode gif", Err: err}
		}
		img, err := e.prepare(frame, resolve, opts)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFrame{ID: frame.ID, File: frame.File, Reason: err.Error()})
			logging.WarnWithContext(logger, "frame skipped", "frame_skipped",
				logging.String(logging.FieldFrameID, frame.ID),
				logging.String("file", frame.File),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-upload the image or remove the frame"),
				logging.String(logging.FieldImpact, "frame left out of the animation"),
			)
			continue
		}
		if err := seq.push(img, frame.Duration); err != nil {
			return nil, e.streamFailed(logger, out, "build frame sequence", err)
		}
	}
	if seq.count == 0 {
		return nil, ErrNoValidFrames
	}
	if err := seq.finish(); err != nil {
		return nil, e.streamFailed(logger, out, "build frame sequence", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, &IOError{Op: "encode gif", Err: err}
	}
	if err := stream.close(); err != nil {
		return nil, e.streamFailed(logger, out, "encode gif", err)
	}

	result.Data = out.buf.Bytes()
	result.Size = int64(out.buf.Len())
	result.Durations = seq.durations
	result.FrameCount = len(seq.durations)
	result.SourceFrames = seq.count
	result.Message = SuccessMessage

	logger.Info("gif encoded",
		logging.String(logging.FieldEventType, "gif_encoded"),
		logging.Int("frames", result.FrameCount),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int64("bytes", result.Size),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// streamFailed converts a failed write into OutputTooLargeError when the
// budget was the cause and IOError otherwise.
func (e *Encoder) streamFailed(logger *slog.Logger, out *budgetWriter, op string, err error) error {
	if !out.exceeded() && !errors.Is(err, errOverBudget) {
		return &IOError{Op: op, Err: err}
	}
	logging.WarnWithContext(logger, "gif over size budget", "output_too_large",
		logging.Int64("size_bytes", out.n),
		logging.Int64("limit_bytes", e.MaxOutputSize),
		logging.String(logging.FieldErrorHint, "reduce canvas size, frame count or transition steps"),
		logging.String(logging.FieldImpact, "no file was produced"),
	)
	return &OutputTooLargeError{Size: out.n, Limit: e.MaxOutputSize}
}

// Preview encodes at most maxFrames leading frames of p. A maxFrames of zero
// or less uses the configured preview size.
func (e *Encoder) Preview(ctx context.Context, p *project.Project, resolve ResolveFunc, maxFrames int) (*Result, error) {
	if maxFrames <= 0 {
		maxFrames = e.PreviewFrames
	}
	if maxFrames <= 0 {
		maxFrames = DefaultPreviewFrames
	}
	if p == nil || len(p.Frames) == 0 {
		return nil, ErrNoFrames
	}

	total := len(p.Frames)
	trimmed := p.Clone()
	if total > maxFrames {
		trimmed.Frames = trimmed.Frames[:maxFrames]
	}
	result, err := e.Encode(ctx, trimmed, resolve)
	if err != nil {
		return nil, err
	}
	if total > maxFrames {
		result.Message = fmt.Sprintf("Preview created with %d of %d frames", maxFrames, total)
	}
	return result, nil
}

func (e *Encoder) prepare(frame project.Frame, resolve ResolveFunc, opts frameprep.Options) (*image.NRGBA, error) {
	if resolve == nil {
		return nil, ErrSourceNotFound
	}
	path, err := resolve(frame.File)
	if err != nil {
		return nil, err
	}
	prep := e.Preparer
	if prep == nil {
		prep = &frameprep.Preparer{}
	}
	img, err := prep.Prepare(path, opts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSourceNotFound
	}
	return img, err
}

func (e *Encoder) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger
}
