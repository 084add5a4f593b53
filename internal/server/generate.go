package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"anigiffy/internal/animation"
	"anigiffy/internal/ledger"
	"anigiffy/internal/logging"
	"anigiffy/internal/notifications"
	"anigiffy/internal/preflight"
	"anigiffy/internal/project"
	"anigiffy/internal/textutil"
)

type generateRequest struct {
	Project   json.RawMessage `json:"project"`
	MaxFrames *int            `json:"maxFrames"`
}

type generateResponse struct {
	Success  bool                     `json:"success"`
	Filename string                   `json:"filename"`
	Path     string                   `json:"path"`
	Size     int64                    `json:"size"`
	Message  string                   `json:"message"`
	Frames   int                      `json:"frames"`
	Skipped  []animation.SkippedFrame `json:"skipped"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, ledger.KindPreview)
}

func (s *Server) handleFull(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, ledger.KindFull)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind ledger.Kind) {
	ctx := r.Context()
	id := sessionID(r)
	logger := s.log(r)

	var req generateRequest
	if status, err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, status, "Invalid request", err.Error())
		return
	}
	if raw := string(bytes.TrimSpace(req.Project)); raw == "" || raw == "null" || raw == "{}" {
		writeError(w, s.logger, http.StatusBadRequest, "No project data provided", "")
		return
	}
	p := &project.Project{}
	if err := json.Unmarshal(req.Project, p); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid project", err.Error())
		return
	}

	if err := s.checkGenerationQuota(p); err != nil {
		logging.WarnWithContext(logger, "generation refused by quota", "quota_refused",
			logging.Error(err),
			logging.Int("frames", len(p.Frames)),
			logging.String(logging.FieldImpact, "GIF not generated"),
		)
		writeError(w, s.logger, http.StatusRequestEntityTooLarge, "Generation not allowed", err.Error())
		return
	}

	if kind == ledger.KindFull {
		need := preflight.EstimateEncodeMemory(p.Settings.Width, p.Settings.Height, len(p.Frames), transitionSteps(p))
		if err := s.guard.Check(ctx, need); err != nil {
			logging.WarnWithContext(logger, "encode refused by memory guard", "memory_guard",
				logging.Error(err),
				logging.String(logging.FieldImpact, "GIF not generated"),
			)
			writeError(w, s.logger, http.StatusServiceUnavailable, "Server busy", err.Error())
			return
		}
	}

	started := time.Now()
	resolve := s.sessions.Resolver(id)
	var (
		result   *animation.Result
		err      error
		filename string
	)
	if kind == ledger.KindPreview {
		maxFrames := 0
		if req.MaxFrames != nil {
			maxFrames = *req.MaxFrames
		}
		filename = "preview_" + shortUUID() + ".gif"
		result, err = s.encoder.Preview(ctx, p, resolve, maxFrames)
	} else {
		base := textutil.SecureFilename(p.Name)
		if base == "" {
			base = "animation"
		}
		filename = base + "_" + shortUUID() + ".gif"
		result, err = s.encoder.Encode(ctx, p, resolve)
	}
	if err == nil && s.quotas.CheckOutputSize(result.Size) != nil {
		err = &animation.OutputTooLargeError{Size: result.Size, Limit: s.cfg.Quotas.MaxOutputSize}
	}
	if err == nil {
		var path string
		if path, err = s.sessions.OutputPath(id, filename); err == nil {
			err = animation.WriteFile(path, result.Data)
		}
	}

	job := ledger.Job{
		SessionID:  id,
		Kind:       kind,
		Project:    p.Name,
		Frames:     len(p.Frames),
		DurationMs: time.Since(started).Milliseconds(),
	}
	event := notifications.Event{Mode: string(kind), SessionID: logging.ShortSessionID(id), Project: p.Name}

	if err != nil {
		job.Status = ledger.StatusFailed
		job.ErrorKind = animation.Kind(err)
		job.Message = err.Error()
		s.record(ctx, job)
		event.ErrorKind, event.Message = job.ErrorKind, job.Message
		s.notify(ctx, func(ctx context.Context) error { return s.notifier.NotifyFailed(ctx, event) })

		status, title, message := describeGenerateError(err, kind)
		if status >= http.StatusInternalServerError {
			logging.ErrorWithContext(logger, "gif generation failed", "generate_failed",
				logging.String("kind", string(kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the data directory and the server logs"),
			)
		}
		writeError(w, s.logger, status, title, message)
		return
	}

	job.Status = ledger.StatusSucceeded
	job.Filename = filename
	job.Size = result.Size
	job.Frames = result.FrameCount
	job.Skipped = len(result.Skipped)
	job.Message = result.Message
	s.record(ctx, job)
	event.Filename, event.Size, event.Frames = filename, result.Size, result.FrameCount
	s.notify(ctx, func(ctx context.Context) error { return s.notifier.NotifyGenerated(ctx, event) })

	logger.Info("gif generated",
		logging.String("kind", string(kind)),
		logging.String("filename", filename),
		logging.Int64("bytes", result.Size),
		logging.String(logging.FieldEventType, "gif_generated"),
	)
	skipped := result.Skipped
	if skipped == nil {
		skipped = []animation.SkippedFrame{}
	}
	writeJSON(w, s.logger, http.StatusOK, generateResponse{
		Success:  true,
		Filename: filename,
		Path:     "/api/generate/file/" + filename,
		Size:     result.Size,
		Message:  result.Message,
		Frames:   result.FrameCount,
		Skipped:  skipped,
	})
}

// checkGenerationQuota applies the frame and dimension limits before any
// source image is loaded.
func (s *Server) checkGenerationQuota(p *project.Project) error {
	if err := s.quotas.CheckFrameCount(len(p.Frames)); err != nil {
		return err
	}
	return s.quotas.CheckDimensions(p.Settings.Width, p.Settings.Height)
}

func transitionSteps(p *project.Project) int {
	if p.Settings.TransitionDuration <= 0 {
		return 0
	}
	return p.Settings.TransitionSteps
}

// describeGenerateError maps an encode failure to a status and the
// error/message pair shown to the user.
func describeGenerateError(err error, kind ledger.Kind) (int, string, string) {
	failed := "Failed to generate GIF"
	if kind == ledger.KindPreview {
		failed = "Failed to generate preview"
	}
	var verr *animation.ValidationError
	switch {
	case errors.Is(err, animation.ErrNoFrames):
		return http.StatusBadRequest, "No frames", "Project must have at least one frame"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "Validation failed", strings.Join(verr.Problems, ", ")
	}
	switch animation.Kind(err) {
	case animation.KindNoValidFrames:
		return http.StatusUnprocessableEntity, failed, err.Error()
	case animation.KindResourceExhausted:
		return http.StatusRequestEntityTooLarge, failed, err.Error()
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable, failed, "Generation was interrupted"
		}
		return http.StatusInternalServerError, failed, err.Error()
	}
}

func (s *Server) record(ctx context.Context, job ledger.Job) {
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.Record(context.WithoutCancel(ctx), job); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "ledger write failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job missing from history"),
		)
	}
}

// notify publishes in the background so a slow broker never delays the
// response.
func (s *Server) notify(ctx context.Context, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, s.logger)
	go func() {
		if err := send(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("notification failed", logging.Error(err))
		}
	}()
}

func (s *Server) handleServeOutput(attachment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := textutil.SecureFilename(r.PathValue("filename"))
		path, err := s.sessions.ExistingOutput(sessionID(r), filename)
		if err != nil {
			writeError(w, s.logger, http.StatusNotFound, "File not found", "GIF file does not exist: "+filename)
			return
		}
		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Content-Disposition", contentDisposition(filename, attachment))
		http.ServeFile(w, r, path)
	}
}

type outputEntry struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := s.sessions.ListOutputs(sessionID(r))
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to list GIFs", err.Error())
		return
	}
	gifs := make([]outputEntry, 0, len(outputs))
	for _, out := range outputs {
		gifs = append(gifs, outputEntry{
			Filename: out.Filename,
			Path:     "/api/generate/file/" + out.Filename,
			Size:     out.Size,
			Modified: out.Created,
		})
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"gifs": gifs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	jobs := []ledger.Job{}
	if s.ledger != nil {
		list, err := s.ledger.ListBySession(r.Context(), sessionID(r), 50)
		if err != nil {
			writeError(w, s.logger, http.StatusInternalServerError, "Failed to load history", err.Error())
			return
		}
		if list != nil {
			jobs = list
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"jobs": jobs})
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
