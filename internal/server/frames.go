package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"anigiffy/internal/frameprep"
	"anigiffy/internal/logging"
	"anigiffy/internal/project"
	"anigiffy/internal/session"
)

type uploadResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, s)
			return
		}
		writeError(w, s.logger, http.StatusBadRequest, "No file provided", "")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, s.logger, http.StatusBadRequest, "No file selected", "")
		return
	}
	if !frameprep.AllowedExtension(header.Filename) {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid file type",
			"Allowed types: png, jpg, jpeg, gif, webp")
		return
	}
	if err := s.quotas.CanUpload(id, header.Size); err != nil {
		writeError(w, s.logger, http.StatusTooManyRequests, "Upload not allowed", err.Error())
		return
	}

	up, err := s.sessions.SaveUpload(id, header.Filename, file)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrInvalidFilename) {
			status = http.StatusBadRequest
		}
		writeError(w, s.logger, status, "Upload failed", err.Error())
		return
	}

	path, err := s.sessions.UploadPath(id, up.Filename)
	if err != nil {
		_ = s.sessions.RemoveUpload(id, up.Filename)
		logging.ErrorWithContext(s.log(r), "saved upload not found", "upload_lost",
			logging.String("filename", up.Filename),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the data directory permissions"),
		)
		writeError(w, s.logger, http.StatusInternalServerError, "Upload failed", err.Error())
		return
	}
	info, err := s.prep.Inspect(path)
	if err != nil {
		_ = os.Remove(path)
		writeError(w, s.logger, http.StatusBadRequest, "Invalid image", describeImageError(err))
		return
	}

	s.log(r).Info("image uploaded",
		logging.String("filename", up.Filename),
		logging.String("format", info.Format),
		logging.String("dimensions", fmt.Sprintf("%dx%d", info.Width, info.Height)),
		logging.String("size", humanize.IBytes(uint64(up.Size))),
		logging.String(logging.FieldEventType, "image_uploaded"),
	)
	writeJSON(w, s.logger, http.StatusOK, uploadResponse{
		Success:  true,
		Filename: up.Filename,
		Path:     up.Path,
		Size:     up.Size,
		Width:    info.Width,
		Height:   info.Height,
	})
}

func describeImageError(err error) string {
	var dim *frameprep.DimensionError
	switch {
	case errors.As(err, &dim):
		return fmt.Sprintf("Image dimensions exceed maximum: %d", dim.Max)
	case errors.Is(err, frameprep.ErrUnsupportedFormat):
		return "Unsupported image format"
	default:
		return "Could not decode image"
	}
}

type frameRequest struct {
	File     string `json:"file"`
	Duration *int   `json:"duration"`
}

type frameResponse struct {
	Success bool          `json:"success"`
	Frame   project.Frame `json:"frame"`
}

func (s *Server) handleAddFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if status, err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, status, "Failed to add frame", err.Error())
		return
	}
	if strings.TrimSpace(req.File) == "" {
		writeError(w, s.logger, http.StatusBadRequest, "No file path provided", "")
		return
	}
	duration := project.DefaultFrameDuration
	if req.Duration != nil {
		duration = *req.Duration
	}

	if _, err := s.sessions.Resolver(sessionID(r))(req.File); err != nil {
		writeError(w, s.logger, http.StatusNotFound, "File not found",
			"Image file does not exist: "+req.File)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, frameResponse{
		Success: true,
		Frame:   project.Frame{ID: project.NewFrameID(), File: req.File, Duration: duration},
	})
}

func (s *Server) handleUpdateFrame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration *int `json:"duration"`
	}
	if status, err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, status, "Failed to update frame", err.Error())
		return
	}
	if req.Duration != nil && *req.Duration < 1 {
		writeError(w, s.logger, http.StatusBadRequest, "Invalid duration", "Duration must be at least 1ms")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success": true,
		"frame":   map[string]any{"id": r.PathValue("id"), "duration": req.Duration},
	})
}

func (s *Server) handleDeleteFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"success": true, "message": "Frame deleted"})
}

func (s *Server) handleReorderFrames(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FrameIDs []string `json:"frameIds"`
	}
	if status, err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, status, "Invalid frame IDs", err.Error())
		return
	}
	if req.FrameIDs == nil {
		req.FrameIDs = []string{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"success": true, "frameIds": req.FrameIDs})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.sessions.ListImages(sessionID(r), s.prep)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to list images", err.Error())
		return
	}
	if images == nil {
		images = []session.ImageInfo{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"images": images})
}

func (s *Server) handleServeImage(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	path, err := s.sessions.UploadPath(sessionID(r), filename)
	if err != nil {
		writeError(w, s.logger, http.StatusNotFound, "File not found", "Image file does not exist: "+filename)
		return
	}
	http.ServeFile(w, r, path)
}

// contentDisposition builds an attachment or inline header for name.
func contentDisposition(name string, attachment bool) string {
	kind := "inline"
	if attachment {
		kind = "attachment"
	}
	return fmt.Sprintf("%s; filename=%q", kind, filepath.Base(name))
}
