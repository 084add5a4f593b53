package server

import (
	"errors"
	"io/fs"
	"net/http"

	"anigiffy/internal/logging"
	"anigiffy/internal/project"
	"anigiffy/internal/session"
)

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	p := &project.Project{}
	if status, err := decodeJSON(r, p); err != nil {
		title := "Invalid project"
		if errors.Is(err, project.ErrMissingName) {
			title = "Project name is required"
		}
		writeError(w, s.logger, status, title, err.Error())
		return
	}
	if !s.sessions.ProjectExists(id, p.Name) {
		if err := s.quotas.CanSaveProject(id); err != nil {
			writeError(w, s.logger, http.StatusTooManyRequests, "Save not allowed", err.Error())
			return
		}
	}
	filename, err := s.sessions.SaveProject(id, p)
	if err != nil {
		if errors.Is(err, session.ErrInvalidFilename) {
			writeError(w, s.logger, http.StatusBadRequest, "Invalid project name", err.Error())
			return
		}
		logging.ErrorWithContext(s.log(r), "project save failed", "project_save_failed",
			logging.String(logging.FieldProject, p.Name),
			logging.Error(err),
		)
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to save project", err.Error())
		return
	}
	s.log(r).Info("project saved",
		logging.String(logging.FieldProject, p.Name),
		logging.Int("frames", len(p.Frames)),
		logging.String(logging.FieldEventType, "project_saved"),
	)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"success":  true,
		"name":     p.Name,
		"filename": filename,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.sessions.ListProjects(sessionID(r))
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to list projects", err.Error())
		return
	}
	if projects == nil {
		projects = []session.ProjectInfo{}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, err := s.sessions.LoadProject(sessionID(r), name)
	if err != nil {
		s.writeProjectError(w, name, "Failed to load project", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"success": true, "project": p})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.sessions.DeleteProject(sessionID(r), name); err != nil {
		s.writeProjectError(w, name, "Failed to delete project", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"success": true, "message": "Project deleted"})
}

func (s *Server) writeProjectError(w http.ResponseWriter, name, title string, err error) {
	switch {
	case errors.Is(err, session.ErrFileNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, session.ErrInvalidFilename):
		writeError(w, s.logger, http.StatusNotFound, "Project not found", "No saved project named "+name)
	default:
		writeError(w, s.logger, http.StatusInternalServerError, title, err.Error())
	}
}
