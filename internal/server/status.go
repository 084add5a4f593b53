package server

import (
	"net/http"
	"time"

	"anigiffy/internal/quota"
	"anigiffy/internal/session"
)

type sessionStatsResponse struct {
	Success   bool            `json:"success"`
	Stats     session.Stats   `json:"stats"`
	Remaining quota.Remaining `json:"remaining"`
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	stats, err := s.sessions.Stats(id)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to read session stats", err.Error())
		return
	}
	remaining, err := s.quotas.Remaining(id)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to read session stats", err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, sessionStatsResponse{Success: true, Stats: stats, Remaining: remaining})
}

type statusResponse struct {
	Status   string         `json:"status"`
	Uptime   string         `json:"uptime"`
	Started  time.Time      `json:"started"`
	Sessions int            `json:"sessions"`
	Jobs     map[string]int `json:"jobs,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Started: s.started.UTC(),
	}
	if infos, err := s.sessions.List(); err == nil {
		resp.Sessions = len(infos)
	} else {
		resp.Status = "degraded"
	}
	if s.ledger != nil {
		if jobs, err := s.ledger.Stats(r.Context()); err == nil {
			resp.Jobs = jobs
		} else {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}
