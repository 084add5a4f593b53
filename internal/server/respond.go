package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"anigiffy/internal/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, title, message string) {
	writeJSON(w, logger, status, errorResponse{Error: title, Message: message})
}

// decodeJSON reads a JSON request body into dst. Bodies over the request
// limit report 413.
func decodeJSON(r *http.Request, dst any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}
