// Package quota enforces per-session storage and generation limits.
package quota

import (
	"errors"
	"fmt"
	"log/slog"

	"anigiffy/internal/config"
	"anigiffy/internal/logging"
	"anigiffy/internal/session"
)

// Upload and project refusals, in the order CanUpload checks them.
var (
	ErrFileTooLarge       = errors.New("File size exceeds maximum allowed")
	ErrTooManyImages      = errors.New("Maximum number of images reached")
	ErrStorageExceeded    = errors.New("Storage quota exceeded")
	ErrWouldExceedStorage = errors.New("Adding this file would exceed storage quota")
	ErrTooManyProjects    = errors.New("Maximum number of projects reached")
	ErrTooManyFrames      = errors.New("Frame count exceeds maximum allowed")
	ErrDimensionsTooLarge = errors.New("Image dimensions exceed maximum allowed")
	ErrOutputTooLarge     = errors.New("Output size exceeds maximum allowed")
)

// StatsSource reports session storage usage.
type StatsSource interface {
	Stats(id string) (session.Stats, error)
}

// Manager checks requests against the configured quotas.
type Manager struct {
	limits config.Quotas
	stats  StatsSource
	logger *slog.Logger
}

// New returns a Manager for the configured quotas.
func New(limits config.Quotas, stats StatsSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{limits: limits, stats: stats, logger: logging.NewComponentLogger(logger, "quota")}
}

// CanUpload reports whether a file of size bytes may be added to the session.
// A session without stats is treated as empty.
func (m *Manager) CanUpload(id string, size int64) error {
	if size > m.limits.MaxUploadSize {
		m.refuse(id, ErrFileTooLarge, logging.Int64("size", size))
		return ErrFileTooLarge
	}
	st, err := m.stats.Stats(id)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			m.logger.Error("session stats unavailable; allowing upload",
				logging.String(logging.FieldSessionID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "quota_check_failed"),
			)
		}
		return nil
	}
	switch {
	case st.ImageCount >= m.limits.MaxImages:
		m.refuse(id, ErrTooManyImages, logging.Int("images", st.ImageCount))
		return ErrTooManyImages
	case st.TotalSize >= m.limits.MaxTotalStorage:
		m.refuse(id, ErrStorageExceeded, logging.Int64("used", st.TotalSize))
		return ErrStorageExceeded
	case st.TotalSize+size > m.limits.MaxTotalStorage:
		return ErrWouldExceedStorage
	}
	return nil
}

// CanSaveProject reports whether one more project may be saved. Sessions
// whose usage cannot be read are refused.
func (m *Manager) CanSaveProject(id string) error {
	st, err := m.stats.Stats(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTooManyProjects, err)
	}
	if st.ProjectCount >= m.limits.MaxProjects {
		m.refuse(id, ErrTooManyProjects, logging.Int("projects", st.ProjectCount))
		return ErrTooManyProjects
	}
	return nil
}

// CheckFrameCount rejects timelines longer than the frame limit.
func (m *Manager) CheckFrameCount(n int) error {
	if n > m.limits.MaxFrames {
		return ErrTooManyFrames
	}
	return nil
}

// CheckDimensions rejects images wider or taller than the dimension limit.
func (m *Manager) CheckDimensions(w, h int) error {
	if w > m.limits.MaxDimension || h > m.limits.MaxDimension {
		return ErrDimensionsTooLarge
	}
	return nil
}

// CheckOutputSize rejects outputs over the byte budget.
func (m *Manager) CheckOutputSize(size int64) error {
	if size > m.limits.MaxOutputSize {
		return ErrOutputTooLarge
	}
	return nil
}

func (m *Manager) refuse(id string, reason error, attrs ...logging.Attr) {
	attrs = append(attrs,
		logging.String(logging.FieldSessionID, id),
		logging.String("reason", reason.Error()),
		logging.String(logging.FieldEventType, "quota_refused"),
	)
	m.logger.Warn("quota refused request", logging.Args(attrs...)...)
}
