package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"anigiffy/internal/logging"
)

// PreviewPrefix marks throwaway preview outputs eligible for orphan cleanup.
const PreviewPrefix = "preview_"

// CleanResult contains the outcome of a cleanup sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanExpired removes sessions idle for longer than the configured lifetime.
func (s *Store) CleanExpired(ctx context.Context) CleanResult {
	result := CleanResult{}
	root := strings.TrimSpace(s.root)
	if root == "" || s.lifetime <= 0 {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := s.now().Add(-s.lifetime)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			logging.WarnWithContext(s.logger, "failed to remove expired session", "session_cleanup_failed",
				logging.String(logging.FieldSessionID, entry.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir)
		s.logger.Info("removed expired session",
			logging.String(logging.FieldSessionID, entry.Name()),
			logging.Duration("idle", s.now().Sub(info.ModTime())),
			logging.String(logging.FieldEventType, "session_cleanup"),
		)
	}
	return result
}

// CleanOrphans removes preview outputs older than the orphan file age from
// every session.
func (s *Store) CleanOrphans(ctx context.Context) CleanResult {
	result := CleanResult{}
	if s.orphanAge <= 0 {
		return result
	}
	sessions, err := s.List()
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: s.root, Error: err})
		return result
	}

	cutoff := s.now().Add(-s.orphanAge)
	for _, sess := range sessions {
		if ctx.Err() != nil {
			break
		}
		outDir := filepath.Join(sess.Path, OutputDir)
		entries, err := os.ReadDir(outDir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasPrefix(entry.Name(), PreviewPrefix) {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(outDir, entry.Name())
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				continue
			}
			result.Removed = append(result.Removed, path)
		}
	}
	if len(result.Removed) > 0 {
		s.logger.Info("removed orphaned previews",
			logging.Int("count", len(result.Removed)),
			logging.String(logging.FieldEventType, "orphan_cleanup"),
		)
	}
	return result
}

// Expired reports whether a session last touched at modTime has expired.
func (s *Store) Expired(modTime time.Time) bool {
	return s.lifetime > 0 && s.now().Sub(modTime) > s.lifetime
}
