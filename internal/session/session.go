package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"anigiffy/internal/animation"
	"anigiffy/internal/config"
	"anigiffy/internal/logging"
)

// Subdirectories created for every session.
const (
	UploadsDir  = "uploads"
	ProjectsDir = "projects"
	OutputDir   = "output"
)

var (
	// ErrInvalidID indicates a malformed session token.
	ErrInvalidID = errors.New("invalid session id")
	// ErrNotFound indicates the session directory does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrTraversal indicates a path that would leave the session directory.
	ErrTraversal = errors.New("invalid path: directory traversal detected")
)

// Store manages session directories below a single root.
type Store struct {
	root      string
	lifetime  time.Duration
	orphanAge time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Store rooted at the configured data directory.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		root:      cfg.Paths.DataDir,
		lifetime:  cfg.SessionLifetime(),
		orphanAge: cfg.OrphanFileAge(),
		logger:    logging.NewComponentLogger(logger, "session"),
		now:       time.Now,
	}
}

// Root returns the directory holding every session.
func (s *Store) Root() string { return s.root }

// NewID returns a fresh URL-safe session token.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidID reports whether id can name a session directory.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Dir returns the directory of session id.
func (s *Store) Dir(id string) (string, error) {
	if !ValidID(id) {
		return "", ErrInvalidID
	}
	return filepath.Join(s.root, id), nil
}

// Init creates the directory layout for id.
func (s *Store) Init(id string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	for _, sub := range []string{UploadsDir, ProjectsDir, OutputDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("initialize session storage: %w", err)
		}
	}
	s.logger.Info("session initialized",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "session_initialized"),
	)
	return nil
}

// Touch marks id as accessed now. Missing sessions are ignored.
func (s *Store) Touch(id string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	now := s.now()
	if err := os.Chtimes(dir, now, now); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Valid reports whether id exists and has been used within the lifetime.
func (s *Store) Valid(id string) bool {
	dir, err := s.Dir(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	if s.Expired(info.ModTime()) {
		s.logger.Info("session expired",
			logging.String(logging.FieldSessionID, id),
			logging.String(logging.FieldEventType, "session_expired"),
		)
		return false
	}
	return true
}

// Resolve joins parts below the session directory and rejects anything that
// would escape it, including through symlinks.
func (s *Store) Resolve(id string, parts ...string) (string, error) {
	base, err := s.Dir(id)
	if err != nil {
		return "", err
	}
	for _, part := range parts {
		if filepath.IsAbs(part) || strings.HasPrefix(part, "/") || strings.HasPrefix(part, `\`) {
			return "", ErrTraversal
		}
	}
	target := filepath.Join(base, filepath.FromSlash(strings.Join(parts, "/")))
	if !within(base, target) {
		return "", ErrTraversal
	}

	realBase, err := evalExisting(base)
	if err != nil {
		return "", err
	}
	realTarget, err := evalExisting(target)
	if err != nil {
		return "", err
	}
	if !within(realBase, realTarget) {
		return "", ErrTraversal
	}
	return target, nil
}

// Resolver returns a frame source resolver confined to session id.
func (s *Store) Resolver(id string) animation.ResolveFunc {
	return func(ref string) (string, error) {
		path, err := s.Resolve(id, ref)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			return "", animation.ErrSourceNotFound
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}
}

// Delete removes every file of session id.
func (s *Store) Delete(id string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("session deleted",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "session_deleted"),
	)
	return nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the remainder unchanged.
func evalExisting(path string) (string, error) {
	var rest []string
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			real, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", fmt.Errorf("resolve path: %w", err)
			}
			for i := len(rest) - 1; i >= 0; i-- {
				real = filepath.Join(real, rest[i])
			}
			return real, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = append(rest, filepath.Base(current))
		current = parent
	}
}
