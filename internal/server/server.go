package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"anigiffy/internal/animation"
	"anigiffy/internal/config"
	"anigiffy/internal/frameprep"
	"anigiffy/internal/ledger"
	"anigiffy/internal/logging"
	"anigiffy/internal/notifications"
	"anigiffy/internal/preflight"
	"anigiffy/internal/quota"
	"anigiffy/internal/ratelimit"
	"anigiffy/internal/session"
)

// Rate limit buckets.
const (
	limitUpload   = "upload"
	limitGenerate = "generate"
	limitSave     = "save_project"
	limitGeneral  = "general_api"
)

// Server handles API requests for browser sessions.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	access   *slog.Logger
	sessions *session.Store
	quotas   *quota.Manager
	encoder  *animation.Encoder
	prep     *frameprep.Preparer
	ledger   *ledger.Store
	notifier notifications.Service
	guard    preflight.MemoryGuard
	limiters map[string]*ratelimit.Limiter
	started  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithLedger records generation jobs in store.
func WithLedger(store *ledger.Store) Option {
	return func(s *Server) { s.ledger = store }
}

// WithNotifier publishes generation events through n.
func WithNotifier(n notifications.Service) Option {
	return func(s *Server) { s.notifier = n }
}

// WithMemoryGuard replaces the encode memory guard.
func WithMemoryGuard(g preflight.MemoryGuard) Option {
	return func(s *Server) { s.guard = g }
}

// New builds a Server from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server requires config")
	}
	logger = logging.NewComponentLogger(logger, "api")
	encoder, err := animation.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}
	sessions := session.New(cfg, logger)

	limiters := make(map[string]*ratelimit.Limiter, 4)
	for name, rule := range map[string]string{
		limitUpload:   cfg.RateLimits.Upload,
		limitGenerate: cfg.RateLimits.Generate,
		limitSave:     cfg.RateLimits.SaveProject,
		limitGeneral:  cfg.RateLimits.GeneralAPI,
	} {
		if rule == "" {
			continue
		}
		rules, err := ratelimit.Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", name, err)
		}
		limiters[name] = ratelimit.New(rules)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		access:   logging.WithLevelOverride(logger.With(logging.String(logging.FieldComponent, "http")), slog.LevelInfo),
		sessions: sessions,
		quotas:   quota.New(cfg.Quotas, sessions, logger),
		encoder:  encoder,
		prep:     encoder.Preparer,
		notifier: notifications.NewService(cfg, logger),
		limiters: limiters,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sessions exposes the session store for maintenance tasks.
func (s *Server) Sessions() *session.Store { return s.sessions }

// Handler returns the fully wrapped API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, bucket string, h http.HandlerFunc) {
		mux.Handle(pattern, s.rateLimit(bucket, h))
	}

	route("POST /api/frames/upload", limitUpload, s.handleUpload)
	route("POST /api/frames/add", limitGeneral, s.handleAddFrame)
	route("PUT /api/frames/reorder", limitGeneral, s.handleReorderFrames)
	route("PUT /api/frames/{id}", limitGeneral, s.handleUpdateFrame)
	route("DELETE /api/frames/{id}", limitGeneral, s.handleDeleteFrame)
	route("GET /api/frames/list", limitGeneral, s.handleListImages)
	route("GET /api/frames/image/{filename}", limitGeneral, s.handleServeImage)

	route("POST /api/generate/preview", limitGenerate, s.handlePreview)
	route("POST /api/generate/full", limitGenerate, s.handleFull)
	route("GET /api/generate/file/{filename}", limitGeneral, s.handleServeOutput(false))
	route("GET /api/generate/download/{filename}", limitGeneral, s.handleServeOutput(true))
	route("GET /api/generate/list", limitGeneral, s.handleListOutputs)
	route("GET /api/generate/history", limitGeneral, s.handleHistory)
	route("GET /api/generate/qr/{filename}", limitGeneral, s.handleQRCode)

	route("POST /api/projects", limitSave, s.handleSaveProject)
	route("GET /api/projects", limitGeneral, s.handleListProjects)
	route("GET /api/projects/{name}", limitGeneral, s.handleLoadProject)
	route("DELETE /api/projects/{name}", limitGeneral, s.handleDeleteProject)

	route("GET /api/session/stats", limitGeneral, s.handleSessionStats)
	route("GET /api/status", limitGeneral, s.handleStatus)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = s.withSession(h)
	h = authMiddleware(s.cfg.Paths.APIToken, h)
	h = securityHeaders(h)
	h = s.accessLog(h)
	h = requestID(h)
	return h
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}

// pruneLimiters forgets rate limit clients idle for longer than maxIdle.
func (s *Server) pruneLimiters(maxIdle time.Duration) int {
	removed := 0
	for _, l := range s.limiters {
		removed += l.Prune(maxIdle)
	}
	return removed
}
