package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"anigiffy/internal/config"
	"anigiffy/internal/ledger"
	"anigiffy/internal/logging"
	"anigiffy/internal/notifications"
	"anigiffy/internal/preflight"
)

// LockFileName is created in the data directory while a daemon runs.
const LockFileName = "anigiffy.lock"

const limiterIdle = time.Hour

// Daemon runs the API server and the periodic session cleanup, and enforces
// single-instance execution per data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	server   *Server
	ledger   *ledger.Store
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DataDir      string
	LockFilePath string
	LedgerDSN    string
	Sessions     int
}

// SweepResult summarizes one maintenance pass.
type SweepResult struct {
	ExpiredSessions int
	OrphanFiles     int
	Errors          int
	LedgerPruned    int64
	LogsPruned      int
	LimitersPruned  int
}

// NewDaemon opens the job ledger and builds the API server.
func NewDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	notifier := notifications.NewService(cfg, logger)
	srv, err := New(cfg, logger, WithLedger(store), WithNotifier(notifier))
	if err != nil {
		notifier.Close()
		_ = store.Close()
		return nil, err
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, LockFileName)
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		server:   srv,
		ledger:   store,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, runs preflight checks, starts listening
// and launches the cleanup loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another anigiffy instance is already using this data directory")
	}

	if err := d.preflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	listener, err := net.Listen("tcp", strings.TrimSpace(d.cfg.Paths.APIBind))
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	d.listener = listener
	d.http = &http.Server{
		Handler:           d.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.cleanupLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("anigiffy server started",
		logging.String("address", listener.Addr().String()),
		logging.String("data_dir", d.cfg.Paths.DataDir),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// preflight fails when a required directory is unusable and logs every other
// failed check.
func (d *Daemon) preflight(ctx context.Context) error {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		if strings.HasSuffix(result.Name, "directory") {
			return fmt.Errorf("preflight %s: %s", strings.ToLower(result.Name), result.Detail)
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "generation may fail under load"),
		)
	}
	return nil
}

// Stop shuts the listener down, waits for the cleanup loop and releases the
// instance lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.http.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api shutdown incomplete", logging.Error(err))
		}
		cancel()
		d.http = nil
	}
	d.wg.Wait()
	d.listener = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("anigiffy server stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the ledger and notifier.
func (d *Daemon) Close() error {
	d.Stop()
	d.notifier.Close()
	return d.ledger.Close()
}

// Addr returns the bound listener address, or "" when stopped.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Address:      d.Addr(),
		DataDir:      d.cfg.Paths.DataDir,
		LockFilePath: d.lockPath,
		LedgerDSN:    d.cfg.LedgerDSN(),
	}
	if infos, err := d.server.sessions.List(); err == nil {
		status.Sessions = len(infos)
	}
	return status
}

func (d *Daemon) cleanupLoop(ctx context.Context) {
	interval := d.cfg.CleanupInterval()
	if interval <= 0 {
		return
	}
	d.Sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep removes expired sessions and stale files, prunes the ledger and old
// logs, and forgets idle rate limit clients.
func (d *Daemon) Sweep(ctx context.Context) SweepResult {
	sessions := d.server.sessions
	expired := sessions.CleanExpired(ctx)
	orphans := sessions.CleanOrphans(ctx)

	result := SweepResult{
		ExpiredSessions: len(expired.Removed),
		OrphanFiles:     len(orphans.Removed),
		Errors:          len(expired.Errors) + len(orphans.Errors),
		LimitersPruned:  d.server.pruneLimiters(limiterIdle),
	}
	for _, failure := range append(expired.Errors, orphans.Errors...) {
		d.logger.Warn("cleanup failed",
			logging.String("path", failure.Path),
			logging.Error(failure.Error),
		)
	}

	pruned, err := d.ledger.PruneBefore(ctx, time.Now().Add(-d.cfg.SessionLifetime()))
	if err != nil {
		d.logger.Warn("ledger prune failed", logging.Error(err))
	}
	result.LedgerPruned = pruned

	result.LogsPruned = logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(d.cfg.Paths.LogDir, logging.LogFileName)},
	})

	removed := result.ExpiredSessions + result.OrphanFiles
	if removed > 0 {
		if err := d.notifier.NotifyCleanup(ctx, removed); err != nil {
			d.logger.Warn("cleanup notification failed", logging.Error(err))
		}
	}
	d.logger.Info("cleanup completed",
		logging.Int("expired_sessions", result.ExpiredSessions),
		logging.Int("orphan_files", result.OrphanFiles),
		logging.Int64("ledger_pruned", result.LedgerPruned),
		logging.Int("logs_pruned", result.LogsPruned),
		logging.Int("errors", result.Errors),
		logging.String(logging.FieldEventType, "cleanup_completed"),
	)
	return result
}
