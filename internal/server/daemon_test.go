package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anigiffy/internal/logging"
	"anigiffy/internal/session"
	"anigiffy/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewDaemon(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running || status.Address == "" {
		t.Fatalf("expected running daemon with address, got %+v", status)
	}
	if status.LockFilePath != filepath.Join(cfg.Paths.DataDir, LockFileName) {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	resp, err := http.Get("http://" + status.Address + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := NewDaemon(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	t.Cleanup(func() { _ = other.Close() })
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already using") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Addr() != "" {
		t.Fatal("expected listener to be released")
	}

	if err := other.Start(ctx); err != nil {
		t.Fatalf("lock should be free after stop: %v", err)
	}
}

func TestDaemonSweepRemovesExpiredSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	d, err := NewDaemon(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	sessions := d.server.Sessions()
	stale, _ := session.NewID()
	fresh, _ := session.NewID()
	for _, id := range []string{stale, fresh} {
		if err := sessions.Init(id); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	freshDir, _ := sessions.Dir(fresh)
	preview := filepath.Join(freshDir, session.OutputDir, "preview_old.gif")
	testsupport.WriteFile(t, preview, 64)

	old := time.Now().Add(-cfg.SessionLifetime() - time.Hour)
	staleDir, _ := sessions.Dir(stale)
	if err := os.Chtimes(staleDir, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	orphanAge := time.Now().Add(-cfg.OrphanFileAge() - time.Hour)
	if err := os.Chtimes(preview, orphanAge, orphanAge); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result := d.Sweep(ctx)
	if result.ExpiredSessions != 1 || result.OrphanFiles != 1 || result.Errors != 0 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Fatal("expected stale session to be removed")
	}
	if _, err := os.Stat(preview); !os.IsNotExist(err) {
		t.Fatal("expected orphaned preview to be removed")
	}
	if _, err := os.Stat(freshDir); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}
