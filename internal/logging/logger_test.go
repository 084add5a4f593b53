package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anigiffy/internal/config"
	"anigiffy/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("server started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "server started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleHeaderFoldsComponentAndSession(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "encoder")
	logger.Info("gif generated",
		logging.String(logging.FieldSessionID, "abcdefghijklmnopqrstuvwxyz"),
		logging.String(logging.FieldProject, "demo"),
		logging.Int("frames", 12),
	)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one field, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "INFO [encoder] Session abcdefgh (demo) - gif generated") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if strings.Contains(buf.String(), "ijklmnop") {
		t.Fatalf("session token leaked into log: %q", buf.String())
	}
	if strings.TrimSpace(lines[1]) != "- frames: 12" {
		t.Fatalf("unexpected field line: %q", lines[1])
	}
}

func TestConsoleRendersFrameAndByteSizes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("frame skipped",
		logging.String(logging.FieldProject, "demo"),
		logging.String(logging.FieldFrameID, "f3"),
		logging.Int64("size_bytes", 2_500_000),
		logging.Int("frames", 4),
		logging.Int("frames", 5),
	)

	out := buf.String()
	if !strings.Contains(out, "Project demo frame f3 - frame skipped") {
		t.Fatalf("expected frame in header, got %q", out)
	}
	if !strings.Contains(out, "- size_bytes: 2.5 MB (2500000)") {
		t.Fatalf("expected humanized size, got %q", out)
	}
	if strings.Count(out, "- frames:") != 1 || !strings.Contains(out, "- frames: 5") {
		t.Fatalf("expected last value to win for repeated keys, got %q", out)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("quota hit", logging.String(logging.FieldSessionID, "0123456789abcdef"), logging.Error(errors.New("full")))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lower-case level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
	if payload[logging.FieldSessionID] != "01234567" {
		t.Fatalf("expected shortened session id, got %v", payload[logging.FieldSessionID])
	}
	if payload["error"] != "full" {
		t.Fatalf("expected error text, got %v", payload["error"])
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsSessionAndRequest(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithSessionID(context.Background(), "session-token-value")
	ctx = logging.WithRequestID(ctx, "req-1")

	logging.WithContext(ctx, base).Info("handled")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"session-"`) {
		t.Fatalf("expected session id attribute, got %s", out)
	}
	if !strings.Contains(out, `"correlation_id":"req-1"`) {
		t.Fatalf("expected correlation id attribute, got %s", out)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "skipped frame", "frame_skipped", logging.String(logging.FieldImpact, "frame omitted"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload[logging.FieldEventType] != "frame_skipped" {
		t.Fatalf("unexpected event type: %v", payload[logging.FieldEventType])
	}
	if payload[logging.FieldErrorHint] == nil {
		t.Fatal("expected error hint default")
	}
	if payload[logging.FieldImpact] != "frame omitted" {
		t.Fatalf("expected caller impact to win, got %v", payload[logging.FieldImpact])
	}
}

func TestWithLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	quiet := logging.WithLevelOverride(logger, slog.LevelWarn)
	quiet.Info("hidden")
	quiet.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "anigiffy-old.log")
	fresh := filepath.Join(dir, "anigiffy-new.log")
	keep := filepath.Join(dir, "anigiffy-current.log")
	for _, path := range []string{old, fresh, keep} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, keep} {
		if err := os.Chtimes(path, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "anigiffy-*.log",
		Exclude: []string{keep},
	})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected stale log to be removed")
	}
	for _, path := range []string{fresh, keep} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}
