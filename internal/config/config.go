package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Quotas bounds what a single browser session may store and generate.
type Quotas struct {
	MaxUploadSize   int64 `toml:"max_upload_size"`
	MaxTotalStorage int64 `toml:"max_total_storage"`
	MaxImages       int   `toml:"max_images"`
	MaxFrames       int   `toml:"max_frames"`
	MaxOutputSize   int64 `toml:"max_output_size"`
	MaxDimension    int   `toml:"max_dimension"`
	MaxProjects     int   `toml:"max_projects"`
	MaxRequestSize  int64 `toml:"max_request_size"`
}

// Cleanup controls idle session expiry. Values are hours.
type Cleanup struct {
	SessionLifetime int `toml:"session_lifetime"`
	CleanupInterval int `toml:"cleanup_interval"`
	OrphanFileAge   int `toml:"orphan_file_age"`
}

// RateLimits holds per-route limits written as "10 per minute, 50 per hour".
type RateLimits struct {
	Upload      string `toml:"upload"`
	Generate    string `toml:"generate"`
	SaveProject string `toml:"save_project"`
	GeneralAPI  string `toml:"general_api"`
}

// Render contains encoder tuning knobs that are not part of a project.
type Render struct {
	PreviewFrames    int    `toml:"preview_frames"`
	Resampler        string `toml:"resampler"`
	TransitionEasing string `toml:"transition_easing"`
}

// Session contains cookie settings for browser sessions.
type Session struct {
	CookieName   string `toml:"cookie_name"`
	CookieSecure bool   `toml:"cookie_secure"`
}

// Notifications contains configuration for MQTT event publishing.
type Notifications struct {
	MQTTBroker     string `toml:"mqtt_broker"`
	MQTTTopic      string `toml:"mqtt_topic"`
	MQTTClientID   string `toml:"mqtt_client_id"`
	MQTTUsername   string `toml:"mqtt_username"`
	MQTTPassword   string `toml:"mqtt_password"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Ledger configures the generation job ledger. An empty path keeps it in memory.
type Ledger struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for AniGiffy.
//
// Configuration sections by subsystem:
//   - Paths: session storage root, logs, and API bind address
//   - Quotas: per-session upload, storage, and output limits
//   - Cleanup: idle session expiry and orphaned preview removal
//   - RateLimits: per-route request budgets
//   - Render: preview size, resampling filter, transition easing
//   - Session: browser cookie settings
//   - Notifications: optional MQTT event publishing
//   - Ledger: generation job history
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Quotas        Quotas        `toml:"quotas"`
	Cleanup       Cleanup       `toml:"cleanup"`
	RateLimits    RateLimits    `toml:"rate_limits"`
	Render        Render        `toml:"render"`
	Session       Session       `toml:"session"`
	Notifications Notifications `toml:"notifications"`
	Ledger        Ledger        `toml:"ledger"`
	Logging       Logging       `toml:"logging"`
}

// EnsureDirectories creates the session storage root and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionLifetime returns how long an idle session survives.
func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.Cleanup.SessionLifetime) * time.Hour
}

// CleanupInterval returns the period between expiry sweeps.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.CleanupInterval) * time.Hour
}

// OrphanFileAge returns the age after which abandoned preview files are removed.
func (c *Config) OrphanFileAge() time.Duration {
	return time.Duration(c.Cleanup.OrphanFileAge) * time.Hour
}
