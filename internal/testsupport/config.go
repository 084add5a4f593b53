package testsupport

import (
	"path/filepath"
	"testing"

	"anigiffy/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns a validated config rooted in a fresh temp directory.
// Each call gets its own on-disk ledger so parallel tests stay isolated.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "user_data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Ledger.Path = filepath.Join(base, "ledger.db")

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithQuotas overrides the storage quotas.
func WithQuotas(maxUpload, maxTotal int64, maxImages, maxProjects int) ConfigOption {
	return func(c *config.Config) {
		c.Quotas.MaxUploadSize = maxUpload
		c.Quotas.MaxTotalStorage = maxTotal
		c.Quotas.MaxImages = maxImages
		c.Quotas.MaxProjects = maxProjects
	}
}

// WithAPIToken requires bearer authentication.
func WithAPIToken(token string) ConfigOption {
	return func(c *config.Config) {
		c.Paths.APIToken = token
	}
}

// WithRateLimits replaces every rate limit rule.
func WithRateLimits(upload, generate, save, general string) ConfigOption {
	return func(c *config.Config) {
		c.RateLimits.Upload = upload
		c.RateLimits.Generate = generate
		c.RateLimits.SaveProject = save
		c.RateLimits.GeneralAPI = general
	}
}
