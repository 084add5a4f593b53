package config

const (
	defaultConfigPath          = "~/.config/anigiffy/config.toml"
	defaultDataDir             = "~/.local/share/anigiffy/user_data"
	defaultLogDir              = "~/.local/share/anigiffy/logs"
	defaultAPIBind             = "127.0.0.1:5173"
	defaultMaxUploadSize       = 10 * 1024 * 1024
	defaultMaxTotalStorage     = 50 * 1024 * 1024
	defaultMaxImages           = 50
	defaultMaxFrames           = 200
	defaultMaxOutputSize       = 20 * 1024 * 1024
	defaultMaxDimension        = 2000
	defaultMaxProjects         = 10
	defaultMaxRequestSize      = 50 * 1024 * 1024
	defaultSessionLifetime     = 168
	defaultCleanupInterval     = 24
	defaultOrphanFileAge       = 24
	defaultUploadLimit         = "10 per minute, 50 per hour"
	defaultGenerateLimit       = "5 per minute, 20 per hour"
	defaultSaveProjectLimit    = "30 per minute"
	defaultGeneralAPILimit     = "100 per minute"
	defaultPreviewFrames       = 10
	defaultResampler           = "catmull-rom"
	defaultTransitionEasing    = "linear"
	defaultCookieName          = "anigiffy_session"
	defaultMQTTTopic           = "anigiffy/events"
	defaultMQTTClientID        = "anigiffy"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultLedgerMemoryDSNName = "anigiffy-ledger"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Quotas: Quotas{
			MaxUploadSize:   defaultMaxUploadSize,
			MaxTotalStorage: defaultMaxTotalStorage,
			MaxImages:       defaultMaxImages,
			MaxFrames:       defaultMaxFrames,
			MaxOutputSize:   defaultMaxOutputSize,
			MaxDimension:    defaultMaxDimension,
			MaxProjects:     defaultMaxProjects,
			MaxRequestSize:  defaultMaxRequestSize,
		},
		Cleanup: Cleanup{
			SessionLifetime: defaultSessionLifetime,
			CleanupInterval: defaultCleanupInterval,
			OrphanFileAge:   defaultOrphanFileAge,
		},
		RateLimits: RateLimits{
			Upload:      defaultUploadLimit,
			Generate:    defaultGenerateLimit,
			SaveProject: defaultSaveProjectLimit,
			GeneralAPI:  defaultGeneralAPILimit,
		},
		Render: Render{
			PreviewFrames:    defaultPreviewFrames,
			Resampler:        defaultResampler,
			TransitionEasing: defaultTransitionEasing,
		},
		Session: Session{
			CookieName: defaultCookieName,
		},
		Notifications: Notifications{
			MQTTTopic:      defaultMQTTTopic,
			MQTTClientID:   defaultMQTTClientID,
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// LedgerDSN returns the sqlite DSN for the job ledger. Without a configured
// path the ledger lives in a shared in-memory database.
func (c *Config) LedgerDSN() string {
	if c.Ledger.Path == "" {
		return "file:" + defaultLedgerMemoryDSNName + "?mode=memory&cache=shared"
	}
	return c.Ledger.Path
}
