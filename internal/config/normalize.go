package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeRateLimits()
	c.normalizeRender()
	c.normalizeSession()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("ANIGIFFY_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLedger() error {
	c.Ledger.Path = strings.TrimSpace(c.Ledger.Path)
	if c.Ledger.Path == "" {
		return nil
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRateLimits() {
	c.RateLimits.Upload = defaultString(c.RateLimits.Upload, defaultUploadLimit)
	c.RateLimits.Generate = defaultString(c.RateLimits.Generate, defaultGenerateLimit)
	c.RateLimits.SaveProject = defaultString(c.RateLimits.SaveProject, defaultSaveProjectLimit)
	c.RateLimits.GeneralAPI = defaultString(c.RateLimits.GeneralAPI, defaultGeneralAPILimit)
}

func (c *Config) normalizeRender() {
	if c.Render.PreviewFrames <= 0 {
		c.Render.PreviewFrames = defaultPreviewFrames
	}
	c.Render.Resampler = strings.ToLower(defaultString(c.Render.Resampler, defaultResampler))
	c.Render.TransitionEasing = strings.ToLower(defaultString(c.Render.TransitionEasing, defaultTransitionEasing))
}

func (c *Config) normalizeSession() {
	c.Session.CookieName = defaultString(c.Session.CookieName, defaultCookieName)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.MQTTBroker = strings.TrimSpace(c.Notifications.MQTTBroker)
	c.Notifications.MQTTTopic = strings.Trim(defaultString(c.Notifications.MQTTTopic, defaultMQTTTopic), "/")
	c.Notifications.MQTTClientID = defaultString(c.Notifications.MQTTClientID, defaultMQTTClientID)
	c.Notifications.MQTTUsername = strings.TrimSpace(c.Notifications.MQTTUsername)
	if c.Notifications.MQTTPassword == "" {
		if value, ok := os.LookupEnv("ANIGIFFY_MQTT_PASSWORD"); ok {
			c.Notifications.MQTTPassword = value
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
