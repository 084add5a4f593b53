package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"anigiffy/internal/ratelimit"
)

var (
	validResamplers = map[string]struct{}{
		"catmull-rom":     {},
		"bilinear":        {},
		"approx-bilinear": {},
		"nearest":         {},
	}
	validEasings = map[string]struct{}{
		"linear":       {},
		"in-out-quad":  {},
		"in-out-cubic": {},
		"in-out-sine":  {},
	}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQuotas(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateQuotas() error {
	if err := ensurePositiveMap(map[string]int64{
		"quotas.max_upload_size":   c.Quotas.MaxUploadSize,
		"quotas.max_total_storage": c.Quotas.MaxTotalStorage,
		"quotas.max_images":        int64(c.Quotas.MaxImages),
		"quotas.max_frames":        int64(c.Quotas.MaxFrames),
		"quotas.max_output_size":   c.Quotas.MaxOutputSize,
		"quotas.max_dimension":     int64(c.Quotas.MaxDimension),
		"quotas.max_projects":      int64(c.Quotas.MaxProjects),
		"quotas.max_request_size":  c.Quotas.MaxRequestSize,
	}); err != nil {
		return err
	}
	if c.Quotas.MaxUploadSize > c.Quotas.MaxTotalStorage {
		return errors.New("quotas.max_upload_size must not exceed quotas.max_total_storage")
	}
	return nil
}

func (c *Config) validateCleanup() error {
	return ensurePositiveMap(map[string]int64{
		"cleanup.session_lifetime": int64(c.Cleanup.SessionLifetime),
		"cleanup.cleanup_interval": int64(c.Cleanup.CleanupInterval),
		"cleanup.orphan_file_age":  int64(c.Cleanup.OrphanFileAge),
	})
}

func (c *Config) validateRateLimits() error {
	for key, value := range map[string]string{
		"rate_limits.upload":       c.RateLimits.Upload,
		"rate_limits.generate":     c.RateLimits.Generate,
		"rate_limits.save_project": c.RateLimits.SaveProject,
		"rate_limits.general_api":  c.RateLimits.GeneralAPI,
	} {
		if _, err := ratelimit.Parse(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	if _, ok := validResamplers[c.Render.Resampler]; !ok {
		return fmt.Errorf("render.resampler must be one of catmull-rom, bilinear, approx-bilinear, nearest (got %q)", c.Render.Resampler)
	}
	if _, ok := validEasings[c.Render.TransitionEasing]; !ok {
		return fmt.Errorf("render.transition_easing must be one of linear, in-out-quad, in-out-cubic, in-out-sine (got %q)", c.Render.TransitionEasing)
	}
	if c.Render.PreviewFrames > c.Quotas.MaxFrames {
		return errors.New("render.preview_frames must not exceed quotas.max_frames")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.MQTTBroker == "" {
		return nil
	}
	if !strings.Contains(c.Notifications.MQTTBroker, "://") {
		return errors.New("notifications.mqtt_broker must include a scheme such as tcp://")
	}
	if c.Notifications.MQTTTopic == "" {
		return errors.New("notifications.mqtt_topic must be set when notifications.mqtt_broker is set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int64) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
