package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeCamera()
	c.normalizeSchedule()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.Driver = strings.ToLower(strings.TrimSpace(c.Camera.Driver))
	if c.Camera.Driver == "" {
		c.Camera.Driver = defaultCameraDriver
	}
	c.Camera.ImageType = strings.ToLower(strings.TrimSpace(c.Camera.ImageType))
	if c.Camera.ImageType == "" {
		c.Camera.ImageType = defaultImageType
	}
	c.Camera.Model = strings.TrimSpace(c.Camera.Model)
	if c.Camera.Model == "" {
		c.Camera.Model = defaultCameraModel
	}
	c.Camera.Command = strings.TrimSpace(c.Camera.Command)
	c.Camera.USBVendorID = strings.ToLower(strings.TrimSpace(c.Camera.USBVendorID))
	if c.Camera.CommandTimeout <= 0 {
		c.Camera.CommandTimeout = defaultCommandTimeout
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.CaptureTime = strings.TrimSpace(c.Schedule.CaptureTime)
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
}

func (c *Config) normalizeStorage() error {
	var err error
	if strings.TrimSpace(c.Storage.BasePath) == "" {
		c.Storage.BasePath = defaultBasePath
	}
	if c.Storage.BasePath, err = expandPath(c.Storage.BasePath); err != nil {
		return fmt.Errorf("storage.base_path: %w", err)
	}
	if c.PostProcess.CompositePath, err = expandPath(strings.TrimSpace(c.PostProcess.CompositePath)); err != nil {
		return fmt.Errorf("postprocess.composite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSync() {
	c.Sync.Remote = strings.TrimSpace(c.Sync.Remote)
	if c.Sync.Remote == "" {
		if value, ok := os.LookupEnv("ANALEMMA_SYNC_REMOTE"); ok {
			c.Sync.Remote = strings.TrimSpace(value)
		}
	}
	c.Sync.Files = strings.ToLower(strings.TrimSpace(c.Sync.Files))
	if c.Sync.Files == "" {
		c.Sync.Files = defaultSyncFiles
	}
	c.Sync.Binary = strings.TrimSpace(c.Sync.Binary)
	if c.Sync.Binary == "" {
		c.Sync.Binary = defaultSyncBinary
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = defaultSyncTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("ANALEMMA_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
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
