package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"analemma/internal/scheduler"
)

var vendorIDPattern = regexp.MustCompile(`^[0-9a-f]{4}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Driver {
	case "simulator":
	case "command":
		if c.Camera.Command == "" {
			return errors.New("camera.command must be set when camera.driver is \"command\"")
		}
	default:
		return fmt.Errorf("camera.driver must be \"simulator\" or \"command\", got %q", c.Camera.Driver)
	}
	switch c.Camera.ImageType {
	case "fits", "png":
	default:
		return fmt.Errorf("camera.image_type must be \"fits\" or \"png\", got %q", c.Camera.ImageType)
	}
	if c.Camera.ExposureUS < minExposureUS || c.Camera.ExposureUS > maxExposureUS {
		return fmt.Errorf("camera.exposure_us must be between %d and %d", minExposureUS, maxExposureUS)
	}
	if c.Camera.Gain < 0 || c.Camera.Gain > maxGain {
		return fmt.Errorf("camera.gain must be between 0 and %d", maxGain)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	if c.Camera.USBVendorID != "" && !vendorIDPattern.MatchString(c.Camera.USBVendorID) {
		return fmt.Errorf("camera.usb_vendor_id must be four hex digits, got %q", c.Camera.USBVendorID)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := scheduler.ParseTimeOfDay(c.Schedule.CaptureTime); err != nil {
		return fmt.Errorf("schedule.capture_time: %w", err)
	}
	if _, err := scheduler.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.BasePath) == "" {
		return errors.New("storage.base_path must be set")
	}
	if c.Storage.MinFreeSpaceMB < 0 {
		return errors.New("storage.min_free_space_mb must be >= 0")
	}
	return nil
}

func (c *Config) validateSync() error {
	switch c.Sync.Files {
	case "tiff", "composite", "all":
	default:
		return fmt.Errorf("sync.files must be one of tiff, composite, all; got %q", c.Sync.Files)
	}
	if c.Sync.Enabled && c.Sync.Remote == "" {
		return errors.New("sync.remote must be set when sync.enabled is true (or set ANALEMMA_SYNC_REMOTE)")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"camera.command_timeout":        c.Camera.CommandTimeout,
		"sync.timeout_seconds":          c.Sync.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
