package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Camera contains capture device settings.
type Camera struct {
	Driver         string   `toml:"driver"`
	Model          string   `toml:"model"`
	ExposureUS     int      `toml:"exposure_us"`
	Gain           int      `toml:"gain"`
	ImageType      string   `toml:"image_type"`
	WBR            int      `toml:"wb_r"`
	WBB            int      `toml:"wb_b"`
	Width          int      `toml:"width"`
	Height         int      `toml:"height"`
	Command        string   `toml:"command"`
	CommandArgs    []string `toml:"command_args"`
	CommandTimeout int      `toml:"command_timeout"`
	USBVendorID    string   `toml:"usb_vendor_id"`
}

// Schedule contains the daily capture time and the zone it is interpreted in.
type Schedule struct {
	CaptureTime string `toml:"capture_time"`
	Timezone    string `toml:"timezone"`
}

// Storage contains image archive settings.
type Storage struct {
	BasePath          string `toml:"base_path"`
	MonthlySubfolders bool   `toml:"monthly_subfolders"`
	MinFreeSpaceMB    int    `toml:"min_free_space_mb"`
}

// PostProcess contains conversion and composite settings.
type PostProcess struct {
	Enabled       bool   `toml:"enabled"`
	CompositePath string `toml:"composite_path"`
	ForceConvert  bool   `toml:"force_convert"`
}

// Sync contains remote mirror settings for the external copy tool.
type Sync struct {
	Enabled        bool   `toml:"enabled"`
	Remote         string `toml:"remote"`
	Files          string `toml:"files"`
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Paths contains daemon state and log directories.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	CaptureSuccess bool   `toml:"capture_success"`
	CaptureFailure bool   `toml:"capture_failure"`
	LowStorage     bool   `toml:"low_storage"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Analemma.
//
// Configuration sections by subsystem:
//   - Camera: driver selection, exposure, gain, and output format
//   - Schedule: daily capture time and timezone
//   - Storage: archive location and free-space threshold
//   - PostProcess: TIFF conversion and composite output
//   - Sync: rclone remote mirror
//   - Paths: daemon state and log directories
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Camera        Camera        `toml:"camera"`
	Schedule      Schedule      `toml:"schedule"`
	Storage       Storage       `toml:"storage"`
	PostProcess   PostProcess   `toml:"postprocess"`
	Sync          Sync          `toml:"sync"`
	Paths         Paths         `toml:"paths"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigRelativePath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(resolvedPath), defaultEnvFilename)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set.
func loadEnvFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigRelativePath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The image archive is created on a best-effort basis so the daemon can run
// while removable storage is absent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Storage.BasePath) != "" {
		_ = os.MkdirAll(c.Storage.BasePath, 0o755)
	}
	return nil
}

// LedgerPath returns the run-statistics file location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, ledgerFilename)
}

// HistoryPath returns the capture history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, historyFilename)
}

// DaemonLockPath returns the single-instance lock file used by the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, daemonLockFilename)
}

// CaptureLockPath returns the lock file guarding the capture workflow.
func (c *Config) CaptureLockPath() string {
	return filepath.Join(c.Paths.StateDir, captureLockFilename)
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, socketFilename)
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, pidFilename)
}

// CompositePath returns the composite output, defaulting to a fixed name under the archive root.
func (c *Config) CompositePath() string {
	if strings.TrimSpace(c.PostProcess.CompositePath) != "" {
		return c.PostProcess.CompositePath
	}
	return filepath.Join(c.Storage.BasePath, defaultCompositeFilename)
}

// SyncBinary returns the external copy tool executable name.
func (c *Config) SyncBinary() string {
	if strings.TrimSpace(c.Sync.Binary) == "" {
		return defaultSyncBinary
	}
	return c.Sync.Binary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
