package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"analemma/internal/config"
	"analemma/internal/imaging"
	"analemma/internal/logging"
)

// Info is the static descriptor a connected camera reports.
type Info struct {
	Name          string  `json:"name"`
	CameraID      int     `json:"camera_id"`
	MaxWidth      int     `json:"max_width"`
	MaxHeight     int     `json:"max_height"`
	IsColor       bool    `json:"is_color"`
	BayerPattern  string  `json:"bayer_pattern,omitempty"`
	SupportedBins []int   `json:"supported_bins"`
	PixelSize     float64 `json:"pixel_size"`
	BitDepth      int     `json:"bit_depth"`
	IsUSB3        bool    `json:"is_usb3"`
}

// Result is one captured frame plus the settings in effect.
type Result struct {
	Frame       imaging.Frame
	ExposureUS  int
	Gain        int
	Temperature *float64
	Width       int
	Height      int
	Timestamp   time.Time
}

// Device is an exclusively owned capture device.
type Device interface {
	Connect(ctx context.Context) (Info, error)
	Capture(ctx context.Context) (Result, error)
	// Disconnect is idempotent. Callers log but never act on its error.
	Disconnect() error
	Info() (Info, error)
}

// Settings are the exposure parameters applied on connect.
type Settings struct {
	ExposureUS int
	Gain       int
	WBR        int
	WBB        int
	Color      bool
}

// SettingsFromConfig extracts capture settings from camera configuration.
func SettingsFromConfig(cfg config.Camera) Settings {
	return Settings{ExposureUS: cfg.ExposureUS, Gain: cfg.Gain, WBR: cfg.WBR, WBB: cfg.WBB, Color: true}
}

const simulatedPrefix = "Simulated "

// IsSimulated reports whether cfg selects the synthetic camera.
func IsSimulated(cfg config.Camera) bool {
	return cfg.Driver == "" || cfg.Driver == "simulator"
}

// SimulatedModel labels model as synthetic so archived metadata never
// attributes a rendered frame to real hardware.
func SimulatedModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return simulatedPrefix + "Camera"
	}
	if strings.HasPrefix(model, simulatedPrefix) {
		return model
	}
	return simulatedPrefix + model
}

// DisplayModel is the model name status output should show for cfg.
func DisplayModel(cfg config.Camera) string {
	if IsSimulated(cfg) {
		return SimulatedModel(cfg.Model)
	}
	return cfg.Model
}

// New selects the driver named by camera.driver.
func New(cfg config.Camera, logger *slog.Logger) (Device, error) {
	switch cfg.Driver {
	case "", "simulator":
		return NewSimulator(SimulatorConfig{
			Model:    SimulatedModel(cfg.Model),
			Width:    cfg.Width,
			Height:   cfg.Height,
			Settings: SettingsFromConfig(cfg),
		}), nil
	case "command":
		return NewCommandDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Driver)
	}
}

// WithSession connects dev, runs fn, and disconnects on every exit path,
// including a panic in fn. Disconnect errors are logged, never returned.
func WithSession(ctx context.Context, dev Device, logger *slog.Logger, fn func(Info) error) (err error) {
	info, err := dev.Connect(ctx)
	if err != nil {
		// A partially opened handle is still released.
		release(dev, logger)
		return err
	}
	defer release(dev, logger)
	return fn(info)
}

func release(dev Device, logger *slog.Logger) {
	if err := dev.Disconnect(); err != nil {
		logging.WarnWithContext(logger, "camera disconnect failed", "camera_disconnect_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "camera handle may stay open until process exit"),
		)
	}
}
