package camera

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"analemma/internal/imaging"
	"analemma/internal/services"
)

const (
	simulatorBackground = 8
	simulatorBitDepth   = 8
)

// SimulatorConfig configures the synthetic camera. The error fields script
// failures for tests and dry runs.
type SimulatorConfig struct {
	Model       string
	Width       int
	Height      int
	Settings    Settings
	Temperature *float64
	Clock       func() time.Time

	// ConnectErr is returned by every Connect call.
	ConnectErr error
	// CaptureErrs is consumed one entry per Capture call; nil entries succeed.
	CaptureErrs []error
	// AlwaysFail, when set, fails every capture after CaptureErrs is exhausted.
	AlwaysFail error
}

// Simulator renders a sun disc whose position follows the analemma over the
// year, so a season of simulated captures composites into the expected figure-eight.
type Simulator struct {
	cfg SimulatorConfig

	mu          sync.Mutex
	connected   bool
	connects    int
	captures    int
	disconnects int
}

// NewSimulator returns a disconnected simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Width <= 0 {
		cfg.Width = 1304
	}
	if cfg.Height <= 0 {
		cfg.Height = 976
	}
	if cfg.Model == "" {
		cfg.Model = "Simulated Camera"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Simulator{cfg: cfg}
}

func (s *Simulator) Connect(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if err := ctx.Err(); err != nil {
		return Info{}, services.Wrap(services.ErrConnection, "connecting", "connect", "", err)
	}
	if s.cfg.ConnectErr != nil {
		return Info{}, markConnection(s.cfg.ConnectErr)
	}
	s.connected = true
	return s.info(), nil
}

func (s *Simulator) Capture(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	if !s.connected {
		return Result{}, services.Wrap(services.ErrConnection, "capturing", "capture", "camera not connected", nil)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, services.Wrap(services.ErrCapture, "capturing", "capture", "", err)
	}
	if idx := s.captures - 1; idx < len(s.cfg.CaptureErrs) {
		if err := s.cfg.CaptureErrs[idx]; err != nil {
			return Result{}, markCapture(err)
		}
	} else if s.cfg.AlwaysFail != nil {
		return Result{}, markCapture(s.cfg.AlwaysFail)
	}

	ts := s.cfg.Clock()
	frame := renderSun(s.cfg.Width, s.cfg.Height, s.cfg.Settings.Color, ts)
	result := Result{
		Frame:      frame,
		ExposureUS: s.cfg.Settings.ExposureUS,
		Gain:       s.cfg.Settings.Gain,
		Width:      frame.Width,
		Height:     frame.Height,
		Timestamp:  ts,
	}
	if s.cfg.Temperature != nil {
		temp := *s.cfg.Temperature
		result.Temperature = &temp
	}
	return result, nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.connected = false
	return nil
}

func (s *Simulator) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return Info{}, services.Wrap(services.ErrConnection, "", "info", "camera not connected", nil)
	}
	return s.info(), nil
}

func (s *Simulator) info() Info {
	info := Info{
		Name:          s.cfg.Model,
		MaxWidth:      s.cfg.Width,
		MaxHeight:     s.cfg.Height,
		IsColor:       s.cfg.Settings.Color,
		SupportedBins: []int{1, 2},
		PixelSize:     3.75,
		BitDepth:      simulatorBitDepth,
	}
	if info.IsColor {
		info.BayerPattern = "RGGB"
	}
	return info
}

// CaptureCalls reports how many times Capture was invoked.
func (s *Simulator) CaptureCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// DisconnectCalls reports how many times Disconnect was invoked.
func (s *Simulator) DisconnectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Connected reports whether a session is open.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func markCapture(err error) error {
	if errors.Is(err, services.ErrCapture) || errors.Is(err, services.ErrConnection) {
		return err
	}
	return services.Wrap(services.ErrCapture, "capturing", "capture", "", err)
}

func markConnection(err error) error {
	if errors.Is(err, services.ErrConnection) {
		return err
	}
	return services.Wrap(services.ErrConnection, "connecting", "connect", "", err)
}

// renderSun draws a bright disc offset by the solar declination (vertical)
// and the equation of time (horizontal) for ts.
func renderSun(width, height int, color bool, ts time.Time) imaging.Frame {
	channels := 1
	if color {
		channels = 3
	}
	frame := imaging.NewFrame(width, height, channels)
	for i := range frame.Pix {
		frame.Pix[i] = simulatorBackground
	}

	day := float64(ts.YearDay())
	declination := 23.44 * math.Sin(2*math.Pi*(284+day)/365)
	b := 2 * math.Pi * (day - 81) / 364
	eotMinutes := 9.87*math.Sin(2*b) - 7.53*math.Cos(b) - 1.5*math.Sin(b)

	cx := float64(width)/2 + eotMinutes*float64(width)/80
	cy := float64(height)/2 - declination*float64(height)/60
	radius := math.Max(2, float64(min(width, height))/20)
	tint := []uint8{250, 236, 196}

	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			base := (y*width + x) * channels
			for c := 0; c < channels; c++ {
				frame.Pix[base+c] = tint[c]
			}
		}
	}
	return frame
}
