package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"analemma/internal/config"
	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/services"
)

const outputPlaceholder = "{output}"

var temperaturePattern = regexp.MustCompile(`(?m)^temperature=(-?[0-9]+(?:\.[0-9]+)?)\s*$`)

// CommandDriver captures by running an external tool that writes one image
// (PNG, TIFF, or FITS) to a path it is given. Arguments may reference
// {output}, {exposure_us}, {gain}, {wb_r}, {wb_b}, {width}, and {height}; the
// output path is appended when {output} is absent. A stdout line of the form
// "temperature=<celsius>" is recorded as the sensor temperature.
type CommandDriver struct {
	cfg     config.Camera
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	binary    string
	connected bool
}

// NewCommandDriver builds a driver from camera configuration.
func NewCommandDriver(cfg config.Camera, logger *slog.Logger) *CommandDriver {
	timeout := time.Duration(cfg.CommandTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CommandDriver{
		cfg:     cfg,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "camera"),
		now:     time.Now,
	}
}

func (d *CommandDriver) Connect(ctx context.Context) (Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Info{}, services.Wrap(services.ErrConnection, "connecting", "connect", "", err)
	}
	binary, err := exec.LookPath(d.cfg.Command)
	if err != nil {
		return Info{}, services.Wrap(services.ErrConnection, "connecting", "connect",
			fmt.Sprintf("capture tool %q not found", d.cfg.Command), err)
	}
	d.binary = binary
	d.connected = true
	d.logger.Info("camera connected", logging.String("model", d.cfg.Model), logging.String("tool", binary))
	return d.info(), nil
}

func (d *CommandDriver) Capture(ctx context.Context) (Result, error) {
	d.mu.Lock()
	binary, connected := d.binary, d.connected
	d.mu.Unlock()
	if !connected {
		return Result{}, services.Wrap(services.ErrConnection, "capturing", "capture", "camera not connected", nil)
	}

	workDir, err := os.MkdirTemp("", "analemma-capture-*")
	if err != nil {
		return Result{}, services.Wrap(services.ErrCapture, "capturing", "capture", "create work dir", err)
	}
	defer os.RemoveAll(workDir)
	output := filepath.Join(workDir, "frame.png")
	written := output
	if ext := outputExtension(d.cfg.CommandArgs); ext != "" {
		output = filepath.Join(workDir, "frame")
		written = output + ext
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	args := d.expandArgs(output)
	cmd := exec.CommandContext(runCtx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	ts := d.now()
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrCapture, "capturing", "capture",
				fmt.Sprintf("capture tool timed out after %s", d.timeout), services.ErrTimeout)
		}
		return Result{}, services.Wrap(services.ErrCapture, "capturing", "capture",
			fmt.Sprintf("capture tool failed: %s", tail(stderr.String())), err)
	}

	frame, err := decodeFrame(written)
	if err != nil {
		return Result{}, services.Wrap(services.ErrCapture, "capturing", "decode", "", err)
	}
	result := Result{
		Frame:      frame,
		ExposureUS: d.cfg.ExposureUS,
		Gain:       d.cfg.Gain,
		Width:      frame.Width,
		Height:     frame.Height,
		Timestamp:  ts,
	}
	if m := temperaturePattern.FindStringSubmatch(stdout.String()); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Temperature = &v
		}
	}
	return result, nil
}

func (d *CommandDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		d.logger.Debug("camera disconnected")
	}
	d.connected = false
	return nil
}

func (d *CommandDriver) Info() (Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return Info{}, services.Wrap(services.ErrConnection, "", "info", "camera not connected", nil)
	}
	return d.info(), nil
}

func (d *CommandDriver) info() Info {
	return Info{
		Name:          d.cfg.Model,
		MaxWidth:      d.cfg.Width,
		MaxHeight:     d.cfg.Height,
		IsColor:       true,
		SupportedBins: []int{1},
		BitDepth:      8,
	}
}

func (d *CommandDriver) expandArgs(output string) []string {
	replacer := strings.NewReplacer(
		outputPlaceholder, output,
		"{exposure_us}", strconv.Itoa(d.cfg.ExposureUS),
		"{gain}", strconv.Itoa(d.cfg.Gain),
		"{wb_r}", strconv.Itoa(d.cfg.WBR),
		"{wb_b}", strconv.Itoa(d.cfg.WBB),
		"{width}", strconv.Itoa(d.cfg.Width),
		"{height}", strconv.Itoa(d.cfg.Height),
	)
	args := make([]string, 0, len(d.cfg.CommandArgs)+1)
	hasOutput := false
	for _, arg := range d.cfg.CommandArgs {
		if strings.Contains(arg, outputPlaceholder) {
			hasOutput = true
		}
		args = append(args, replacer.Replace(arg))
	}
	if !hasOutput {
		args = append(args, output)
	}
	return args
}

// outputExtension lets an argument such as "{output}.tif" pick the format.
func outputExtension(args []string) string {
	for _, arg := range args {
		if idx := strings.Index(arg, outputPlaceholder); idx >= 0 {
			return filepath.Ext(arg[idx+len(outputPlaceholder):])
		}
	}
	return ""
}

func decodeFrame(path string) (imaging.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return imaging.Frame{}, fmt.Errorf("capture tool wrote no image: %w", err)
	}
	defer file.Close()

	magic := make([]byte, 6)
	n, _ := file.Read(magic)
	if _, err := file.Seek(0, 0); err != nil {
		return imaging.Frame{}, err
	}
	magic = magic[:n]
	switch {
	case bytes.HasPrefix(magic, []byte("\x89PNG")):
		return imaging.ReadPNG(file)
	case bytes.HasPrefix(magic, []byte("II*\x00")), bytes.HasPrefix(magic, []byte("MM\x00*")):
		return imaging.ReadTIFF(file)
	case bytes.HasPrefix(magic, []byte("SIMPLE")):
		frame, _, err := imaging.ReadFITS(file)
		return frame, err
	default:
		return imaging.Frame{}, errors.New("capture tool output is not PNG, TIFF, or FITS")
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 200
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}
