package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"analemma/internal/camera"
	"analemma/internal/config"
	"analemma/internal/history"
	"analemma/internal/ledger"
	"analemma/internal/logging"
	"analemma/internal/metadata"
	"analemma/internal/notifications"
	"analemma/internal/postprocess"
	"analemma/internal/scheduler"
	"analemma/internal/services"
	"analemma/internal/storage"
)

// State is the workflow position reported in status output.
type State string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateCapturing      State = "capturing"
	StatePersisting     State = "persisting"
	StatePostProcessing State = "post-processing"
)

// Trigger sources.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerIPC      = "ipc"
)

// Outcome describes one completed run. Path is empty when no image was saved.
type Outcome struct {
	RunID       string              `json:"run_id"`
	Trigger     string              `json:"trigger"`
	Path        string              `json:"path,omitempty"`
	Category    string              `json:"category,omitempty"`
	Error       string              `json:"error,omitempty"`
	Attempts    int                 `json:"attempts"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	PostProcess *postprocess.Result `json:"postprocess,omitempty"`
}

// OK reports whether the run saved an image.
func (o Outcome) OK() bool {
	return o.Path != ""
}

// PostProcessor runs derived-artifact stages for a freshly saved FITS file.
type PostProcessor interface {
	Run(ctx context.Context, fitsPath string) postprocess.Result
}

// DeviceFactory opens a new camera handle for one run.
type DeviceFactory func() (camera.Device, error)

// Options wires a Runner. Config and Ledger are required; the rest default
// from Config.
type Options struct {
	Config    *config.Config
	Ledger    *ledger.Ledger
	Storage   *storage.Storage
	Pipeline  PostProcessor
	History   *history.Store
	Notifier  notifications.Service
	NewDevice DeviceFactory
	Gate      *Gate
	Retry     RetryPolicy
	Sleep     SleepFunc
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Runner executes capture runs.
type Runner struct {
	cfg       *config.Config
	loc       *time.Location
	ledger    *ledger.Ledger
	storage   *storage.Storage
	pipeline  PostProcessor
	history   *history.Store
	notifier  notifications.Service
	newDevice DeviceFactory
	gate      *Gate
	retry     RetryPolicy
	sleep     SleepFunc
	clock     func() time.Time
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
	last  *Outcome
}

// New validates opts and fills defaults.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("workflow: config is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("workflow: ledger is required")
	}
	loc, err := scheduler.LoadLocation(opts.Config.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &Runner{
		cfg:       opts.Config,
		loc:       loc,
		ledger:    opts.Ledger,
		storage:   opts.Storage,
		pipeline:  opts.Pipeline,
		history:   opts.History,
		notifier:  opts.Notifier,
		newDevice: opts.NewDevice,
		gate:      opts.Gate,
		retry:     opts.Retry,
		sleep:     opts.Sleep,
		clock:     opts.Clock,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		state:     StateIdle,
	}
	if r.storage == nil {
		r.storage = storage.New(opts.Config.Storage, logger)
	}
	if r.pipeline == nil && opts.Config.PostProcess.Enabled {
		r.pipeline = postprocess.NewPipeline(opts.Config, logger)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(opts.Config)
	}
	if r.newDevice == nil {
		camCfg := opts.Config.Camera
		r.newDevice = func() (camera.Device, error) { return camera.New(camCfg, logger) }
		if camera.IsSimulated(camCfg) {
			logging.WarnWithContext(r.logger, "simulated camera in use; captures are synthetic", "camera_simulated",
				logging.String("model", camera.SimulatedModel(camCfg.Model)),
				logging.String(logging.FieldImpact, "archived images are rendered, not photographed"),
				logging.String(logging.FieldErrorHint, `set camera.driver = "command" and camera.command for real captures`),
			)
		}
	}
	if r.gate == nil {
		r.gate = NewGate(opts.Config.CaptureLockPath())
	}
	if r.retry.MaxAttempts == 0 {
		r.retry = DefaultRetryPolicy()
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r, nil
}

// Run executes one capture run. It returns ErrBusy without side effects when
// another run holds the gate. Any other error means no image was saved; the
// ledger streak has been reset and the outcome carries the failure category.
func (r *Runner) Run(ctx context.Context, trigger string) (Outcome, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	release, err := r.gate.TryAcquire()
	if err != nil {
		logging.WarnWithContext(r.logger, "capture skipped", "capture_skipped",
			logging.String(logging.FieldTrigger, trigger),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the running capture continues; this trigger is ignored"),
			logging.String(logging.FieldErrorHint, "wait for the current capture to finish"),
		)
		return Outcome{Trigger: trigger}, err
	}
	defer release()
	r.ledger.Reload()

	outcome := Outcome{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: r.clock(),
	}
	ctx = services.WithRequestID(services.WithTrigger(ctx, trigger), outcome.RunID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("capture run started", logging.String(logging.FieldEventType, "capture_start"))
	historyID := r.beginHistory(ctx, logger, outcome)

	runErr := r.execute(ctx, logger, &outcome)
	r.setState(StateIdle)
	outcome.Duration = r.clock().Sub(outcome.StartedAt)

	if runErr != nil {
		outcome.Path = ""
		outcome.Category = services.Category(runErr)
		outcome.Error = runErr.Error()
		r.ledger.RecordFailure()
		r.ledger.Save()
		logging.ErrorWithContext(logger, "capture run failed", "capture_failed",
			logging.String("category", outcome.Category),
			logging.Int("attempts", outcome.Attempts),
			logging.Duration("duration", outcome.Duration),
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, failureHint(outcome.Category)),
			logging.Alert("capture_failed"),
		)
		r.publish(ctx, logger, notifications.EventCaptureFailed, notifications.Payload{
			"category": outcome.Category,
			"error":    runErr,
			"attempts": outcome.Attempts,
		})
	} else {
		logger.Info("capture run succeeded",
			logging.String(logging.FieldEventType, "capture_complete"),
			logging.String("path", outcome.Path),
			logging.Int("attempts", outcome.Attempts),
			logging.Duration("duration", outcome.Duration),
		)
		r.publish(ctx, logger, notifications.EventCaptureSucceeded, notifications.Payload{
			"path":        outcome.Path,
			"consecutive": r.ledger.Snapshot().ConsecutiveSuccesses,
		})
	}
	r.finishHistory(ctx, logger, historyID, outcome)
	r.setLast(outcome)
	return outcome, runErr
}

// execute performs the run; a panic anywhere becomes an unexpected error.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, outcome *Outcome) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("capture run panicked",
				logging.String(logging.FieldEventType, "capture_panic"),
				logging.String("panic", fmt.Sprint(rec)),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("unexpected failure: %v", rec)
		}
	}()

	r.checkCapacity(ctx, logger)

	r.setState(StateConnecting)
	dev, err := r.newDevice()
	if err != nil {
		return services.Wrap(services.ErrConnection, string(StateConnecting), "open camera", "", err)
	}

	var (
		info   camera.Info
		result camera.Result
	)
	err = camera.WithSession(ctx, dev, logger, func(connected camera.Info) error {
		info = connected
		r.setState(StateCapturing)
		captured, attempts, captureErr := r.captureWithRetry(ctx, dev, logger)
		outcome.Attempts = attempts
		result = captured
		return captureErr
	})
	if err != nil {
		return err
	}

	r.setState(StatePersisting)
	meta, err := r.buildMetadata(info, result)
	if err != nil {
		return services.Wrap(services.ErrStorage, string(StatePersisting), "metadata", "", err)
	}
	format := r.cfg.Camera.ImageType
	path, err := r.storage.Save(result.Frame, meta, format)
	if err != nil {
		return err
	}
	outcome.Path = path
	r.ledger.RecordSuccess(meta.CaptureTime, path)
	r.ledger.Save()

	if format == storage.FormatFITS && r.pipeline != nil {
		r.setState(StatePostProcessing)
		outcome.PostProcess = r.postProcess(ctx, logger, path)
	}
	return nil
}

func (r *Runner) captureWithRetry(ctx context.Context, dev camera.Device, logger *slog.Logger) (camera.Result, int, error) {
	state := r.retry.Start()
	for attempt := 1; ; attempt++ {
		result, err := dev.Capture(ctx)
		if err == nil {
			return result, attempt, nil
		}
		delay, ok := state.Next(err)
		if !ok {
			if services.Retryable(err) {
				err = services.Wrap(services.ErrCapture, string(StateCapturing), "capture",
					fmt.Sprintf("failed after %d attempts", attempt), err)
			}
			return camera.Result{}, attempt, err
		}
		logging.WarnWithContext(logger, "capture attempt failed; retrying", "capture_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.retry.MaxAttempts),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "capture delayed"),
		)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return camera.Result{}, attempt, services.Wrap(services.ErrCapture, string(StateCapturing), "backoff",
				"interrupted while waiting to retry", errors.Join(err, sleepErr))
		}
	}
}

func (r *Runner) buildMetadata(info camera.Info, result camera.Result) (metadata.CaptureMetadata, error) {
	ts := result.Timestamp
	if ts.IsZero() {
		ts = r.clock()
	}
	model := strings.TrimSpace(info.Name)
	if model == "" {
		model = r.cfg.Camera.Model
	}
	return metadata.New(metadata.Input{
		CaptureTime: ts.In(r.loc),
		CameraModel: model,
		ExposureUS:  result.ExposureUS,
		Gain:        result.Gain,
		Temperature: result.Temperature,
		Timezone:    r.cfg.Schedule.Timezone,
	}, result.Frame)
}

func (r *Runner) postProcess(ctx context.Context, logger *slog.Logger, path string) (res *postprocess.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(logger, "post-processing panicked", "postprocess_panic",
				logging.String("panic", fmt.Sprint(rec)),
				logging.String(logging.FieldErrorHint, "the image is saved; run convert and composite manually"),
			)
			res = &postprocess.Result{Failures: []postprocess.StageFailure{{Stage: "pipeline", Error: fmt.Sprint(rec)}}}
		}
	}()
	result := r.pipeline.Run(ctx, path)
	if !result.OK() {
		stages := make([]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			stages = append(stages, f.Stage)
		}
		r.publish(ctx, logger, notifications.EventPostProcessFailed, notifications.Payload{
			"path":   path,
			"stages": stages,
		})
	}
	return &result
}

func (r *Runner) checkCapacity(ctx context.Context, logger *slog.Logger) {
	if r.storage.CheckCapacity() {
		return
	}
	info := r.storage.Info()
	r.publish(ctx, logger, notifications.EventLowStorage, notifications.Payload{
		"path":         info.BasePath,
		"free_mb":      info.FreeMB(),
		"threshold_mb": r.storage.MinFreeSpaceMB(),
	})
}

func failureHint(category string) string {
	switch category {
	case services.CategoryConnection:
		return "check the camera USB connection and power"
	case services.CategoryCapture:
		return "check exposure settings and camera logs; the next scheduled run retries"
	case services.CategoryStorage:
		return "check free space and permissions on storage.base_path"
	default:
		return "inspect the log for the stack trace"
	}
}
