package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"analemma/internal/camera"
	"analemma/internal/config"
	"analemma/internal/deps"
	"analemma/internal/history"
	"analemma/internal/ledger"
	"analemma/internal/logging"
	"analemma/internal/notifications"
	"analemma/internal/preflight"
	"analemma/internal/scheduler"
	"analemma/internal/storage"
	"analemma/internal/workflow"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another analemma daemon instance is already running")

// Options wires a Daemon. Config and Runner are required.
type Options struct {
	Config   *config.Config
	Runner   *workflow.Runner
	History  *history.Store
	Notifier notifications.Service
	Logger   *slog.Logger
	// USBDevicesDir overrides the sysfs tree scanned for the camera at startup.
	USBDevicesDir string
}

// Daemon coordinates the scheduler and capture runner and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	runner    *workflow.Runner
	scheduler *scheduler.Scheduler
	history   *history.Store
	notifier  notifications.Service
	monitor   *cameraMonitor
	changedAt atomic.Pointer[time.Time]
	usbDir    string
	startedAt time.Time

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// CameraStatus reports the configured camera and its USB presence.
type CameraStatus struct {
	Driver    string     `json:"driver"`
	Model     string     `json:"model"`
	VendorID  string     `json:"vendor_id,omitempty"`
	Monitored bool       `json:"monitored"`
	Present   bool       `json:"present"`
	Detail    string     `json:"detail"`
	ChangedAt *time.Time `json:"changed_at,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	LockFilePath string            `json:"lock_file_path"`
	Scheduler    scheduler.Status  `json:"scheduler"`
	Workflow     workflow.State    `json:"workflow_state"`
	LastRun      *workflow.Outcome `json:"last_run,omitempty"`
	Ledger       ledger.Statistics `json:"ledger"`
	Storage      storage.Info      `json:"storage"`
	LowStorage   bool              `json:"low_storage"`
	MinFreeMB    int               `json:"min_free_mb"`
	Camera       CameraStatus      `json:"camera"`
	Dependencies []deps.Status     `json:"dependencies"`
	History      map[string]int    `json:"history,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Runner == nil {
		return nil, errors.New("daemon requires config and workflow runner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}

	lockPath := opts.Config.DaemonLockPath()
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		runner:   opts.Runner,
		history:  opts.History,
		notifier: notifier,
		usbDir:   opts.USBDevicesDir,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	sched, err := scheduler.New(opts.Config.Schedule.CaptureTime, opts.Config.Schedule.Timezone, d.scheduledCapture, logger)
	if err != nil {
		return nil, err
	}
	d.scheduler = sched

	probe := preflight.ProbeCamera(d.usbDir, opts.Config.Camera.USBVendorID)
	d.monitor = newCameraMonitor(opts.Config.Camera.USBVendorID, probe.Detected, logger)
	if d.monitor != nil {
		d.monitor.onChange = func(bool) {
			now := time.Now()
			d.changedAt.Store(&now)
		}
	}
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted history rows, and
// starts the scheduler and camera monitor.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if d.history != nil {
		if n, err := d.history.MarkInterrupted(ctx, time.Now()); err != nil {
			logging.WarnWithContext(d.logger, "failed to recover interrupted history rows", "history_recover_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale running rows remain in capture history"),
			)
		} else if n > 0 {
			d.logger.Info("marked interrupted capture attempts",
				logging.String(logging.FieldEventType, "history_recovered"),
				logging.Int64("count", n),
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Warn("camera monitor unavailable", logging.Error(err))
	}
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	next := d.scheduler.NextRun()
	d.logger.Info("analemma daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("next_capture", next.Format(time.RFC3339)),
	)
	if err := d.notifier.Publish(ctx, notifications.EventDaemonStarted, notifications.Payload{
		"next_capture": next.Format("2006-01-02 15:04 MST"),
	}); err != nil {
		logging.WarnWithContext(d.logger, "daemon start notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "daemon continues without the start notification"),
		)
	}
	return nil
}

// Stop halts future ticks, waits for a running capture (bounded by ctx), and
// releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if err := d.scheduler.Stop(ctx); err != nil {
		logging.WarnWithContext(d.logger, "scheduler did not stop cleanly", "scheduler_stop_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "an in-flight capture may be interrupted"),
		)
	}
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("analemma daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Running reports whether the daemon holds the lock and the scheduler is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Trigger runs one capture now under the same gate the scheduler uses.
func (d *Daemon) Trigger(ctx context.Context) (workflow.Outcome, error) {
	return d.runner.Run(ctx, workflow.TriggerIPC)
}

func (d *Daemon) scheduledCapture(ctx context.Context) {
	outcome, err := d.runner.Run(ctx, workflow.TriggerSchedule)
	if err != nil {
		d.logger.Debug("scheduled capture finished without an image",
			logging.String("run_id", outcome.RunID),
			logging.Error(err),
		)
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	store := d.runner.Storage()
	info := store.Info()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Scheduler:    d.scheduler.Status(),
		Workflow:     d.runner.State(),
		LastRun:      d.runner.LastOutcome(),
		Ledger:       d.runner.Ledger().Snapshot(),
		Storage:      info,
		LowStorage:   store.LowSpace(info),
		MinFreeMB:    store.MinFreeSpaceMB(),
		Camera:       d.cameraStatus(),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if status.Running {
		started := d.startedAt
		status.StartedAt = &started
	}
	if d.history != nil {
		if stats, err := d.history.Stats(ctx); err == nil {
			status.History = make(map[string]int, len(stats))
			for outcome, count := range stats {
				status.History[string(outcome)] = count
			}
		}
	}
	return status
}

func (d *Daemon) cameraStatus() CameraStatus {
	cam := d.cfg.Camera
	status := CameraStatus{Driver: cam.Driver, Model: camera.DisplayModel(cam), VendorID: cam.USBVendorID}
	if d.monitor != nil && d.monitor.Running() {
		status.Monitored = true
		status.Present = d.monitor.Present()
		status.ChangedAt = d.changedAt.Load()
		if status.Present {
			status.Detail = "attached (hotplug)"
		} else {
			status.Detail = "not attached (hotplug)"
		}
		return status
	}
	probe := preflight.ProbeCamera(d.usbDir, cam.USBVendorID)
	status.Present = probe.Detected
	status.Detail = probe.CameraDetail()
	return status
}
