// Package daemonrun boots the analemma daemon process: logging, pid file,
// history store, workflow runner, daemon, and IPC server.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"analemma/internal/config"
	"analemma/internal/daemon"
	"analemma/internal/history"
	"analemma/internal/ipc"
	"analemma/internal/ledger"
	"analemma/internal/logging"
	"analemma/internal/logs"
	"analemma/internal/notifications"
	"analemma/internal/preflight"
	"analemma/internal/workflow"
)

// shutdownTimeout bounds how long shutdown waits for an in-flight capture.
const shutdownTimeout = 2 * time.Minute

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the analemma daemon and blocks until SIGINT, SIGTERM, or an IPC
// stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancelSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancelSignals()
	ctx, requestStop := context.WithCancel(signalCtx)
	defer requestStop()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("analemma-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	var debugLogPath string
	if opts.Diagnostic {
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("analemma-%s.log", runID))
		debugHandler, debugErr := logging.NewHandler(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugHandler)
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update analemma.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "analemma-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "analemma-*.log", Exclude: []string{debugLogPath}},
	)
	logPreflight(ctx, logger, cfg)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	runner, err := workflow.New(workflow.Options{
		Config:   cfg,
		Ledger:   ledger.Open(cfg.LedgerPath(), logger),
		History:  store,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create workflow runner: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:   cfg,
		Runner:   runner,
		History:  store,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return err
		}
		return fmt.Errorf("start daemon: %w", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		logging.WarnWithContext(logger, "unable to write pid file", "pid_write_failed",
			logging.Error(err),
			logging.String("path", pidPath),
			logging.String(logging.FieldImpact, "daemon status lookups by pid are unavailable"),
		)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, requestStop, logger)
	if err != nil {
		stopDaemon(d)
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	<-ctx.Done()
	logger.Info("analemma daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	stopDaemon(d)
	ipcServer.Close()
	return nil
}

func stopDaemon(d *daemon.Daemon) {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.Stop(stopCtx)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "captures or post-processing may fail"),
			logging.String(logging.FieldErrorHint, "run analemma status for details"),
		)
	}
	probe := preflight.ProbeCamera("", cfg.Camera.USBVendorID)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String("camera_driver", cfg.Camera.Driver),
		logging.Bool("camera_detected", probe.Detected),
		logging.String("camera", probe.CameraDetail()),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
