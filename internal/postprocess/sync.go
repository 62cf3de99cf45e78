package postprocess

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"analemma/internal/config"
	"analemma/internal/logging"
)

const defaultSyncTimeout = 5 * time.Minute

// Sync file-selection modes.
const (
	SyncFilesTIFF      = "tiff"
	SyncFilesComposite = "composite"
	SyncFilesAll       = "all"
)

// Syncer mirrors the archive to an rclone remote.
type Syncer struct {
	enabled  bool
	remote   string
	files    string
	binary   string
	basePath string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSyncer builds a Syncer for the archive rooted at basePath.
func NewSyncer(cfg config.Sync, binary, basePath string, logger *slog.Logger) *Syncer {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	if strings.TrimSpace(binary) == "" {
		binary = "rclone"
	}
	return &Syncer{
		enabled:  cfg.Enabled,
		remote:   cfg.Remote,
		files:    cfg.Files,
		binary:   binary,
		basePath: basePath,
		timeout:  timeout,
		logger:   logging.NewComponentLogger(logger, "sync"),
	}
}

// Enabled reports whether sync is configured to run.
func (s *Syncer) Enabled() bool {
	return s != nil && s.enabled
}

// Args returns the copy tool arguments for the configured mode.
func (s *Syncer) Args() []string {
	args := []string{"copy", s.basePath, s.remote}
	if pattern := includePattern(s.files); pattern != "" {
		args = append(args, "--include", pattern)
	}
	return append(args, "--verbose")
}

func includePattern(files string) string {
	switch files {
	case SyncFilesTIFF:
		return "*.tif"
	case SyncFilesComposite:
		return "composite.*"
	default:
		return ""
	}
}

// Sync copies the archive to the remote. It returns true when sync is
// disabled or the copy succeeded. A missing tool, timeout, or non-zero exit
// is logged and reported as false.
func (s *Syncer) Sync(ctx context.Context) bool {
	if !s.Enabled() {
		s.logger.Debug("sync disabled")
		return true
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	args := s.Args()
	s.logger.Info("running sync", logging.String("command", s.binary+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(runCtx, s.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrNotFound):
		logging.ErrorWithContext(s.logger, "sync tool not found", "sync_failed",
			logging.String("binary", s.binary),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install rclone (sudo apt install rclone) or disable sync"),
		)
		return false
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		logging.ErrorWithContext(s.logger, "sync timed out", "sync_failed",
			logging.Duration("timeout", s.timeout),
			logging.String(logging.FieldErrorHint, "check network connectivity to the remote"),
		)
		return false
	default:
		logging.ErrorWithContext(s.logger, "sync failed", "sync_failed",
			logging.Error(err),
			logging.String("stderr", strings.TrimSpace(stderr.String())),
			logging.String(logging.FieldErrorHint, "run rclone manually with the logged command"),
		)
		return false
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		s.logger.Debug("sync output", logging.String("stdout", out))
	}
	s.logger.Info("sync completed", logging.String("remote", s.remote))
	return true
}
