package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"analemma/internal/camera"
	"analemma/internal/config"
	"analemma/internal/daemon"
	"analemma/internal/deps"
	"analemma/internal/history"
	"analemma/internal/ledger"
	"analemma/internal/preflight"
	"analemma/internal/scheduler"
	"analemma/internal/storage"
	"analemma/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schedule, capture statistics, storage, and daemon state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := collectStatus(cmd.Context(), ctx, cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, status, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// collectStatus asks the daemon for its snapshot and falls back to reading
// the ledger, archive, and schedule directly when it is not running.
func collectStatus(cmdCtx context.Context, ctx *commandContext, cfg *config.Config) (daemon.Status, error) {
	client, err := ctx.dialClient()
	if err == nil {
		defer client.Close()
		resp, callErr := client.Status()
		if callErr == nil {
			return resp.Status, nil
		}
		err = callErr
	}
	if !errors.Is(err, errDaemonNotRunning) {
		return daemon.Status{}, err
	}
	return localStatus(cmdCtx, cfg)
}

func localStatus(ctx context.Context, cfg *config.Config) (daemon.Status, error) {
	sched, err := scheduler.New(cfg.Schedule.CaptureTime, cfg.Schedule.Timezone, func(context.Context) {}, nil)
	if err != nil {
		return daemon.Status{}, err
	}
	schedStatus := sched.Status()
	next := sched.NextAfter(time.Now())
	schedStatus.NextCapture = &next

	store := storage.New(cfg.Storage, nil)
	info := store.Info()
	probe := preflight.ProbeCamera("", cfg.Camera.USBVendorID)
	status := daemon.Status{
		LockFilePath: cfg.DaemonLockPath(),
		Scheduler:    schedStatus,
		Workflow:     workflow.StateIdle,
		Ledger:       ledger.Open(cfg.LedgerPath(), nil).Snapshot(),
		Storage:      info,
		LowStorage:   store.LowSpace(info),
		MinFreeMB:    store.MinFreeSpaceMB(),
		Camera: daemon.CameraStatus{
			Driver:   cfg.Camera.Driver,
			Model:    camera.DisplayModel(cfg.Camera),
			VendorID: cfg.Camera.USBVendorID,
			Present:  probe.Detected,
			Detail:   probe.CameraDetail(),
		},
		Dependencies: preflight.CheckSystemDeps(ctx, cfg),
	}
	if hist, err := history.Open(cfg.HistoryPath()); err == nil {
		defer hist.Close()
		if stats, err := hist.Stats(ctx); err == nil {
			status.History = make(map[string]int, len(stats))
			for outcome, count := range stats {
				status.History[string(outcome)] = count
			}
		}
	}
	return status, nil
}

func renderStatus(out io.Writer, status daemon.Status, colorize bool) {
	writeSection(out, "Schedule", colorize)
	next := "unknown"
	if status.Scheduler.NextCapture != nil {
		next = status.Scheduler.NextCapture.Format("2006-01-02 15:04 MST")
		if until := time.Until(*status.Scheduler.NextCapture); until > 0 {
			next = fmt.Sprintf("%s (in %s)", next, until.Round(time.Minute))
		}
	}
	fmt.Fprintln(out, renderStatusLine("Capture time", statusInfo,
		fmt.Sprintf("%s %s", status.Scheduler.CaptureTime, status.Scheduler.Timezone), colorize))
	fmt.Fprintln(out, renderStatusLine("Next capture", statusInfo, next, colorize))
	fmt.Fprintln(out)

	writeSection(out, "Daemon", colorize)
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		fmt.Fprintln(out, renderStatusLine("Workflow", statusInfo, titleWord(string(status.Workflow)), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	if last := status.LastRun; last != nil {
		kind, detail := statusOK, last.Path
		if !last.OK() {
			kind, detail = statusError, fmt.Sprintf("%s: %s", last.Category, last.Error)
		}
		fmt.Fprintln(out, renderStatusLine("Last run", kind, detail, colorize))
	}
	fmt.Fprintln(out)

	writeSection(out, "Captures", colorize)
	streakKind := statusOK
	if status.Ledger.ConsecutiveSuccesses == 0 {
		streakKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Streak", streakKind, fmt.Sprintf("%d consecutive", status.Ledger.ConsecutiveSuccesses), colorize))
	lastCapture := "never"
	if status.Ledger.LastCaptureTime != nil {
		lastCapture = *status.Ledger.LastCaptureTime
		if status.Ledger.LastCapturePath != nil {
			lastCapture += " " + *status.Ledger.LastCapturePath
		}
	}
	fmt.Fprintln(out, renderStatusLine("Last capture", statusInfo, lastCapture, colorize))
	if len(status.History) > 0 {
		parts := make([]string, 0, len(status.History))
		for _, outcome := range []history.Outcome{history.OutcomeSuccess, history.OutcomeFailed, history.OutcomeInterrupted, history.OutcomeRunning} {
			if count := status.History[string(outcome)]; count > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", count, outcome))
			}
		}
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, strings.Join(parts, ", "), colorize))
	}
	fmt.Fprintln(out)

	writeSection(out, "Storage", colorize)
	storageKind := statusOK
	storageDetail := fmt.Sprintf("%s free of %s", formatMB(status.Storage.FreeBytes), formatMB(status.Storage.TotalBytes))
	if status.LowStorage {
		storageKind = statusWarn
		storageDetail += fmt.Sprintf(" (below %d MB threshold)", status.MinFreeMB)
	}
	fmt.Fprintln(out, renderStatusLine("Archive", statusInfo, status.Storage.BasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Free space", storageKind, storageDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("Images", statusInfo, fmt.Sprintf("%d", status.Storage.ImageCount), colorize))
	fmt.Fprintln(out)

	writeSection(out, "Camera", colorize)
	camKind := statusOK
	if !status.Camera.Present && status.Camera.VendorID != "" {
		camKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Driver", statusInfo, fmt.Sprintf("%s (%s)", status.Camera.Driver, status.Camera.Model), colorize))
	fmt.Fprintln(out, renderStatusLine("USB", camKind, status.Camera.Detail, colorize))
	fmt.Fprintln(out)

	writeSection(out, "Dependencies", colorize)
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}
