package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"analemma/internal/daemonctl"
	"analemma/internal/daemonrun"
	"analemma/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the capture scheduler in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := ""
			if ctx.logLevelFlag != nil {
				level = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   level,
				Diagnostic: diagnostic,
			})
		},
	}
	daemonCmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Also write DEBUG JSON logs under log_dir/debug")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				status := resp.Status
				fmt.Fprintf(out, "Daemon running (pid %d)\n", status.PID)
				if status.StartedAt != nil {
					fmt.Fprintf(out, "Started:       %s\n", status.StartedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "Workflow:      %s\n", titleWord(string(status.Workflow)))
				if status.Scheduler.NextCapture != nil {
					fmt.Fprintf(out, "Next capture:  %s\n", status.Scheduler.NextCapture.Format("2006-01-02 15:04 MST"))
				}
				return nil
			})
			if errors.Is(err, errDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			return err
		},
	}

	var startDiagnostic bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			result, err := startDaemon(ctx, startDiagnostic)
			if err != nil {
				return err
			}
			printStartResult(out, result)
			return nil
		},
	}
	startCmd.Flags().BoolVar(&startDiagnostic, "diagnostic", false, "Also write DEBUG JSON logs under log_dir/debug")

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Stopping daemon...")
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg.PIDPath(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(out, result)
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "timeout", stopGracePeriod, "How long to wait for a graceful stop before killing the daemon")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if it is running, then start it again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stopResult, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg.PIDPath(), stopGracePeriod)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(out, stopResult)
			}
			result, err := startDaemon(ctx, false)
			if err != nil {
				return err
			}
			printStartResult(out, result)
			return nil
		},
	}

	daemonCmd.AddCommand(statusCmd, startCmd, stopCmd, restartCmd)
	return daemonCmd
}

const (
	stopGracePeriod  = 2 * time.Minute
	startWaitTimeout = 15 * time.Second
)

func startDaemon(ctx *commandContext, diagnostic bool) (daemonctl.StartResult, error) {
	exe, err := os.Executable()
	if err != nil {
		return daemonctl.StartResult{}, fmt.Errorf("resolve executable: %w", err)
	}
	opts := daemonctl.LaunchOptions{
		SocketPath: ctx.socketPath(),
		ConfigPath: ctx.configPath(),
		Diagnostic: diagnostic,
	}
	return daemonctl.EnsureStarted(opts.SocketPath, exe, opts, startWaitTimeout)
}

func printStartResult(out io.Writer, result daemonctl.StartResult) {
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
	default:
		fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
	}
}

func printStopResult(out io.Writer, result daemonctl.StopResult) {
	if result.ForcedKill {
		fmt.Fprintf(out, "Daemon did not stop in time; killed pid %d\n", result.PID)
		return
	}
	fmt.Fprintln(out, "Daemon stopped")
}
