package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"analemma/internal/config"
	"analemma/internal/history"
	"analemma/internal/ipc"
	"analemma/internal/ledger"
	"analemma/internal/workflow"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one image now",
		Long: "Capture one image now. When the daemon is running the capture runs inside it;\n" +
			"otherwise it runs in this process under the same single-capture lock.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !local {
				client, dialErr := ctx.dialClient()
				if dialErr == nil {
					defer client.Close()
					return captureViaDaemon(out, client)
				}
				if !errors.Is(dialErr, errDaemonNotRunning) {
					return dialErr
				}
			}

			logger := ctx.logger(cfg)
			runner, closeRunner, err := newLocalRunner(cfg, logger)
			if err != nil {
				return err
			}
			defer closeRunner()

			outcome, err := runner.Run(cmd.Context(), workflow.TriggerManual)
			if errors.Is(err, workflow.ErrBusy) {
				return fmt.Errorf("capture skipped: %w", err)
			}
			printOutcome(out, outcome)
			if err != nil {
				return fmt.Errorf("capture failed (%s): %w", outcome.Category, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Run in this process even if the daemon is running")
	return cmd
}

func captureViaDaemon(out io.Writer, client *ipc.Client) error {
	fmt.Fprintln(out, "Capturing via daemon...")
	resp, err := client.Trigger()
	if err != nil {
		return fmt.Errorf("trigger capture: %w", err)
	}
	if resp.Busy {
		return fmt.Errorf("capture skipped: %s", resp.Message)
	}
	printOutcome(out, resp.Outcome)
	if !resp.Outcome.OK() {
		return fmt.Errorf("capture failed (%s): %s", resp.Outcome.Category, resp.Outcome.Error)
	}
	return nil
}

func printOutcome(out io.Writer, outcome workflow.Outcome) {
	if outcome.OK() {
		fmt.Fprintf(out, "Captured %s (attempts: %d, %s)\n", outcome.Path, outcome.Attempts, outcome.Duration.Round(time.Millisecond))
	}
	if pp := outcome.PostProcess; pp != nil {
		if pp.TIFFPath != "" {
			fmt.Fprintf(out, "  TIFF:      %s\n", pp.TIFFPath)
		}
		if pp.CompositePath != "" {
			fmt.Fprintf(out, "  Composite: %s\n", pp.CompositePath)
		}
		if pp.Synced {
			fmt.Fprintln(out, "  Synced:    yes")
		}
		for _, failure := range pp.Failures {
			fmt.Fprintf(out, "  %s failed: %s\n", titleWord(failure.Stage), failure.Error)
		}
	}
}

// newLocalRunner wires a workflow runner for in-process captures. The
// returned func closes the history store.
func newLocalRunner(cfg *config.Config, logger *slog.Logger) (*workflow.Runner, func(), error) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	runner, err := workflow.New(workflow.Options{
		Config:  cfg,
		Ledger:  ledger.Open(cfg.LedgerPath(), logger),
		History: store,
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return runner, func() { store.Close() }, nil
}
