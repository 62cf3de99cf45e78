package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"analemma/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent capture attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			attempts, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, attempts)
			}
			out := cmd.OutOrStdout()
			if len(attempts) == 0 {
				fmt.Fprintln(out, "No capture attempts recorded")
				return nil
			}
			rows := make([][]string, 0, len(attempts))
			for _, a := range attempts {
				detail := a.Path
				if detail == "" {
					detail = a.Error
				}
				duration := "-"
				if a.FinishedAt != nil {
					duration = a.Duration().Round(time.Millisecond).String()
				}
				rows = append(rows, []string{
					a.StartedAt.Local().Format("2006-01-02 15:04:05"),
					titleWord(a.Trigger),
					titleWord(string(a.Outcome)),
					a.Category,
					strconv.Itoa(a.Attempts),
					duration,
					detail,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Started", "Trigger", "Outcome", "Category", "Attempts", "Duration", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of attempts to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
