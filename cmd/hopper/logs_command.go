package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hopper/internal/client"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs [worker]",
		Short: "Show recent worker execution-log entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker := ""
			if len(args) > 0 {
				worker = args[0]
			}
			return ctx.withClient(func(api *client.Client) error {
				logs, err := api.Logs(cmd.Context(), worker, limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(logs.Runs) == 0 {
					fmt.Fprintln(out, "No execution-log entries.")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(logs.Runs))
				for _, run := range logs.Runs {
					started := run.StartedAt
					rows = append(rows, []string{
						formatTimestamp(&started),
						workerDisplayName(run.Worker),
						runStatusBadge(run.Status, colorize),
						strconv.Itoa(run.ItemsFound),
						strconv.Itoa(run.ItemsProcessed),
						strconv.Itoa(run.ItemsFailed),
						formatDurationMS(run.DurationMS),
						run.Error,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Started", "Worker", "Result", "Found", "Done", "Failed", "Took", "Error"},
					rows,
					"Found", "Done", "Failed", "Took",
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries to fetch (default: server limit)")
	return cmd
}
