package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hopper/internal/client"
	"hopper/internal/flags"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker flags and trailing-hour run statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				status, err := api.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				rows := make([][]string, 0, len(flags.KnownWorkers))
				for _, name := range flags.KnownWorkers {
					entry := status.Workers[name]
					rows = append(rows, []string{
						workerDisplayName(name),
						enabledBadge(entry.Enabled, colorize),
						formatTimestamp(entry.LastRunAt),
						runStatusBadge(entry.LastStatus, colorize),
						strconv.Itoa(entry.RunsLastHour),
						strconv.Itoa(entry.Failed),
						formatDurationMS(entry.AvgDurationMS),
						strconv.Itoa(entry.ItemsProcessed),
					})
				}

				fmt.Fprintln(out, renderTable(
					[]string{"Worker", "Flag", "Last Run", "Result", "Runs", "Failed", "Avg", "Items"},
					rows,
					"Runs", "Failed", "Avg", "Items",
				))

				switch {
				case status.AllEnabled:
					fmt.Fprintln(out, "All workers enabled.")
				case status.AnyEnabled:
					fmt.Fprintln(out, "Some workers enabled.")
				default:
					fmt.Fprintln(out, "All workers disabled.")
				}
				if status.Legacy.ContinueProcessingDisabled {
					fmt.Fprintln(out, "Legacy synchronous processing is disabled; the v2 workers own the pipeline.")
				}
				return nil
			})
		},
	}
}
