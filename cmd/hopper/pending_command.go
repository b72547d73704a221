package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"hopper/internal/client"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show per-stage backlog and stalled item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				pending, err := api.Pending(cmd.Context())
				if err != nil {
					return err
				}

				stages := make([]string, 0, len(pending.Pending))
				for stage := range pending.Pending {
					stages = append(stages, stage)
				}
				for stage := range pending.Stalled {
					if _, ok := pending.Pending[stage]; !ok {
						stages = append(stages, stage)
					}
				}
				sort.Strings(stages)

				rows := make([][]string, 0, len(stages))
				for _, stage := range stages {
					rows = append(rows, []string{
						stage,
						strconv.Itoa(pending.Pending[stage]),
						strconv.Itoa(pending.Stalled[stage]),
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Pending", "Stalled"},
					rows,
					"Pending", "Stalled",
				))
				fmt.Fprintf(out, "Total pending: %d\n", pending.Total)
				return nil
			})
		},
	}
}
