package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hopper/internal/client"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <worker>",
		Short: "Trigger an immediate run of one stage worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				resp, err := api.Run(cmd.Context(), args[0])
				if err != nil {
					var apiErr *client.APIError
					if errors.As(err, &apiErr) && len(apiErr.AvailableWorkers) > 0 {
						fmt.Fprintln(cmd.ErrOrStderr(), "Known workers:")
						for _, name := range apiErr.AvailableWorkers {
							fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", name)
						}
					}
					return err
				}
				if resp.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "Worker %s is disabled; run skipped. Enable it first.\n", resp.Worker)
					return nil
				}
				if resp.Run == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Triggered %s.\n", resp.Worker)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ran %s: %d found, %d processed, %d failed.\n",
					resp.Worker, resp.Run.Found, resp.Run.Processed, resp.Run.Failed)
				if resp.Run.Aborted {
					fmt.Fprintf(cmd.OutOrStdout(), "Run aborted early: %s\n", resp.Run.Error)
				} else if resp.Run.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Run finished with errors: %s\n", resp.Run.Error)
				}
				return nil
			})
		},
	}
}
