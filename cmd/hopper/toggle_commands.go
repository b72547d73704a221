package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hopper/internal/client"
)

func newEnableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <worker>",
		Short: "Enable one stage worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleWorker(ctx, cmd, args[0], true)
		},
	}
}

func newDisableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <worker>",
		Short: "Disable one stage worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleWorker(ctx, cmd, args[0], false)
		},
	}
}

func toggleWorker(ctx *commandContext, cmd *cobra.Command, worker string, enabled bool) error {
	return ctx.withClient(func(api *client.Client) error {
		var (
			resp *client.ToggleResponse
			err  error
		)
		if enabled {
			resp, err = api.Enable(cmd.Context(), worker)
		} else {
			resp, err = api.Disable(cmd.Context(), worker)
		}
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
		state := "disabled"
		if resp.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Worker %s is now %s.\n", resp.Worker, state)
		return nil
	})
}

func newEnableAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enable-all",
		Short: "Enable every stage worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleAllWorkers(ctx, cmd, true)
		},
	}
}

func newDisableAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disable-all",
		Short: "Disable every stage worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggleAllWorkers(ctx, cmd, false)
		},
	}
}

func toggleAllWorkers(ctx *commandContext, cmd *cobra.Command, enabled bool) error {
	return ctx.withClient(func(api *client.Client) error {
		var (
			resp *client.ToggleAllResponse
			err  error
		)
		if enabled {
			resp, err = api.EnableAll(cmd.Context())
		} else {
			resp, err = api.DisableAll(cmd.Context())
		}
		if err != nil {
			return err
		}
		state := "disabled"
		if resp.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "All %d workers %s.\n", len(resp.Workers), state)
		return nil
	})
}
