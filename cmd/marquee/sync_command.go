package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Schedule an immediate full manifest reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			ack, err := client.ForceSync(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, ack)
			}
			fmt.Fprintln(out, "Full sync scheduled")
			return nil
		},
	}
}
