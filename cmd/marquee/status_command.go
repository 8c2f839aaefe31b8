package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity, and cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, status)
			}

			caser := cases.Title(language.English)
			fmt.Fprintf(out, "Device:        %s\n", status.DeviceID)
			fmt.Fprintf(out, "Running:       %s\n", yesNo(status.Running))
			fmt.Fprintf(out, "Connectivity:  %s\n", caser.String(status.Connectivity))
			fmt.Fprintf(out, "Content items: %d (%s)\n", status.Items, formatBytes(status.ItemBytes))
			fmt.Fprintf(out, "Cache usage:   %s of %s (%.0f%% disk free)\n",
				formatBytes(status.Cache.TotalBytes), formatBytes(status.Cache.MaxBytes), status.Cache.FreeRatio*100)
			fmt.Fprintf(out, "Database:      %s\n", status.DatabasePath)

			if len(status.Queue) > 0 {
				states := make([]string, 0, len(status.Queue))
				for state := range status.Queue {
					states = append(states, state)
				}
				sort.Strings(states)
				fmt.Fprintln(out, "Queue:")
				for _, state := range states {
					fmt.Fprintf(out, "  %-14s %d\n", caser.String(state)+":", status.Queue[state])
				}
			}
			return nil
		},
	}
}
