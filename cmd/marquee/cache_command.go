package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline content cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and free-space figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stats, err := client.CacheStats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, stats)
			}
			fmt.Fprintf(out, "Entries:        %d\n", stats.Entries)
			fmt.Fprintf(out, "Pinned:         %d\n", stats.PinnedItems)
			fmt.Fprintf(out, "Expired:        %d\n", stats.ExpiredItems)
			fmt.Fprintf(out, "Used:           %s of %s\n", formatBytes(stats.TotalBytes), formatBytes(stats.MaxBytes))
			fmt.Fprintf(out, "Disk free:      %s of %s (%.0f%%)\n",
				formatBytes(int64(stats.FreeBytes)), formatBytes(int64(stats.TotalFSBytes)), stats.FreeRatio*100)
			return nil
		},
	}
}
