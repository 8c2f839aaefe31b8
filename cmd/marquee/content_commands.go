package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"marquee/internal/api"
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect cached content items",
	}
	contentCmd.AddCommand(newContentListCommand(ctx))
	contentCmd.AddCommand(newContentShowCommand(ctx))
	contentCmd.AddCommand(newContentPinCommand(ctx, true))
	contentCmd.AddCommand(newContentPinCommand(ctx, false))
	return contentCmd
}

func newContentListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every cached content item",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			items, err := client.ContentList(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "No cached content")
				return nil
			}
			fmt.Fprintln(out, renderContentTable(items))
			return nil
		},
	}
}

func renderContentTable(items []api.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			strconv.FormatInt(item.Version, 10),
			formatBytes(item.Size),
			item.Priority,
			yesNo(item.Pinned),
			yesNo(item.Expired),
			item.LastVerified,
		})
	}
	return renderTable(
		[]string{"ID", "Version", "Size", "Priority", "Pinned", "Expired", "Last Verified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func newContentShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <content-id>",
		Short: "Show one cached content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.ContentItem(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, item)
			}
			fmt.Fprintf(out, "ID:            %s\n", item.ID)
			fmt.Fprintf(out, "Version:       %d\n", item.Version)
			fmt.Fprintf(out, "Checksum:      %s\n", item.Checksum)
			fmt.Fprintf(out, "Size:          %s\n", formatBytes(item.Size))
			fmt.Fprintf(out, "Priority:      %s\n", item.Priority)
			fmt.Fprintf(out, "Pinned:        %s\n", yesNo(item.Pinned))
			fmt.Fprintf(out, "Expired:       %s\n", yesNo(item.Expired))
			if item.TTLSeconds > 0 {
				fmt.Fprintf(out, "TTL:           %ds\n", item.TTLSeconds)
			}
			if item.LastVerified != "" {
				fmt.Fprintf(out, "Last verified: %s\n", item.LastVerified)
			}
			if item.LastAccess != "" {
				fmt.Fprintf(out, "Last access:   %s\n", item.LastAccess)
			}
			return nil
		},
	}
}

func newContentPinCommand(ctx *commandContext, pin bool) *cobra.Command {
	use, short := "pin <content-id>", "Protect an item from cache eviction"
	if !pin {
		use, short = "unpin <content-id>", "Remove eviction protection from an item"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			var ack *api.Ack
			if pin {
				ack, err = client.Pin(cmd.Context(), id)
			} else {
				ack, err = client.Unpin(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, ack)
			}
			fmt.Fprintf(out, "Item %s %s\n", ack.ID, ack.Status)
			return nil
		},
	}
}
