package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"marquee/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sync queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sync tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var states []string
			for _, part := range strings.Split(stateFilter, ",") {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					states = append(states, trimmed)
				}
			}

			tasks, err := client.QueueList(cmd.Context(), states...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if useJSON(ctx, out) {
				return writeJSON(cmd, tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprintln(out, renderQueueTable(tasks))
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFilter, "state", "", "Comma separated task states to include (queued, inflight, failed, deadlettered, succeeded)")
	return cmd
}

func renderQueueTable(tasks []api.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		errText := t.LastError
		if len(errText) > 48 {
			errText = errText[:45] + "..."
		}
		rows = append(rows, []string{
			t.ID,
			t.Kind,
			t.ContentID,
			t.Priority,
			t.State,
			strconv.Itoa(t.Attempts),
			t.NextEligible,
			errText,
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Content", "Priority", "State", "Attempts", "Next Eligible", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>...",
		Short: "Requeue dead-lettered tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range args {
				ack, err := client.RetryTask(cmd.Context(), strings.TrimSpace(id))
				if err != nil {
					return fmt.Errorf("retry %s: %w", id, err)
				}
				if useJSON(ctx, out) {
					if err := writeJSON(cmd, ack); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "Task %s requeued\n", ack.ID)
			}
			return nil
		},
	}
}
