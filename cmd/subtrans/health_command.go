package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon status, queue counters, and stage readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := cli.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:    running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Task DB:   %s\n", status.TaskDBPath)
			fmt.Fprintf(out, "Lock file: %s\n", status.LockFilePath)
			fmt.Fprintf(out, "Queue:     %d total, %d queued, %d processing, %d completed, %d failed, %d cancelled\n",
				status.Queue.Total, status.Queue.Queued, status.Queue.Processing,
				status.Queue.Completed, status.Queue.Failed, status.Queue.Cancelled)

			rows := make([][]string, 0, len(status.StageHealth))
			for _, health := range status.StageHealth {
				ready := "ready"
				if !health.Ready {
					ready = "unavailable"
				}
				rows = append(rows, []string{health.Name, ready, health.Detail})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "State", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}
			return nil
		},
	}
}
