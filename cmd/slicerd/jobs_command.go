package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slicerd/internal/client"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List slice jobs on a running slicerd instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			list, err := client.New(cfg.Paths.APIBind).ListJobs(cmd.Context(), statusFilter, limit)
			if err != nil {
				return fmt.Errorf("slicerd is not reachable at %s: %w", cfg.Paths.APIBind, err)
			}
			if len(list.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No slice jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(list.Items))
			for _, job := range list.Items {
				rows = append(rows, []string{
					job.ID,
					job.Status,
					formatProgress(job),
					job.QueuedAt.Local().Format(time.DateTime),
					truncate(job.ErrorMessage, 60),
				})
			}
			headers := []string{"Job", "Status", "Progress", "Queued", "Error"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d jobs shown\n", len(list.Items), list.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (queued, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list")
	return cmd
}

func formatProgress(job client.Job) string {
	if job.ProgressPercent == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *job.ProgressPercent)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "…"
}
