package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slicerd/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running slicerd instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			health, err := client.New(cfg.Paths.APIBind).Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("slicerd is not reachable at %s: %w", cfg.Paths.APIBind, err)
			}

			slicerState := "missing"
			if health.SlicerAvailable {
				slicerState = "available"
				if health.SlicerVersion != "" {
					slicerState = health.SlicerVersion
				}
			}

			rows := [][]string{
				{"status", health.Status},
				{"slicer", slicerState},
				{"profiles", fmt.Sprintf("%d", health.ProfilesLoaded)},
				{"uptime", formatUptime(health.UptimeSeconds)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func formatUptime(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
