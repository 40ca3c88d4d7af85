package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show chunk delivery status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				stats, err := store.Stats(cmd.Context(), sessionFlag)
				if err != nil {
					return err
				}
				health := store.CheckHealth(cmd.Context())

				out := cmd.OutOrStdout()
				if isTerminal(out) {
					rows := make([][]string, 0, len(chunkstore.AllStates()))
					for _, state := range chunkstore.AllStates() {
						rows = append(rows, []string{string(state), strconv.Itoa(stats.ByState[state])})
					}
					fmt.Fprintln(out, renderTable(
						[]column{{header: "State"}, {header: "Chunks", numeric: true}},
						rows,
					))
				} else {
					for _, state := range chunkstore.AllStates() {
						fmt.Fprintf(out, "%s=%d\n", state, stats.ByState[state])
					}
				}

				fmt.Fprintf(out, "total: %d chunks, %s stored", stats.TotalChunks, formatBytes(stats.TotalBytes))
				if quota := cfg.MaxStoreBytes(); quota > 0 {
					fmt.Fprintf(out, " (quota %s)", formatBytes(quota))
				}
				fmt.Fprintln(out)

				if health.Error != "" {
					fmt.Fprintf(out, "database: UNHEALTHY (%s)\n", health.Error)
				} else {
					fmt.Fprintf(out, "database: ok (%s)\n", health.DBPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Limit to one session")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
