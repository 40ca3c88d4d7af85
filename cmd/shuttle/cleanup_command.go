package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string
	var olderThanDays int
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove delivered and expired chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				out := cmd.OutOrStdout()

				uploaded, err := store.DeleteUploaded(cmd.Context(), sessionFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d uploaded chunks\n", uploaded)

				days := olderThanDays
				if days == 0 {
					days = cfg.Store.RetentionDays
				}
				if days > 0 {
					cutoff := time.Now().AddDate(0, 0, -days)
					expired, err := store.DeleteOlderThan(cmd.Context(), cutoff)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "removed %d chunks older than %d days\n", expired, days)
				}

				if vacuum {
					if err := store.Vacuum(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(out, "database compacted")
				}

				remaining, err := store.StoredBytes(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s still stored\n", formatBytes(remaining))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Limit uploaded-chunk removal to one session")
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Also remove chunks older than this many days (default: configured retention)")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Compact the database file afterwards")
	return cmd
}
