package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Requeue terminally failed chunks",
		Long:  "Returns chunks that exhausted their retry budget to the pending queue with a fresh attempt count. The running daemon picks them up on its next pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				requeued, err := store.RequeueTerminal(cmd.Context(), sessionFlag)
				if err != nil {
					return err
				}
				if requeued == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no terminally failed chunks")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d chunks\n", requeued)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Limit to one session")
	return cmd
}
