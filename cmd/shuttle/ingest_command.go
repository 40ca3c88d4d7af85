package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
	"shuttle/internal/gate"
	"shuttle/internal/logging"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string
	var seqFlag int64
	var contentTypeFlag string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Admit a single segment file into the chunk store",
		Long:  "Validates a captured segment and persists it as a pending chunk. Used for manual recovery and testing; normal operation ingests from the spool directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				payload, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}

				logger, err := logging.New(logging.Options{
					Level:       cfg.Logging.Level,
					Format:      cfg.Logging.Format,
					OutputPaths: []string{"stderr"},
				})
				if err != nil {
					return err
				}

				g := gate.New(cfg, logger)
				if decision := g.Admit(sessionFlag, payload, contentTypeFlag); !decision.Admitted {
					return fmt.Errorf("segment rejected: %s", decision.Reason)
				}

				if err := store.CreateSession(cmd.Context(), sessionFlag, ""); err != nil {
					return err
				}
				if err := store.Put(cmd.Context(), sessionFlag, seqFlag, payload, contentTypeFlag, 0); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%d (%s)\n", sessionFlag, seqFlag, formatBytes(int64(len(payload))))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Session identifier")
	cmd.Flags().Int64Var(&seqFlag, "seq", 0, "Sequence number (1-based)")
	cmd.Flags().StringVar(&contentTypeFlag, "content-type", "audio/webm", "Declared content type")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("seq")
	return cmd
}
