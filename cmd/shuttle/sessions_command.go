package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/config"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recording sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				sessions, err := store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "no sessions")
					return nil
				}

				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.ID,
						string(s.State),
						strconv.Itoa(s.ChunksTotal),
						strconv.Itoa(s.ChunksUploaded),
						strconv.Itoa(s.ChunksFailed),
						s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{
						{header: "Session"},
						{header: "State"},
						{header: "Chunks", numeric: true},
						{header: "Uploaded", numeric: true},
						{header: "Failed", numeric: true},
						{header: "Created"},
					},
					rows,
				))
				return nil
			})
		},
	}

	cmd.AddCommand(newSessionsNewCommand(ctx))
	cmd.AddCommand(newSessionsDeleteCommand(ctx))
	return cmd
}

func newSessionsNewCommand(ctx *commandContext) *cobra.Command {
	var ownerFlag string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a recording session and print its identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				id := uuid.NewString()
				if err := store.CreateSession(cmd.Context(), id, ownerFlag); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ownerFlag, "owner", "", "Owning user identifier")
	return cmd
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *chunkstore.Store) error {
				deleted, err := store.DeleteSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted session %s (%d chunks)\n", args[0], deleted)
				return nil
			})
		},
	}
}
