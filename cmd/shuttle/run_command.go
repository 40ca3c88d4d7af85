package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"shuttle/internal/chunkstore"
	"shuttle/internal/daemon"
	"shuttle/internal/gate"
	"shuttle/internal/logging"
	"shuttle/internal/netwatch"
	"shuttle/internal/presign"
	"shuttle/internal/spool"
	"shuttle/internal/transport"
	"shuttle/internal/uploader"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the upload daemon",
		Long:  "Runs the shuttle daemon: ingests captured segments from the spool directory, persists them, and uploads them with bounded concurrency and retry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			outputs := []string{filepath.Join(cfg.Paths.LogDir, "shuttle.log")}
			if foreground {
				outputs = append(outputs, "stdout")
			}
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: outputs,
			})
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			store, err := chunkstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}

			scheduler := uploader.New(cfg, store, presign.NewClient(cfg), transport.NewHTTPTransmitter(), logger)

			var ingester *spool.Ingester
			if cfg.Spool.Enabled {
				ingester = spool.New(cfg, gate.New(cfg, logger), store, scheduler, logger)
			}
			watcher := netwatch.New(cfg, scheduler, logger)

			d, err := daemon.New(cfg, store, scheduler, ingester, watcher, logger)
			if err != nil {
				store.Close()
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				d.Close()
				return err
			}

			<-runCtx.Done()
			return d.Close()
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", true, "Log to stdout in addition to the log file")
	return cmd
}
