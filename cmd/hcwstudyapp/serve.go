package main

import (
	"context"
	"fmt"

	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/telemetry"
	"github.com/spf13/cobra"
)

// counterInstrumentation adapts telemetry.Counters to store.Instrumentation.
type counterInstrumentation struct {
	counters telemetry.Counters
	ctx      context.Context
}

func (c counterInstrumentation) IncMutation(table string) {
	c.counters.Mutations.Add(c.ctx, 1, metricAttr("table", table))
}

func (c counterInstrumentation) IncRowsSynced(table string, n int) {
	c.counters.RowsSynced.Add(c.ctx, int64(n), metricAttr("table", table))
}

// serveCmd opens the store and its telemetry providers, initialises the
// store, and then returns; it does not block or keep the process
// running. The HTTP routing layer that would sit in front of the store
// is an external collaborator this codebase does not own (spec §1/§6);
// this command exists so the store's root-directory lifecycle
// (bootstrap, locking, migration) and its telemetry wiring can be
// exercised and observed without that layer.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open and initialise the store, then exit (no HTTP layer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			provider, err := telemetry.Setup(ctx, telemetry.ExporterStdout, "")
			if err != nil {
				return err
			}
			defer provider.Shutdown(ctx)

			counters, err := telemetry.NewCounters(provider)
			if err != nil {
				return err
			}

			s, err := store.Initialise(cfg.RootDir, cfg.DefaultAdminEmail,
				store.WithLogger(logger),
				store.WithInstrumentation(counterInstrumentation{counters: counters, ctx: ctx}),
			)
			if err != nil {
				return err
			}
			defer s.Close()

			logger.Info("store resident", "root", cfg.RootDir)
			fmt.Println("store initialised; no HTTP layer is wired in this build")
			return nil
		},
	}
	return cmd
}
