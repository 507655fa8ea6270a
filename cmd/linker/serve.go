package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/metrics"
	"github.com/energy-linkage/internal/store"
	"github.com/energy-linkage/internal/web"
)

func createServeCmd() *cobra.Command {
	var (
		webConfigPath string
		port          int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the QA review server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.Default()

			webCfg := web.DefaultConfig()
			if webConfigPath != "" {
				loaded, err := web.LoadConfig(webConfigPath)
				if err != nil {
					return err
				}
				webCfg = loaded
			}
			webCfg.ApplyEnv()
			if port != 0 {
				webCfg.Server.Port = port
			}
			webCfg.Debug = webCfg.Debug || cfg.Debug
			if err := webCfg.Validate(); err != nil {
				return err
			}

			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			model, err := loadModel(webCfg.ModelPath)
			if err != nil {
				return err
			}

			recorder := metrics.NewRecorder()
			seedMetrics(ctx, db, recorder)

			srv, err := web.NewServer(webCfg, web.Deps{
				Backend:   db,
				Overrides: audit.NewTracker(logger, db),
				Metrics:   recorder.Handler(),
				Model:     model,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&webConfigPath, "web-config", "", "review server config file")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides the config file and LINKER_WEB_PORT)")
	return cmd
}

// seedMetrics publishes the diagnostics of the latest stored run so the
// gauges are meaningful before the next run.
func seedMetrics(ctx context.Context, db *store.Store, recorder *metrics.Recorder) {
	logger := logging.FromContext(ctx)
	run, err := db.LatestRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("could not load the latest run for metrics")
		return
	}
	var d linkage.Diagnostics
	if err := json.Unmarshal(run.Diagnostics, &d); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("stored diagnostics are unreadable")
		return
	}
	for _, s := range d.Stages {
		recorder.ObserveStage(s)
	}
	recorder.ObserveRun(d, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
}
