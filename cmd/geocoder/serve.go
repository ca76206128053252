package main

import (
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/queue"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/storage"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web/handlers"
)

const uploadCleanupInterval = time.Hour

func createServeCmd(a *app) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the geocoding API. With --worker (the default) the process also consumes
reference refresh tasks, so POST /api/reference/refresh reloads the reference held
by this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.cfg.LogConfig(a.logger)

			provider, b, err := a.newProvider(true)
			if err != nil {
				return err
			}
			defer b.close()

			a.logger.Info("loading reference", slog.String("source", describeSource(a.cfg)))
			if ds, err := provider.Get(ctx); err != nil {
				// requests retry the load; /api/health reports degraded meanwhile
				a.logger.Warn("reference not loaded at startup", slog.Any("error", err))
			} else {
				a.logger.Info("reference loaded", slog.Int("postcodes", ds.Len()))
			}

			geoCfg, err := a.geocodingConfig(ctx)
			if err != nil {
				return err
			}
			svc, err := geocoding.NewService(&geoCfg, provider, a.logger.With(slog.String("service", "geocoding")))
			if err != nil {
				return err
			}

			store, err := storage.NewLocalStorage(&storage.LocalStorageConfig{
				BasePath: a.cfg.TempDir,
				MaxSize:  a.cfg.MaxFileSizeBytes(),
			}, a.logger.With(slog.String("component", "storage")))
			if err != nil {
				return err
			}
			go store.RunCleanup(ctx, uploadCleanupInterval, a.cfg.UploadRetention())

			components := map[string]handlers.HealthChecker{}
			if b.db != nil {
				components["database"] = b.db
			}
			if b.redis != nil {
				components["redis"] = b.redis
			}

			client := queue.NewAsynqClient(a.queueOptions(), a.logger.With(slog.String("component", "queue")))
			defer client.Close()

			if withWorker {
				worker := queue.NewAsynqServer(a.queueOptions(), a.logger.With(slog.String("component", "worker")))
				worker.Register(provider)
				if err := worker.StartBackground(); err != nil {
					return err
				}
				defer worker.Shutdown()
			}

			server := web.NewServer(a.cfg.GetServerAddr(), web.Deps{
				Geocoder:     svc,
				Provider:     provider,
				Parsers:      a.uploadParsers(""),
				Storage:      store,
				Queue:        client,
				Components:   components,
				MaxFileSize:  a.cfg.MaxFileSizeBytes(),
				RegexPattern: a.cfg.RegexPattern,
				Logger:       a.logger,
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&withWorker, "worker", true, "also process reference refresh tasks")
	return cmd
}

func createWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process reference refresh tasks",
		Long: `Runs an asynq worker that reloads the reference on demand and republishes
the redis snapshot read by other processes at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.LogConfig(a.logger)

			provider, b, err := a.newProvider(true)
			if err != nil {
				return err
			}
			defer b.close()

			worker := queue.NewAsynqServer(a.queueOptions(), a.logger.With(slog.String("component", "worker")))
			worker.Register(provider)

			// Start blocks until SIGINT or SIGTERM
			return worker.Start()
		},
	}
}

