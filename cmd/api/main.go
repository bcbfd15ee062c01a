package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sacha-rebbouh/optim-financials/cmd/setup"
	"github.com/sacha-rebbouh/optim-financials/internal/api"
	"github.com/sacha-rebbouh/optim-financials/internal/api/handlers"
	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/jobs/inmemory"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
)

func main() {
	configName := flag.String("config", config.DefaultName, "Config file name without the .env extension")
	flag.Parse()

	cfg, err := config.LoadConfig(*configName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	s, stoppers, err := setup.Init(ctx, cfg, log)
	if err != nil {
		_ = setup.Stop(ctx, stoppers)
		log.Fatal().Err(err).Msg("Failed to set up service")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Ingest.QueueSize, cfg.Ingest.WorkerCount, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, s.Ingestor.JobHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	var (
		blobs       handlers.BlobUploader
		attachments handlers.AttachmentRecorder
	)
	if s.Blobs != nil {
		blobs = s.Blobs
		attachments = s.Store
	}

	handler := api.NewRouter(api.Handlers{
		Upload:      handlers.NewUploadHandler(jobQueue, blobs, attachments, cfg.Server.MaxUploadBytes, log),
		Jobs:        handlers.NewJobsHandler(jobStore, log),
		Consolidate: handlers.NewConsolidateHandler(s.Consolidator, log),
	}, s.Registry, s.Metrics, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := setup.Stop(shutdownCtx, stoppers); err != nil {
		log.Error().Err(err).Msg("Error releasing resources")
	}

	log.Info().Msg("Server exited")
}
