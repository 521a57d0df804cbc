package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxkb/voxkb/internal/audit"
	"github.com/voxkb/voxkb/internal/config"
	"github.com/voxkb/voxkb/internal/controlplane"
	"github.com/voxkb/voxkb/internal/pipeline/simulate"
	"github.com/voxkb/voxkb/internal/progress"
	"github.com/voxkb/voxkb/internal/queue"
	"github.com/voxkb/voxkb/internal/store"
	"github.com/voxkb/voxkb/internal/worker"
)

var (
	configPath string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the voxkb daemon",
	Long:  `Starts the voxkb daemon which provides the HTTP API and runs the ingestion worker.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default ~/.voxkb/config.yaml)")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}

	logger, logCloser, err := config.SetupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting voxkb daemon", "db", cfg.DB.Path, "listen", cfg.Server.Listen)

	// Initialize store
	s, err := store.New(cfg.DB.Path)
	if err != nil {
		return err
	}

	// Initialize services
	recorder := audit.NewRecorder(s, logger)
	queueSvc := queue.New(s, recorder, cfg.Worker.MaxRetries, logger)
	progressSvc := progress.New(s, logger)

	// Create and start the worker
	runner := simulate.New()
	workerCfg := &worker.Config{
		PollInterval:       cfg.Worker.PollInterval,
		StaleAfter:         cfg.Worker.StaleAfter,
		StaleSweepInterval: cfg.Worker.StaleSweepInterval,
	}
	wrk := worker.New(queueSvc, progressSvc, runner, workerCfg, logger)

	// Create service and server
	service := controlplane.NewService(queueSvc, progressSvc, wrk, logger)
	server := controlplane.NewServer(service, cfg.Server.Listen, logger)

	wrk.Start()
	defer wrk.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			s.Close()
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("closing database connection")
	if err := s.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
