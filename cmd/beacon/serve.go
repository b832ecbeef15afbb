package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/beacon/internal/clock"
	"github.com/goodtune/beacon/internal/config"
	"github.com/goodtune/beacon/internal/ingest"
	"github.com/goodtune/beacon/internal/metrics"
	"github.com/goodtune/beacon/internal/sink"
	"github.com/goodtune/beacon/internal/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the beacon server",
	Long:  `Start the beacon ingest API, the page session manager and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("measurement_id", cfg.MeasurementID).
		Msg("Starting beacon")

	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize event sink
	writer, err := openWriter(cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s sink: %w", cfg.Sink.Type, err)
	}
	events := sink.NewAsync(writer, cfg.Sink.Type, cfg.Sink.QueueSize, logger)
	defer func() {
		if err := events.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close event sink")
		}
	}()

	logger.Info().Str("type", cfg.Sink.Type).Msg("Event sink initialized")

	// Initialize page sessions
	manager, err := newManager(cfg, events, clock.Real{}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	logger.Info().
		Int("max_pages", cfg.Sessions.MaxPages).
		Str("idle_timeout", cfg.Sessions.IdleTimeout).
		Msg("Session manager initialized")

	// Initialize Ingest Server
	ingestConfig := ingest.Config{
		ListenAddr:     fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.IngestPort),
		RateLimit:      cfg.Ingest.RateLimit,
		RateWindow:     config.ParseDuration(cfg.Ingest.RateWindow, time.Minute),
		AllowedOrigins: cfg.Ingest.AllowedOrigins,
		MaxBodyBytes:   cfg.Ingest.MaxBodyBytes,
	}
	ingestServer := ingest.NewServer(ingestConfig, manager, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Ingest != nil {
		ingestServer.SetListener(sdListeners.Ingest)
	}

	if err := ingestServer.Start(); err != nil {
		return fmt.Errorf("failed to start Ingest Server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	logger.Info().Msg("Beacon startup complete")
	logger.Info().Msgf("Ingest API: http://%s", ingestConfig.ListenAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go systemd.RunWatchdog(ctx, logger)

	// Wait for signals (shutdown or status)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Int("open_pages", manager.Len()).Msg("SIGHUP received, configuration is only read at startup")
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}
	signal.Stop(sigChan)

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}
	cancel()

	// Ingest stops before pages close
	if err := ingestServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Ingest Server")
	}

	manager.Shutdown()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("Beacon stopped")

	return nil
}
