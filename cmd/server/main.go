package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Onesoul0606/WhisperSTT/internal/config"
	"github.com/Onesoul0606/WhisperSTT/internal/engine"
	"github.com/Onesoul0606/WhisperSTT/internal/metrics"
	"github.com/Onesoul0606/WhisperSTT/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "whisper-stt"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Configuration summary without sensitive data
	logger.Info("Configuration loaded",
		slog.Int("ingest_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("max_buffer_duration", cfg.Audio.MaxBufferDuration),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.Int("agreement_n", cfg.Reconcile.AgreementN),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	engineClient, err := engine.NewClient(engine.Config{
		Endpoint:      cfg.Engine.Endpoint,
		APIKey:        cfg.Engine.APIKey,
		Timeout:       cfg.Engine.GetTimeoutDuration(),
		MaxRetries:    cfg.Engine.MaxRetries,
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		Language:      cfg.Engine.Language,
	})
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription engine client initialized",
		slog.String("endpoint", cfg.Engine.Endpoint),
		slog.Int("max_concurrent", cfg.Engine.MaxConcurrent),
	)

	wsServer := server.NewWSServer(cfg, logger, engineClient, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, wsServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start websocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ingest_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the HTTP API first, then drain the ingest sessions.
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping websocket server", slog.String("error", err.Error()))
	}

	if err := engineClient.Close(); err != nil {
		logger.Error("Error closing engine client", slog.String("error", err.Error()))
	}

	engineStats := engineClient.GetStats()
	logger.Info("Final engine statistics",
		slog.Uint64("total_requests", engineStats.TotalRequests),
		slog.Uint64("success_requests", engineStats.SuccessRequests),
		slog.Uint64("failed_requests", engineStats.FailedRequests),
		slog.Uint64("total_retries", engineStats.TotalRetries),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
