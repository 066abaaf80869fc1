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

	"github.com/KanuToCL/SonoTag-sub000/internal/classify"
	"github.com/KanuToCL/SonoTag-sub000/internal/config"
	"github.com/KanuToCL/SonoTag-sub000/internal/metrics"
	"github.com/KanuToCL/SonoTag-sub000/internal/server"
	"github.com/KanuToCL/SonoTag-sub000/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "sonotag"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Float64("window_seconds", cfg.Audio.WindowSeconds),
		slog.String("model_endpoint", cfg.Model.Endpoint),
		slog.Int("model_sample_rate", cfg.Model.SampleRate),
		slog.Int("model_window_samples", cfg.Model.WindowSamples),
		slog.Int("display_width", cfg.Display.Width),
		slog.Int("slide_speed", cfg.Display.SlideSpeed),
		slog.String("normalizer", cfg.Display.Normalizer),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.New()
	logger.Info("Prometheus metrics initialized")

	// Initialize the similarity model client
	classifier, err := classify.NewClient(classify.Config{
		Endpoint: cfg.Model.Endpoint,
		APIKey:   cfg.Model.APIKey,
		Timeout:  cfg.Model.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create model client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Model client initialized",
		slog.String("endpoint", cfg.Model.Endpoint),
		slog.Duration("timeout", cfg.Model.GetTimeoutDuration()),
	)

	// Initialize session manager
	sessionMgr := session.NewManager(cfg, classifier, appMetrics, logger)
	sessionMgr.Start()
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Server.GetSessionTimeoutDuration()),
	)

	// Initialize WebSocket ingest and HTTP API servers
	wsServer := server.NewWSServer(cfg, logger, sessionMgr, appMetrics)
	httpServer := server.NewHTTPServer(cfg, logger, sessionMgr, wsServer, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (end sessions, drop in-flight classifications)
	sessionMgr.Stop()

	// Final statistics
	wsStats := wsServer.GetStats()
	clientStats := classifier.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("frames_received", wsStats.FramesReceived),
		slog.Uint64("decode_errors", wsStats.DecodeErrors),
		slog.Uint64("model_requests", clientStats.TotalRequests),
		slog.Float64("model_success_rate", clientStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
