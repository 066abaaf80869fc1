package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KanuToCL/SonoTag-sub000/internal/config"
	"github.com/KanuToCL/SonoTag-sub000/internal/metrics"
	"github.com/KanuToCL/SonoTag-sub000/internal/session"
	"github.com/KanuToCL/SonoTag-sub000/internal/sysinfo"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	wsServer   *WSServer
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	sessionMgr *session.Manager, wsServer *WSServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     cfg,
		sessionMgr: sessionMgr,
		wsServer:   wsServer,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// WebSocket capture ingest
	mux.HandleFunc("/ws", h.wsServer.HandleUpgrade)

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Host inventory and window recommendation
	mux.HandleFunc("/system-info", h.withMetrics("/system-info", h.handleSystemInfo))
	mux.HandleFunc("/recommend-buffer", h.withMetrics("/recommend-buffer", h.handleRecommendBuffer))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics != nil {
			status := fmt.Sprintf("%d", ww.statusCode)
			h.metrics.RecordHTTPRequest(endpoint, status, time.Since(startTime))
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionStats := h.sessionMgr.GetStats()
	wsStats := h.wsServer.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "sonotag",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"websocket": map[string]interface{}{
				"status":            "running",
				"connected_clients": wsStats.ConnectedClients,
				"frames_received":   wsStats.FramesReceived,
				"decode_errors":     wsStats.DecodeErrors,
			},
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": sessionStats.ActiveSessions,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.sessionMgr.GetStats()

	response := map[string]interface{}{
		"total_sessions": stats.TotalSessions,
		"timestamp":      time.Now().UTC(),
		"sessions":       stats.Sessions,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	s, exists := h.sessionMgr.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.GetStats())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized configuration, the model API key is omitted
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":            h.config.Server.Port,
			"address":         h.config.Server.Address,
			"session_timeout": h.config.Server.SessionTimeout,
			"send_queue_size": h.config.Server.SendQueueSize,
		},
		"audio": map[string]interface{}{
			"window_seconds":     h.config.Audio.WindowSeconds,
			"min_window_seconds": h.config.Audio.MinWindowSeconds,
			"max_window_seconds": h.config.Audio.MaxWindowSeconds,
			"max_frame_samples":  h.config.Audio.MaxFrameSamples,
		},
		"model": map[string]interface{}{
			"endpoint":       h.config.Model.Endpoint,
			"sample_rate":    h.config.Model.SampleRate,
			"window_samples": h.config.Model.WindowSamples,
			"timeout":        h.config.Model.Timeout,
			"cooldown_ms":    h.config.Model.CooldownMS,
			"max_prompts":    h.config.Model.MaxPrompts,
		},
		"display": map[string]interface{}{
			"width":            h.config.Display.Width,
			"spectrogram_bins": h.config.Display.SpectrogramBins,
			"slide_speed":      h.config.Display.SlideSpeed,
			"normalizer":       h.config.Display.Normalizer,
			"tick_rate":        h.config.Display.TickRate,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"websocket": h.wsServer.GetStats(),
		"sessions":  h.sessionMgr.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleSystemInfo implements the /system-info endpoint
func (h *HTTPServer) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := sysinfo.Collect(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleRecommendBuffer implements the /recommend-buffer endpoint
func (h *HTTPServer) handleRecommendBuffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rec := sysinfo.Recommend(sysinfo.Collect(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleRoot implements the root endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	doc := map[string]interface{}{
		"service":     "sonotag",
		"description": "Real-time audio-text similarity service",
		"version":     "1.0.0",
		"endpoints": map[string]string{
			"/ws":               "WebSocket capture ingest (JSON control + binary PCM)",
			"/health":           "Service health check",
			"/sessions":         "List active capture sessions",
			"/sessions/{id}":    "Detailed statistics for one session",
			"/config":           "Current service configuration",
			"/stats":            "Service statistics",
			"/system-info":      "Host hardware inventory",
			"/recommend-buffer": "Recommended analysis window for this host",
			"/metrics":          "Prometheus metrics",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
