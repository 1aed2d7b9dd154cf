package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"remora/internal/config"
	"remora/internal/metrics"
)

// Server is the operational HTTP surface: health, stats and prometheus
// metrics. Every request passes the metrics and request-logging middleware.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates the operational server for a running App.
func NewServer(cfg *config.Config, a *App, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/stats", handleStats(a))
	mux.HandleFunc("/api/strategies/active", handleActiveStrategies(a))
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(a.Metrics(), promhttp.HandlerOpts{}))
	}

	handler := metrics.LoggingMiddleware(logger)(metrics.HTTPMiddleware(a.Metrics())(mux))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the configured handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStats(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.GetStats(r.Context())); err != nil {
			http.Error(w, `{"error":"encoding stats"}`, http.StatusInternalServerError)
		}
	}
}

// handleActiveStrategies lists the PENDING strategies still worth acting on.
// The sweep inside GetActive keeps expired rows out of the response. An
// optional ?symbol= narrows the list to one market.
func handleActiveStrategies(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := a.Lifecycle().GetActive(r.Context(), r.URL.Query().Get("symbol"))
		if err != nil {
			http.Error(w, `{"error":"listing strategies"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(active); err != nil {
			http.Error(w, `{"error":"encoding strategies"}`, http.StatusInternalServerError)
		}
	}
}
