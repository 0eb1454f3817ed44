// Package api exposes the simulation engine over HTTP: single and batch
// simulation endpoints, health, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/config"
	"github.com/quantlab-io/tradecost/internal/sim"
)

// Server routes HTTP requests to the engine
type Server struct {
	cfg     config.HTTPConfig
	engine  *sim.Engine
	metrics *MetricsRegistry
	router  *mux.Router

	// optional persistence hooks, invoked asynchronously
	resultHook func(sim.Result)
	batchHook  func(*sim.BatchResult)
}

// SetResultHook registers a callback for every successful simulation
func (s *Server) SetResultHook(hook func(sim.Result)) {
	s.resultHook = hook
}

// SetBatchHook registers a callback for every completed batch retrieval
func (s *Server) SetBatchHook(hook func(*sim.BatchResult)) {
	s.batchHook = hook
}

// NewServer builds the router and metric registry around an engine
func NewServer(cfg config.HTTPConfig, engine *sim.Engine) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		metrics: NewMetricsRegistry(),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// Metrics exposes the registry so ingestion can count market updates
func (s *Server) Metrics() *MetricsRegistry {
	return s.metrics
}

// Router returns the configured handler, primarily for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	// Method mismatches inside a subrouter surface as 404 unless the
	// subrouter carries its own handler.
	v1.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	v1.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	v1.HandleFunc("/batch", s.handleStartBatch).Methods(http.MethodPost)
	v1.HandleFunc("/batch/{id}", s.handleBatchStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
}

// metricsHandler refreshes the gauges derived from engine state before
// delegating to the Prometheus handler.
func (s *Server) metricsHandler() http.Handler {
	inner := s.metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := s.engine.CacheStats()
		s.metrics.SyncCacheCounters(stats.Hits, stats.Misses)
		s.metrics.ObserveStages(s.engine.LatencyMetrics())
		inner.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req sim.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result := s.engine.Simulate(req)
	if result.Error != "" {
		s.metrics.RecordSimulation("error")
	} else {
		s.metrics.RecordSimulation("ok")
		if s.resultHook != nil {
			go s.resultHook(result)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// batchRequest is the POST /batch payload
type batchRequest struct {
	Base       sim.Request     `json:"base"`
	Variations []sim.Variation `json:"variations"`
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	id, err := s.engine.StartBatch(req.Base, req.Variations)
	switch {
	case errors.Is(err, sim.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, sim.ErrQueueFull), errors.Is(err, sim.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.RecordBatch(len(req.Variations))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": id,
		"status":   "queued",
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if s.engine.IsBatchRunning(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"batch_id": id,
			"status":   "running",
		})
		return
	}

	evict := r.URL.Query().Get("evict") == "true"
	br, ok := s.engine.BatchResult(id, evict)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown batch %q", id))
		return
	}
	if evict && s.batchHook != nil {
		go s.batchHook(br)
	}
	writeJSON(w, http.StatusOK, br)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics, hasData := s.engine.MarketMetrics()
	stats := s.engine.CacheStats()

	status := "degraded"
	if hasData {
		status = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          status,
		"has_market_data": hasData,
		"symbol":          metrics.Symbol,
		"mid_price":       metrics.MidPrice,
		"cache":           stats,
		"latency":         s.engine.LatencyMetrics(),
	})
}

// Run serves until the context is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed,
		fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path))
}
