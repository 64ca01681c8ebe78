package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
)

// readyTimeout bounds the portal probe behind /ready
const readyTimeout = 5 * time.Second

// Options configures the health server
type Options struct {
	// ListenAddr is the address to serve on, e.g. ":8081".
	ListenAddr string

	// Portal is probed by /ready. Nil disables the probe.
	Portal *portal.Client

	// Broker feeds /events. Nil serves an empty list.
	Broker *events.Broker

	// Version is reported by /health.
	Version string
}

// HealthServer exposes the worker's operational endpoints over HTTP:
// liveness, readiness, Prometheus metrics and the recent task events.
type HealthServer struct {
	portal  *portal.Client
	broker  *events.Broker
	version string
	mux     *http.ServeMux
	server  *http.Server
	logger  zerolog.Logger
}

// NewHealthServer creates the health check HTTP server
func NewHealthServer(opts Options) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		portal:  opts.Portal,
		broker:  opts.Broker,
		version: opts.Version,
		mux:     mux,
		logger:  log.WithComponent("api"),
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/events", hs.eventsHandler)
	mux.Handle("/metrics", metrics.Handler())

	hs.server = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs
}

// Start serves until Stop is called. A closed server returns nil.
func (hs *HealthServer) Start() error {
	hs.logger.Info().Str("addr", hs.server.Addr).Msg("Health server listening")
	if err := hs.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, draining in-flight requests
func (hs *HealthServer) Stop(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready body
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a plain liveness check: 200 while the process runs
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
	}
	writeJSON(w, http.StatusOK, response)
}

// readyHandler reports whether the worker can do useful work, which
// means the data portal answers
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.portal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := hs.portal.Ping(ctx); err != nil {
			checks["portal"] = fmt.Sprintf("error: %v", err)
			ready = false
			message = "Data portal not reachable"
		} else {
			checks["portal"] = "ok"
		}
	} else {
		checks["portal"] = "not configured"
		ready = false
		message = "Portal client not initialized"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Message:   message,
	})
}

// eventsHandler dumps the broker's recent task events for debugging
func (hs *HealthServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recent := []*events.Event{}
	if hs.broker != nil {
		recent = hs.broker.Recent()
	}
	writeJSON(w, http.StatusOK, recent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
