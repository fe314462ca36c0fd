package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/vera-bridge/internal/snapshot"
)

// snapshotTimeout bounds the controller fetch behind /api/v1/snapshot.
const snapshotTimeout = 30 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.rateLimitMiddleware())

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/directory", s.handleDirectory)
		r.Get("/snapshot", s.handleSnapshot)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Poller        *bool           `json:"poller_running,omitempty"`
	MQTT          *bool           `json:"mqtt_connected,omitempty"`
	Exporter      *bool           `json:"exporter_connected,omitempty"`
	Directory     DirectoryHealth `json:"directory"`
	Sink          SinkHealth      `json:"sink"`
}

// DirectoryHealth reports the directory size.
type DirectoryHealth struct {
	Rooms   int `json:"rooms"`
	Devices int `json:"devices"`
}

// SinkHealth reports the HTTP sink destination.
type SinkHealth struct {
	IP      string `json:"ip,omitempty"`
	Breaker string `json:"breaker,omitempty"`
}

// handleHealth reports the bridge status.
//
// Status is "degraded" while the poller is stopped or the directory is empty.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rooms, devices := s.deps.Directory.Size()
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Poller:        optionalStatus(s.deps.PollerRunning),
		MQTT:          optionalStatus(s.deps.MQTTConnected),
		Exporter:      optionalStatus(s.deps.ExporterConnected),
		Directory:     DirectoryHealth{Rooms: rooms, Devices: devices},
	}
	if s.deps.SinkIP != nil {
		resp.Sink.IP = s.deps.SinkIP()
	}
	if s.deps.SinkBreaker != nil {
		resp.Sink.Breaker = s.deps.SinkBreaker()
	}

	if devices == 0 || (resp.Poller != nil && !*resp.Poller) {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDirectory returns the directory grouped by room.
func (s *Server) handleDirectory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": s.deps.Directory.Rooms(),
	})
}

// handleSnapshot fetches and normalizes a live snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	doc, err := s.deps.Snapshots.FetchSnapshot(ctx)
	if err != nil {
		s.logger.Error("snapshot fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "controller unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Normalize(doc, s.deps.Now()))
}

func optionalStatus(f func() bool) *bool {
	if f == nil {
		return nil
	}
	v := f()
	return &v
}
