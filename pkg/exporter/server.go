// Package exporter serves the meter snapshot over HTTP: the Prometheus
// document, JSON views and a live websocket stream.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/telegram"
)

// Diagnostics exposes the ingestion counters and source activity.
type Diagnostics interface {
	Stats() telegram.Stats
	Activity() telegram.Activity
}

// SolarReader reads the inverter production in W.
type SolarReader interface {
	IsConfigured() bool
	ReadPower(ctx context.Context) (int32, error)
}

const defaultKeepaliveInterval = 5 * time.Second

type Options struct {
	Hostname          string
	BroadcastInterval time.Duration
	// KeepaliveInterval paces websocket pings, which are sent even before
	// the first telegram.
	KeepaliveInterval time.Duration
}

type Server struct {
	opts        Options
	snapshot    *metrics.Snapshot
	diagnostics Diagnostics
	solar       SolarReader
	hub         *Hub
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewServer wires the HTTP handlers. solar may be nil.
func NewServer(opts Options, snapshot *metrics.Snapshot, diagnostics Diagnostics, solar SolarReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = time.Second
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepaliveInterval
	}
	return &Server{
		opts:        opts,
		snapshot:    snapshot,
		diagnostics: diagnostics,
		solar:       solar,
		hub:         NewHub(logger),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only data on the local network
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /latest", s.handleLatest)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /solar", s.handleSolar)
	return mux
}

// RunBroadcast pushes the snapshot to websocket clients until ctx is done.
// Clients are also pinged every keepalive interval, ready or not.
func (s *Server) RunBroadcast(ctx context.Context) {
	ticker := time.NewTicker(s.opts.BroadcastInterval)
	defer ticker.Stop()
	keepalive := time.NewTicker(s.opts.KeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastOnce()
		case <-keepalive.C:
			if s.hub.Len() > 0 {
				s.hub.Ping()
			}
		}
	}
}

func (s *Server) broadcastOnce() {
	if s.hub.Len() == 0 {
		return
	}
	if reading := s.snapshot.Reading(); reading != nil {
		s.hub.Broadcast(reading.ToJsonBytes())
	}
}

type statusResponse struct {
	Message  string            `json:"message"`
	Status   string            `json:"status"`
	Hostname string            `json:"hostname"`
	Ready    bool              `json:"ready"`
	Updated  *time.Time        `json:"updated,omitempty"`
	Activity telegram.Activity `json:"activity"`
	Stats    telegram.Stats    `json:"stats"`
	Clients  int               `json:"websocket_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Message:  "Smart Meter Exporter",
		Status:   "running",
		Hostname: s.opts.Hostname,
		Ready:    s.snapshot.Ready(),
		Clients:  s.hub.Len(),
	}
	if updated := s.snapshot.UpdatedAt(); !updated.IsZero() {
		resp.Updated = &updated
	}
	if s.diagnostics != nil {
		resp.Activity = s.diagnostics.Activity()
		resp.Stats = s.diagnostics.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := s.snapshot.Render()
	if errors.Is(err, metrics.ErrNoContent) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.logger.Error("rendering metrics", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	w.Write(body)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	reading := s.snapshot.Reading()
	if reading == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "err", err)
		return
	}

	client := s.hub.add(conn)
	s.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	// Send current reading immediately if available
	if reading := s.snapshot.Reading(); reading != nil {
		if err := client.write(reading.ToJsonBytes()); err != nil {
			s.hub.Remove(conn)
			return
		}
	}

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(conn)
			return
		}
	}
}

// May be fast or slow depending on cached response from inverter.
func (s *Server) handleSolar(w http.ResponseWriter, r *http.Request) {
	if s.solar == nil || !s.solar.IsConfigured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "solar inverter not configured",
		})
		return
	}
	power, err := s.solar.ReadPower(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int32{
		"currentProduction": power,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
