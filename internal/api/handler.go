package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/sentinel/internal/config"
	"github.com/gyaneshwarpardhi/sentinel/internal/engine"
	"github.com/gyaneshwarpardhi/sentinel/internal/event"
	"github.com/gyaneshwarpardhi/sentinel/internal/hub"
	"github.com/gyaneshwarpardhi/sentinel/internal/metrics"
	"github.com/gyaneshwarpardhi/sentinel/internal/sensor"
)

const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 500
)

// IncidentReader is the read side of the incident store.
type IncidentReader interface {
	RecentIncidents(ctx context.Context, limit int) ([]event.Incident, error)
	Ping(ctx context.Context) error
}

// Deps holds all HTTP handler dependencies. Loader may be nil, which disables
// the reload endpoint. Gatherer should be the registry Metrics was built on;
// nil means prometheus.DefaultGatherer.
type Deps struct {
	Engine    *engine.Engine
	Hub       *hub.Hub
	Incidents IncidentReader
	Metrics   *metrics.Recorder
	Gatherer  prometheus.Gatherer
	Loader    *config.Loader
	Logger    *slog.Logger
}

// Handler serves the intake, dashboard and observer endpoints.
type Handler struct {
	Deps
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{
		Deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard may be served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/simulate", h.simulate)
	h.mux.HandleFunc("GET /api/sensors", h.sensors)
	h.mux.HandleFunc("GET /api/metrics", h.metricsSummary)
	h.mux.HandleFunc("GET /api/incidents", h.incidents)
	h.mux.HandleFunc("GET /ws", h.observe)
	if d.Loader != nil {
		h.mux.HandleFunc("POST /api/config/reload", h.reloadConfig)
	}
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	return loggingMiddleware(d.Logger, h.mux)
}

type simulateRequest struct {
	SensorType string                 `json:"sensor_type"`
	Sensor     string                 `json:"sensor"` // dashboard alias
	Payload    map[string]interface{} `json:"payload"`
}

// POST /api/simulate: classify and queue one sensor event.
func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := req.SensorType
	if name == "" {
		name = req.Sensor
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "sensor_type is required")
		return
	}

	ack, err := h.Engine.Trigger(name, req.Payload)
	switch {
	case errors.Is(err, sensor.ErrSensorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, engine.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"event_id": ack.EventID,
		"verdict":  ack.Verdict,
	})
}

// GET /api/sensors: latest verdict per sensor.
func (h *Handler) sensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot())
}

// GET /api/metrics: dashboard totals.
func (h *Handler) metricsSummary(w http.ResponseWriter, r *http.Request) {
	s := h.Metrics.Summary()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events_processed": s.Events,
		"avg_latency_ms":   s.AvgLatencyMs,
		"by_status":        s.ByStatus,
		"in_flight":        h.Engine.InFlight(),
		"observers":        h.Hub.Len(),
	})
}

// GET /api/incidents?limit=N: most recent stored incidents.
func (h *Handler) incidents(w http.ResponseWriter, r *http.Request) {
	limit := defaultIncidentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxIncidentLimit)
	}
	list, err := h.Incidents.RecentIncidents(r.Context(), limit)
	if err != nil {
		h.Logger.Error("list incidents", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": list})
}

// GET /ws: register the caller as a live observer until it disconnects.
func (h *Handler) observe(w http.ResponseWriter, r *http.Request) {
	obs := hub.NewWebSocketObserver(w, r, &h.upgrader)
	handle, err := h.Hub.Register(r.Context(), obs)
	if err != nil {
		// A failed upgrade has already written its HTTP error.
		h.Logger.Warn("observer registration failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer h.Hub.Unregister(handle)

	if err := obs.Wait(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.Logger.Debug("observer read ended", "handle", handle, "err", err)
	}
}

// POST /api/config/reload: re-read the YAML config from disk.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the event queue is >80% full or the store is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.Engine.QueueUtilization()
	h.Metrics.SetQueueUtilization(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := h.Incidents.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
