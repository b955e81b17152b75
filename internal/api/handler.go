// Package api exposes the HTTP query surface: dashboard statistics,
// log search, alert management, connection listings, metric history,
// bulk ingestion and data export.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"netwatch/internal/gateway"
	"netwatch/internal/ingest"
	"netwatch/internal/model"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultListLimit = 100

// Handler holds the dependencies for the HTTP handlers.
type Handler struct {
	ingest *ingest.Service
	store  model.Store
	hub    *gateway.Hub
}

// NewHandler creates a Handler backed by the given ingest service and
// optional websocket hub. hub may be nil, in which case /ws is not routed.
func NewHandler(svc *ingest.Service, hub *gateway.Hub) *Handler {
	return &Handler{ingest: svc, store: svc.Store(), hub: hub}
}

// Router builds the full route table. reg may be nil to skip /metrics.
func (h *Handler) Router(reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/dashboard", h.dashboardHandler).Methods("GET")
	r.HandleFunc("/api/v1/logs", h.logsHandler).Methods("GET")
	r.HandleFunc("/api/v1/alerts", h.alertsHandler).Methods("GET")
	r.HandleFunc("/api/v1/alerts/{id}/resolve", h.resolveAlertHandler).Methods("POST")
	r.HandleFunc("/api/v1/connections", h.connectionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/connections/top", h.topConnectionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/metrics", h.metricsHandler).Methods("GET")
	r.HandleFunc("/api/v1/ingest", h.ingestHandler).Methods("POST")
	r.HandleFunc("/api/v1/export/{kind}", h.exportHandler).Methods("GET")

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if h.hub != nil {
		r.HandleFunc("/ws", h.hub.ServeWS)
	}

	return r
}

// dashboardHandler returns the latest rollup figures plus the live
// unresolved alert count.
func (h *Handler) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := model.BuildDashboardStats(r.Context(), h.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build dashboard: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// logsHandler lists logs. Query parameters: limit, search, from, to.
// A time range takes precedence over search.
func (h *Handler) logsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, to, ranged, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var logs []*model.TrafficLog
	switch {
	case ranged:
		logs, err = h.store.LogsInRange(r.Context(), from, to)
		if err == nil && len(logs) > limit {
			logs = logs[len(logs)-limit:]
		}
	case q.Get("search") != "":
		logs, err = h.store.SearchLogs(r.Context(), q.Get("search"), limit)
	default:
		logs, err = h.store.RecentLogs(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query logs: %v", err))
		return
	}
	if logs == nil {
		logs = []*model.TrafficLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// alertsHandler lists alerts, optionally restricted to unresolved ones.
func (h *Handler) alertsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	onlyUnresolved := q.Get("unresolved") == "true" || q.Get("unresolved") == "1"

	alerts, err := h.store.Alerts(r.Context(), onlyUnresolved, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query alerts: %v", err))
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// resolveAlertHandler marks an alert resolved. Resolving an already
// resolved alert succeeds and returns the record unchanged.
func (h *Handler) resolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := h.ingest.ResolveAlert(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %d not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resolve alert: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// connectionsHandler lists connections. active defaults to true; pass
// active=false to include closed connections.
func (h *Handler) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	var conns []*model.Connection
	var err error
	if raw := r.URL.Query().Get("active"); raw == "false" || raw == "0" {
		conns, err = h.store.AllConnections(r.Context())
	} else {
		conns, err = h.store.ActiveConnections(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query connections: %v", err))
		return
	}
	if conns == nil {
		conns = []*model.Connection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

// topConnectionsHandler lists the n heaviest active connections by bytes.
func (h *Handler) topConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}

	conns, err := h.store.TopConnections(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query connections: %v", err))
		return
	}
	if conns == nil {
		conns = []*model.Connection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

// metricsHandler returns metric history for a range, or the latest
// snapshot when no range is given.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, ranged, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if ranged {
		ms, err := h.store.MetricsInRange(r.Context(), from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query metrics: %v", err))
			return
		}
		if ms == nil {
			ms = []*model.TrafficMetric{}
		}
		writeJSON(w, http.StatusOK, ms)
		return
	}

	m, err := h.store.LatestMetric(r.Context())
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no metrics recorded yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query metrics: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ingestHandler accepts a bulk batch of records. Each item is validated
// and stored independently; failures are reported per item and do not
// abort the rest of the batch.
func (h *Handler) ingestHandler(w http.ResponseWriter, r *http.Request) {
	var batch ingest.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to decode batch: %v", err))
		return
	}

	result := h.ingest.IngestBatch(r.Context(), batch)
	accepted := result.LogsCreated + result.ConnectionsCreated + result.AlertsCreated
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
		if accepted == 0 {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return v, nil
}

// parseRange parses optional from/to RFC3339 parameters. A missing bound
// defaults to the zero time or now respectively. ranged reports whether
// either bound was supplied.
func parseRange(fromRaw, toRaw string) (from, to time.Time, ranged bool, err error) {
	if fromRaw == "" && toRaw == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	to = time.Now()
	if fromRaw != "" {
		from, err = time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("invalid from timestamp: %v", err)
		}
	}
	if toRaw != "" {
		to, err = time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("invalid to timestamp: %v", err)
		}
	}
	return from, to, true, nil
}
