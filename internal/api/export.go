package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"netwatch/internal/model"

	"github.com/gorilla/mux"
)

const exportLimit = 10000

// exportHandler streams a full dataset as CSV or JSON.
// Kinds: logs, alerts, connections, metrics.
func (h *Handler) exportHandler(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	ctx := r.Context()
	var (
		rows [][]string
		data any
		err  error
	)

	switch kind {
	case "logs":
		var logs []*model.TrafficLog
		logs, err = h.store.RecentLogs(ctx, exportLimit)
		data, rows = logs, logRows(logs)
	case "alerts":
		var alerts []*model.Alert
		alerts, err = h.store.Alerts(ctx, false, exportLimit)
		data, rows = alerts, alertRows(alerts)
	case "connections":
		var conns []*model.Connection
		conns, err = h.store.AllConnections(ctx)
		data, rows = conns, connectionRows(conns)
	case "metrics":
		var ms []*model.TrafficMetric
		ms, err = h.store.MetricsInRange(ctx, time.Time{}, time.Now())
		data, rows = ms, metricRows(ms)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown export kind %q", kind))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to export %s: %v", kind, err))
		return
	}

	if format == "json" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", kind))
		writeJSON(w, http.StatusOK, data)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", kind))
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return
		}
	}
	cw.Flush()
}

func logRows(logs []*model.TrafficLog) [][]string {
	rows := [][]string{{"id", "timestamp", "sourceIP", "destinationHost", "destinationIP", "destinationPort", "protocol", "action", "dataSize", "durationMs"}}
	for _, l := range logs {
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			l.Timestamp.Format(time.RFC3339),
			l.SourceIP,
			l.DestinationHost,
			l.DestinationIP,
			strconv.Itoa(l.DestinationPort),
			l.Protocol,
			string(l.Action),
			strconv.FormatInt(l.DataSize, 10),
			strconv.FormatInt(l.DurationMs, 10),
		})
	}
	return rows
}

func alertRows(alerts []*model.Alert) [][]string {
	rows := [][]string{{"id", "timestamp", "severity", "type", "title", "description", "sourceIP", "resolved", "resolvedAt"}}
	for _, a := range alerts {
		resolvedAt := ""
		if a.ResolvedAt != nil {
			resolvedAt = a.ResolvedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.Timestamp.Format(time.RFC3339),
			string(a.Severity),
			a.Type,
			a.Title,
			a.Description,
			a.SourceIP,
			strconv.FormatBool(a.Resolved),
			resolvedAt,
		})
	}
	return rows
}

func connectionRows(conns []*model.Connection) [][]string {
	rows := [][]string{{"id", "startTime", "endTime", "sourceIP", "destinationHost", "destinationPort", "protocol", "dataSize", "connectionCount", "isActive"}}
	for _, c := range conns {
		endTime := ""
		if c.EndTime != nil {
			endTime = c.EndTime.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.StartTime.Format(time.RFC3339),
			endTime,
			c.SourceIP,
			c.DestinationHost,
			strconv.Itoa(c.DestinationPort),
			c.Protocol,
			strconv.FormatInt(c.DataSize, 10),
			strconv.FormatInt(c.ConnectionCount, 10),
			strconv.FormatBool(c.IsActive),
		})
	}
	return rows
}

func metricRows(ms []*model.TrafficMetric) [][]string {
	rows := [][]string{{"id", "timestamp", "totalTraffic", "activeConnections", "blockedRequests", "protocolDistribution", "topDestinations"}}
	for _, m := range ms {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.Timestamp.Format(time.RFC3339),
			m.TotalTraffic,
			strconv.FormatInt(m.ActiveConnections, 10),
			strconv.FormatInt(m.BlockedRequests, 10),
			flattenCounts(m.ProtocolDistribution),
			flattenCounts(m.TopDestinations),
		})
	}
	return rows
}

// flattenCounts renders a count map as a stable key=value list so CSV
// output is deterministic.
func flattenCounts(m map[string]int64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]byte, 0, 64)
	for i, k := range keys {
		if i > 0 {
			parts = append(parts, ';')
		}
		parts = append(parts, k...)
		parts = append(parts, '=')
		parts = strconv.AppendInt(parts, m[k], 10)
	}
	return string(parts)
}
