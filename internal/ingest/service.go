// Package ingest is the validating write boundary in front of the record
// store. Every producer (the aggregation engine, the external bridges, the
// query API) creates records through it, so validation and event publication
// happen exactly once, in one place.
package ingest

import (
	"context"
	"fmt"

	"netwatch/internal/bus"
	"netwatch/internal/metrics"
	"netwatch/internal/model"
)

// Service wires the store, the event bus and the instrument set together.
type Service struct {
	store model.Store
	bus   *bus.Bus
	mset  *metrics.Set
}

// New creates an ingestion service. mset may be nil.
func New(store model.Store, b *bus.Bus, mset *metrics.Set) *Service {
	return &Service{store: store, bus: b, mset: mset}
}

// Store exposes the underlying record store for read-only consumers.
func (s *Service) Store() model.Store {
	return s.store
}

// CreateLog validates, persists and announces one traffic log.
func (s *Service) CreateLog(ctx context.Context, l *model.TrafficLog) (*model.TrafficLog, error) {
	if err := model.ValidateLog(l); err != nil {
		return nil, err
	}
	rec, err := s.store.CreateLog(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("failed to store log: %w", err)
	}
	s.mset.IncLogsIngested()
	s.mset.IncEventsPublished(string(model.EventLogCreated))
	s.bus.Publish(model.LogCreated(rec))
	return rec, nil
}

// CreateAlert validates, persists and announces one alert.
func (s *Service) CreateAlert(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	if err := model.ValidateAlert(a); err != nil {
		return nil, err
	}
	rec, err := s.store.CreateAlert(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}
	s.mset.IncAlertsRaised(rec.Type)
	s.mset.IncEventsPublished(string(model.EventAlertCreated))
	s.bus.Publish(model.AlertCreated(rec))
	return rec, nil
}

// ResolveAlert resolves an alert. Resolution is not announced on the bus;
// clients learn of it through the query API.
func (s *Service) ResolveAlert(ctx context.Context, id int64) (*model.Alert, error) {
	return s.store.ResolveAlert(ctx, id)
}

// CreateConnection validates and persists one connection record.
func (s *Service) CreateConnection(ctx context.Context, c *model.Connection) (*model.Connection, error) {
	if err := model.ValidateConnection(c); err != nil {
		return nil, err
	}
	rec, err := s.store.CreateConnection(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}
	return rec, nil
}

// UpdateConnection applies a partial update to a connection record.
func (s *Service) UpdateConnection(ctx context.Context, id int64, upd model.ConnectionUpdate) (*model.Connection, error) {
	return s.store.UpdateConnection(ctx, id, upd)
}

// CreateMetric persists one aggregation snapshot and announces it.
func (s *Service) CreateMetric(ctx context.Context, m *model.TrafficMetric) (*model.TrafficMetric, error) {
	rec, err := s.store.CreateMetric(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to store metric: %w", err)
	}
	s.mset.IncEventsPublished(string(model.EventMetricsSnapshot))
	s.bus.Publish(model.MetricsSnapshot(rec))
	return rec, nil
}

// Batch is a bulk submission of externally produced records.
type Batch struct {
	Logs        []*model.TrafficLog `json:"logs,omitempty"`
	Connections []*model.Connection `json:"connections,omitempty"`
	Alerts      []*model.Alert      `json:"alerts,omitempty"`
}

// ItemError reports one rejected batch item.
type ItemError struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult summarizes a best-effort batch ingestion.
type BatchResult struct {
	LogsCreated        int         `json:"logsCreated"`
	ConnectionsCreated int         `json:"connectionsCreated"`
	AlertsCreated      int         `json:"alertsCreated"`
	Errors             []ItemError `json:"errors,omitempty"`
}

// IngestBatch stores every valid item of a bulk submission. Batch semantics
// are best-effort, not all-or-nothing: a failing item is reported in the
// result and does not block the items around it.
func (s *Service) IngestBatch(ctx context.Context, batch Batch) BatchResult {
	var res BatchResult

	for i, l := range batch.Logs {
		if _, err := s.CreateLog(ctx, l); err != nil {
			res.Errors = append(res.Errors, ItemError{Kind: "log", Index: i, Error: err.Error()})
			continue
		}
		res.LogsCreated++
	}
	for i, c := range batch.Connections {
		if _, err := s.CreateConnection(ctx, c); err != nil {
			res.Errors = append(res.Errors, ItemError{Kind: "connection", Index: i, Error: err.Error()})
			continue
		}
		res.ConnectionsCreated++
	}
	for i, a := range batch.Alerts {
		if _, err := s.CreateAlert(ctx, a); err != nil {
			res.Errors = append(res.Errors, ItemError{Kind: "alert", Index: i, Error: err.Error()})
			continue
		}
		res.AlertsCreated++
	}
	return res
}
