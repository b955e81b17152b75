// Package memory provides an in-memory record store. It backs local runs and
// tests; durable deployments use the ClickHouse store instead.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"netwatch/internal/model"
)

const defaultMaxLogs = 100000

// Store keeps all four record kinds in process memory behind a single
// RW-mutex. Identity is a monotonically increasing sequence shared by all
// record kinds, so IDs double as insertion order.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	maxLogs int

	logs        []*model.TrafficLog
	alerts      []*model.Alert
	connections map[int64]*model.Connection
	connOrder   []int64
	metrics     []*model.TrafficMetric
}

// New creates an empty store. maxLogs bounds log retention; once exceeded the
// oldest logs are trimmed. maxLogs <= 0 selects the default bound.
func New(maxLogs int) *Store {
	if maxLogs <= 0 {
		maxLogs = defaultMaxLogs
	}
	return &Store{
		maxLogs:     maxLogs,
		connections: make(map[int64]*model.Connection),
	}
}

func (s *Store) assignID() int64 {
	s.nextID++
	return s.nextID
}

// CreateLog persists a traffic log, assigning identity and timestamp.
func (s *Store) CreateLog(ctx context.Context, l *model.TrafficLog) (*model.TrafficLog, error) {
	if err := model.ValidateLog(l); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *l
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	s.logs = append(s.logs, &rec)

	// Retention is a store-internal concern; the core never deletes.
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}

	out := rec
	return &out, nil
}

// LogsInRange returns logs captured in [from, to], oldest first.
func (s *Store) LogsInRange(ctx context.Context, from, to time.Time) ([]*model.TrafficLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.TrafficLog
	for _, l := range s.logs {
		if l.Timestamp.Before(from) || l.Timestamp.After(to) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

// RecentLogs returns up to limit logs, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]*model.TrafficLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.TrafficLog, 0, n)
	for i := len(s.logs) - 1; i >= 0 && len(out) < n; i-- {
		cp := *s.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

// SearchLogs returns up to limit logs whose source or destination fields
// contain query, newest first. Matching is case-insensitive.
func (s *Store) SearchLogs(ctx context.Context, query string, limit int) ([]*model.TrafficLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []*model.TrafficLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if !logMatches(l, q) {
			continue
		}
		cp := *l
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func logMatches(l *model.TrafficLog, q string) bool {
	return strings.Contains(strings.ToLower(l.SourceIP), q) ||
		strings.Contains(strings.ToLower(l.DestinationHost), q) ||
		strings.Contains(strings.ToLower(l.DestinationIP), q)
}

// CreateAlert persists an alert, assigning identity and timestamp.
func (s *Store) CreateAlert(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	if err := model.ValidateAlert(a); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *a
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	rec.Resolved = false
	rec.ResolvedAt = nil
	s.alerts = append(s.alerts, &rec)

	out := rec
	return &out, nil
}

// Alerts returns alerts newest first, optionally only unresolved ones.
func (s *Store) Alerts(ctx context.Context, onlyUnresolved bool, limit int) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if onlyUnresolved && a.Resolved {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ResolveAlert resolves an alert. Resolving an already-resolved alert leaves
// resolvedAt untouched and returns the record without error.
func (s *Store) ResolveAlert(ctx context.Context, id int64) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID != id {
			continue
		}
		if !a.Resolved {
			now := time.Now().UTC()
			a.Resolved = true
			a.ResolvedAt = &now
		}
		cp := *a
		return &cp, nil
	}
	return nil, model.ErrNotFound
}

// CreateConnection persists a connection record.
func (s *Store) CreateConnection(ctx context.Context, c *model.Connection) (*model.Connection, error) {
	if err := model.ValidateConnection(c); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *c
	rec.ID = s.assignID()
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now().UTC()
	}
	if rec.LastActivity.IsZero() {
		rec.LastActivity = rec.StartTime
	}
	s.connections[rec.ID] = &rec
	s.connOrder = append(s.connOrder, rec.ID)

	out := rec
	return &out, nil
}

// UpdateConnection applies a partial-field update. Counter mutations against
// a closed connection fail with ErrConnectionClosed.
func (s *Store) UpdateConnection(ctx context.Context, id int64, upd model.ConnectionUpdate) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	if !c.IsActive && (upd.DataSize != nil || upd.ConnectionCount != nil) {
		return nil, model.ErrConnectionClosed
	}

	if upd.DataSize != nil {
		c.DataSize = *upd.DataSize
	}
	if upd.ConnectionCount != nil {
		c.ConnectionCount = *upd.ConnectionCount
	}
	if upd.EndTime != nil {
		c.EndTime = upd.EndTime
	}
	if upd.IsActive != nil {
		c.IsActive = *upd.IsActive
	}
	if upd.LastActivity != nil {
		c.LastActivity = *upd.LastActivity
	}

	cp := *c
	return &cp, nil
}

// ActiveConnections returns all active connections in creation order.
func (s *Store) ActiveConnections(ctx context.Context) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Connection
	for _, id := range s.connOrder {
		c := s.connections[id]
		if c == nil || !c.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// AllConnections returns every connection, closed ones included, in
// creation order.
func (s *Store) AllConnections(ctx context.Context) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Connection, 0, len(s.connOrder))
	for _, id := range s.connOrder {
		if c := s.connections[id]; c != nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TopConnections returns up to n connections ranked by data size, largest
// first.
func (s *Store) TopConnections(ctx context.Context, n int) ([]*model.Connection, error) {
	s.mu.RLock()
	all := make([]*model.Connection, 0, len(s.connections))
	for _, id := range s.connOrder {
		if c := s.connections[id]; c != nil {
			cp := *c
			all = append(all, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].DataSize > all[j].DataSize
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// CreateMetric persists one aggregation snapshot.
func (s *Store) CreateMetric(ctx context.Context, m *model.TrafficMetric) (*model.TrafficMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *m
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	s.metrics = append(s.metrics, &rec)

	out := rec
	return &out, nil
}

// LatestMetric returns the most recent snapshot.
func (s *Store) LatestMetric(ctx context.Context) (*model.TrafficMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.metrics) == 0 {
		return nil, model.ErrNotFound
	}
	cp := *s.metrics[len(s.metrics)-1]
	return &cp, nil
}

// MetricsInRange returns snapshots computed in [from, to], oldest first.
func (s *Store) MetricsInRange(ctx context.Context, from, to time.Time) ([]*model.TrafficMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.TrafficMetric
	for _, m := range s.metrics {
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// Ping reports the store as reachable; the memory store always is.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close releases nothing; present to satisfy the Store interface.
func (s *Store) Close() error { return nil }
