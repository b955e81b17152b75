package model

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups and mutations when no record with
// the given identity exists.
var ErrNotFound = errors.New("record not found")

// ErrConnectionClosed is returned when an update attempts to mutate the
// counters of a connection that is no longer active.
var ErrConnectionClosed = errors.New("connection is closed")

// Store is the durable persistence capability for the four record kinds.
// Implementations are responsible for their own consistency under concurrent
// callers; the layers above it take no locks around store calls.
type Store interface {
	// CreateLog persists a validated traffic log, assigning identity and
	// capture timestamp. The returned record carries both.
	CreateLog(ctx context.Context, l *TrafficLog) (*TrafficLog, error)

	// LogsInRange returns logs whose timestamp falls in [from, to],
	// oldest first.
	LogsInRange(ctx context.Context, from, to time.Time) ([]*TrafficLog, error)

	// RecentLogs returns up to limit logs, newest first. limit <= 0 means
	// no cap; this holds for every limit parameter on this interface.
	RecentLogs(ctx context.Context, limit int) ([]*TrafficLog, error)

	// SearchLogs returns up to limit logs whose source or destination fields
	// contain the query substring, newest first.
	SearchLogs(ctx context.Context, query string, limit int) ([]*TrafficLog, error)

	// CreateAlert persists an alert, assigning identity and raise timestamp.
	CreateAlert(ctx context.Context, a *Alert) (*Alert, error)

	// Alerts returns alerts newest first, optionally restricted to
	// unresolved ones. limit <= 0 means no limit.
	Alerts(ctx context.Context, onlyUnresolved bool, limit int) ([]*Alert, error)

	// ResolveAlert marks an alert resolved and stamps resolvedAt. Resolving
	// an already-resolved alert is a no-op and returns the record unchanged.
	ResolveAlert(ctx context.Context, id int64) (*Alert, error)

	// CreateConnection persists a connection record.
	CreateConnection(ctx context.Context, c *Connection) (*Connection, error)

	// UpdateConnection applies a partial update. Counter mutations against a
	// closed connection fail with ErrConnectionClosed.
	UpdateConnection(ctx context.Context, id int64, upd ConnectionUpdate) (*Connection, error)

	// ActiveConnections returns all connections with isActive = true.
	ActiveConnections(ctx context.Context) ([]*Connection, error)

	// AllConnections returns every connection, closed ones included.
	AllConnections(ctx context.Context) ([]*Connection, error)

	// TopConnections returns up to n connections ranked by data size,
	// largest first.
	TopConnections(ctx context.Context, n int) ([]*Connection, error)

	// CreateMetric persists one aggregation snapshot.
	CreateMetric(ctx context.Context, m *TrafficMetric) (*TrafficMetric, error)

	// LatestMetric returns the most recent snapshot, or ErrNotFound when no
	// rollup has run yet.
	LatestMetric(ctx context.Context) (*TrafficMetric, error)

	// MetricsInRange returns snapshots in [from, to], oldest first.
	MetricsInRange(ctx context.Context, from, to time.Time) ([]*TrafficMetric, error)

	Ping(ctx context.Context) error
	Close() error
}
