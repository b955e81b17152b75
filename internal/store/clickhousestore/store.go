// Package clickhousestore implements the record store on ClickHouse.
package clickhousestore

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var createTableStatements = []string{
	`
CREATE TABLE IF NOT EXISTS network_logs (
    ID               Int64,
    Timestamp        DateTime64(3, 'UTC'),
    SourceIP         String,
    DestinationHost  String,
    DestinationIP    String,
    DestinationPort  Int32,
    Protocol         String,
    Action           String,
    DataSize         Int64,
    DurationMs       Int64,
    Metadata         Map(String, String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, ID);
`,
	`
CREATE TABLE IF NOT EXISTS alerts (
    ID          Int64,
    Timestamp   DateTime64(3, 'UTC'),
    Severity    String,
    Type        String,
    Title       String,
    Description String,
    SourceIP    String,
    Resolved    UInt8,
    ResolvedAt  Nullable(DateTime64(3, 'UTC')),
    Metadata    Map(String, String)
) ENGINE = MergeTree()
ORDER BY (Timestamp, ID);
`,
	`
CREATE TABLE IF NOT EXISTS connections (
    ID              Int64,
    StartTime       DateTime64(3, 'UTC'),
    EndTime         Nullable(DateTime64(3, 'UTC')),
    SourceIP        String,
    DestinationHost String,
    DestinationIP   String,
    DestinationPort Int32,
    Protocol        String,
    DataSize        Int64,
    ConnectionCount Int64,
    IsActive        UInt8,
    LastActivity    DateTime64(3, 'UTC')
) ENGINE = MergeTree()
ORDER BY (StartTime, ID);
`,
	`
CREATE TABLE IF NOT EXISTS traffic_metrics (
    ID                   Int64,
    Timestamp            DateTime64(3, 'UTC'),
    TotalTraffic         String,
    ActiveConnections    Int64,
    BlockedRequests      Int64,
    ProtocolDistribution Map(String, Int64),
    TopDestinations      Map(String, Int64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, ID);
`,
}

// Store implements model.Store on a ClickHouse connection. Record identity is
// a process-local sequence seeded from the wall clock, so IDs stay
// monotonically distinguishable across restarts.
type Store struct {
	conn   driver.Conn
	nextID atomic.Int64
}

// New connects to ClickHouse and ensures the four record tables exist.
func New(cfg config.ClickHouseConfig) (*Store, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range createTableStatements {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")

	s := &Store{conn: conn}
	s.nextID.Store(time.Now().UnixMilli() << 12)
	return s, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

func (s *Store) assignID() int64 {
	return s.nextID.Add(1)
}

// CreateLog inserts a traffic log row, assigning identity and timestamp.
func (s *Store) CreateLog(ctx context.Context, l *model.TrafficLog) (*model.TrafficLog, error) {
	if err := model.ValidateLog(l); err != nil {
		return nil, err
	}

	rec := *l
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO network_logs
		(ID, Timestamp, SourceIP, DestinationHost, DestinationIP, DestinationPort, Protocol, Action, DataSize, DurationMs, Metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.SourceIP, rec.DestinationHost, rec.DestinationIP,
		int32(rec.DestinationPort), rec.Protocol, string(rec.Action), rec.DataSize, rec.DurationMs, rec.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert log: %w", err)
	}
	return &rec, nil
}

const logColumns = `ID, Timestamp, SourceIP, DestinationHost, DestinationIP, DestinationPort, Protocol, Action, DataSize, DurationMs, Metadata`

func scanLogs(rows driver.Rows) ([]*model.TrafficLog, error) {
	var out []*model.TrafficLog
	for rows.Next() {
		var (
			rec    model.TrafficLog
			port   int32
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.SourceIP, &rec.DestinationHost,
			&rec.DestinationIP, &port, &rec.Protocol, &action, &rec.DataSize, &rec.DurationMs, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		rec.DestinationPort = int(port)
		rec.Action = model.Action(action)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// LogsInRange returns logs captured in [from, to], oldest first.
func (s *Store) LogsInRange(ctx context.Context, from, to time.Time) ([]*model.TrafficLog, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+logColumns+` FROM network_logs WHERE Timestamp >= ? AND Timestamp <= ? ORDER BY Timestamp ASC, ID ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// RecentLogs returns up to limit logs, newest first. limit <= 0 returns
// all logs.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]*model.TrafficLog, error) {
	q := `SELECT ` + logColumns + ` FROM network_logs ORDER BY Timestamp DESC, ID DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// SearchLogs returns up to limit logs matching the substring over source and
// destination fields, newest first.
func (s *Store) SearchLogs(ctx context.Context, query string, limit int) ([]*model.TrafficLog, error) {
	pattern := "%" + query + "%"
	q := `SELECT ` + logColumns + ` FROM network_logs
		 WHERE SourceIP ILIKE ? OR DestinationHost ILIKE ? OR DestinationIP ILIKE ?
		 ORDER BY Timestamp DESC, ID DESC`
	args := []interface{}{pattern, pattern, pattern}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// CreateAlert inserts an alert row, assigning identity and timestamp.
func (s *Store) CreateAlert(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	if err := model.ValidateAlert(a); err != nil {
		return nil, err
	}

	rec := *a
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	rec.Resolved = false
	rec.ResolvedAt = nil
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO alerts
		(ID, Timestamp, Severity, Type, Title, Description, SourceIP, Resolved, ResolvedAt, Metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		rec.ID, rec.Timestamp, string(rec.Severity), rec.Type, rec.Title, rec.Description, rec.SourceIP, rec.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	return &rec, nil
}

const alertColumns = `ID, Timestamp, Severity, Type, Title, Description, SourceIP, Resolved, ResolvedAt, Metadata`

func scanAlerts(rows driver.Rows) ([]*model.Alert, error) {
	var out []*model.Alert
	for rows.Next() {
		var (
			rec      model.Alert
			severity string
			resolved uint8
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &severity, &rec.Type, &rec.Title,
			&rec.Description, &rec.SourceIP, &resolved, &rec.ResolvedAt, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		rec.Severity = model.Severity(severity)
		rec.Resolved = resolved != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Alerts returns alerts newest first, optionally only unresolved ones.
func (s *Store) Alerts(ctx context.Context, onlyUnresolved bool, limit int) ([]*model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts`
	if onlyUnresolved {
		q += ` WHERE Resolved = 0`
	}
	q += ` ORDER BY Timestamp DESC, ID DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ResolveAlert marks an alert resolved via a ClickHouse mutation. The
// mutation is applied asynchronously by ClickHouse; the returned record
// reflects the requested state. Already-resolved alerts are returned as-is.
func (s *Store) ResolveAlert(ctx context.Context, id int64) (*model.Alert, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE ID = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up alert: %w", err)
	}
	defer rows.Close()

	found, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, model.ErrNotFound
	}
	rec := found[0]
	if rec.Resolved {
		return rec, nil
	}

	now := time.Now().UTC()
	err = s.conn.Exec(ctx,
		`ALTER TABLE alerts UPDATE Resolved = 1, ResolvedAt = ? WHERE ID = ? AND Resolved = 0`,
		now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	rec.Resolved = true
	rec.ResolvedAt = &now
	return rec, nil
}

// CreateConnection inserts a connection row.
func (s *Store) CreateConnection(ctx context.Context, c *model.Connection) (*model.Connection, error) {
	if err := model.ValidateConnection(c); err != nil {
		return nil, err
	}

	rec := *c
	rec.ID = s.assignID()
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now().UTC()
	}
	if rec.LastActivity.IsZero() {
		rec.LastActivity = rec.StartTime
	}

	active := uint8(0)
	if rec.IsActive {
		active = 1
	}
	err := s.conn.Exec(ctx, `
		INSERT INTO connections
		(ID, StartTime, EndTime, SourceIP, DestinationHost, DestinationIP, DestinationPort, Protocol, DataSize, ConnectionCount, IsActive, LastActivity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartTime, rec.EndTime, rec.SourceIP, rec.DestinationHost, rec.DestinationIP,
		int32(rec.DestinationPort), rec.Protocol, rec.DataSize, rec.ConnectionCount, active, rec.LastActivity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert connection: %w", err)
	}
	return &rec, nil
}

const connColumns = `ID, StartTime, EndTime, SourceIP, DestinationHost, DestinationIP, DestinationPort, Protocol, DataSize, ConnectionCount, IsActive, LastActivity`

func scanConnections(rows driver.Rows) ([]*model.Connection, error) {
	var out []*model.Connection
	for rows.Next() {
		var (
			rec    model.Connection
			port   int32
			active uint8
		)
		if err := rows.Scan(&rec.ID, &rec.StartTime, &rec.EndTime, &rec.SourceIP, &rec.DestinationHost,
			&rec.DestinationIP, &port, &rec.Protocol, &rec.DataSize, &rec.ConnectionCount, &active, &rec.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		rec.DestinationPort = int(port)
		rec.IsActive = active != 0
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// UpdateConnection applies a partial update via a ClickHouse mutation.
func (s *Store) UpdateConnection(ctx context.Context, id int64, upd model.ConnectionUpdate) (*model.Connection, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+connColumns+` FROM connections WHERE ID = ? LIMIT 1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up connection: %w", err)
	}
	defer rows.Close()

	found, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, model.ErrNotFound
	}
	rec := found[0]

	if !rec.IsActive && (upd.DataSize != nil || upd.ConnectionCount != nil) {
		return nil, model.ErrConnectionClosed
	}

	var (
		sets []string
		args []interface{}
	)
	if upd.DataSize != nil {
		sets = append(sets, "DataSize = ?")
		args = append(args, *upd.DataSize)
		rec.DataSize = *upd.DataSize
	}
	if upd.ConnectionCount != nil {
		sets = append(sets, "ConnectionCount = ?")
		args = append(args, *upd.ConnectionCount)
		rec.ConnectionCount = *upd.ConnectionCount
	}
	if upd.EndTime != nil {
		sets = append(sets, "EndTime = ?")
		args = append(args, *upd.EndTime)
		rec.EndTime = upd.EndTime
	}
	if upd.IsActive != nil {
		active := uint8(0)
		if *upd.IsActive {
			active = 1
		}
		sets = append(sets, "IsActive = ?")
		args = append(args, active)
		rec.IsActive = *upd.IsActive
	}
	if upd.LastActivity != nil {
		sets = append(sets, "LastActivity = ?")
		args = append(args, *upd.LastActivity)
		rec.LastActivity = *upd.LastActivity
	}
	if len(sets) == 0 {
		return rec, nil
	}

	q := "ALTER TABLE connections UPDATE "
	for i, set := range sets {
		if i > 0 {
			q += ", "
		}
		q += set
	}
	q += " WHERE ID = ?"
	args = append(args, id)

	if err := s.conn.Exec(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}
	return rec, nil
}

// ActiveConnections returns all connections with IsActive = 1.
func (s *Store) ActiveConnections(ctx context.Context) ([]*model.Connection, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+connColumns+` FROM connections WHERE IsActive = 1 ORDER BY StartTime ASC, ID ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// AllConnections returns every connection, closed ones included.
func (s *Store) AllConnections(ctx context.Context) ([]*model.Connection, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+connColumns+` FROM connections ORDER BY StartTime ASC, ID ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// TopConnections returns up to n connections ranked by data size.
func (s *Store) TopConnections(ctx context.Context, n int) ([]*model.Connection, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.conn.Query(ctx,
		`SELECT `+connColumns+` FROM connections ORDER BY DataSize DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top connections: %w", err)
	}
	defer rows.Close()
	return scanConnections(rows)
}

// CreateMetric inserts one aggregation snapshot.
func (s *Store) CreateMetric(ctx context.Context, m *model.TrafficMetric) (*model.TrafficMetric, error) {
	rec := *m
	rec.ID = s.assignID()
	rec.Timestamp = time.Now().UTC()
	if rec.ProtocolDistribution == nil {
		rec.ProtocolDistribution = map[string]int64{}
	}
	if rec.TopDestinations == nil {
		rec.TopDestinations = map[string]int64{}
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO traffic_metrics
		(ID, Timestamp, TotalTraffic, ActiveConnections, BlockedRequests, ProtocolDistribution, TopDestinations)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.TotalTraffic, rec.ActiveConnections, rec.BlockedRequests,
		rec.ProtocolDistribution, rec.TopDestinations,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert metric: %w", err)
	}
	return &rec, nil
}

const metricColumns = `ID, Timestamp, TotalTraffic, ActiveConnections, BlockedRequests, ProtocolDistribution, TopDestinations`

func scanMetrics(rows driver.Rows) ([]*model.TrafficMetric, error) {
	var out []*model.TrafficMetric
	for rows.Next() {
		var rec model.TrafficMetric
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TotalTraffic, &rec.ActiveConnections,
			&rec.BlockedRequests, &rec.ProtocolDistribution, &rec.TopDestinations); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// LatestMetric returns the most recent snapshot.
func (s *Store) LatestMetric(ctx context.Context) (*model.TrafficMetric, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+metricColumns+` FROM traffic_metrics ORDER BY Timestamp DESC, ID DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest metric: %w", err)
	}
	defer rows.Close()

	found, err := scanMetrics(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, model.ErrNotFound
	}
	return found[0], nil
}

// MetricsInRange returns snapshots computed in [from, to], oldest first.
func (s *Store) MetricsInRange(ctx context.Context, from, to time.Time) ([]*model.TrafficMetric, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+metricColumns+` FROM traffic_metrics WHERE Timestamp >= ? AND Timestamp <= ? ORDER BY Timestamp ASC, ID ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()
	return scanMetrics(rows)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
