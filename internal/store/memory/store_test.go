package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"netwatch/internal/model"
)

func TestStore_CreateLogAssignsIdentity(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	// 1. Create two logs and check identity and timestamp assignment
	first, err := s.CreateLog(ctx, &model.TrafficLog{
		SourceIP: "10.0.0.1", Protocol: "HTTPS", Action: model.ActionAllow, DataSize: 512,
	})
	if err != nil {
		t.Fatalf("CreateLog failed: %v", err)
	}
	second, err := s.CreateLog(ctx, &model.TrafficLog{
		SourceIP: "10.0.0.2", Protocol: "DNS", Action: model.ActionAllow,
	})
	if err != nil {
		t.Fatalf("CreateLog failed: %v", err)
	}

	if first.ID == 0 || second.ID <= first.ID {
		t.Errorf("IDs must be assigned and increasing: got %d then %d", first.ID, second.ID)
	}
	if first.Timestamp.IsZero() {
		t.Error("Timestamp must be store-assigned")
	}
	if second.Timestamp.Before(first.Timestamp) {
		t.Error("timestamps must be non-decreasing in insertion order")
	}
}

func TestStore_CreateLogRejectsInvalid(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	cases := []struct {
		name string
		log  *model.TrafficLog
	}{
		{"bad action", &model.TrafficLog{SourceIP: "10.0.0.1", Protocol: "TCP", Action: "PERMIT"}},
		{"negative size", &model.TrafficLog{SourceIP: "10.0.0.1", Protocol: "TCP", Action: model.ActionAllow, DataSize: -1}},
		{"missing source", &model.TrafficLog{Protocol: "TCP", Action: model.ActionAllow}},
	}
	for _, tc := range cases {
		if _, err := s.CreateLog(ctx, tc.log); err == nil {
			t.Errorf("%s: expected validation error, got none", tc.name)
		}
	}
}

func TestStore_RecentLogsNewestFirst(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := s.CreateLog(ctx, &model.TrafficLog{
			SourceIP: "10.0.0.1", Protocol: "TCP", Action: model.ActionAllow,
		}); err != nil {
			t.Fatalf("CreateLog failed: %v", err)
		}
	}

	logs, err := s.RecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 10 {
		t.Fatalf("expected 10 logs, got %d", len(logs))
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].ID > logs[i-1].ID {
			t.Fatalf("logs not newest-first at index %d", i)
		}
	}

	// limit <= 0 means no cap.
	logs, err = s.RecentLogs(ctx, 0)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) != 15 {
		t.Fatalf("expected all 15 logs for limit 0, got %d", len(logs))
	}
}

func TestStore_SearchLogs(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.CreateLog(ctx, &model.TrafficLog{SourceIP: "10.0.0.5", Protocol: "TCP", Action: model.ActionAllow})
	s.CreateLog(ctx, &model.TrafficLog{SourceIP: "192.168.1.1", DestinationHost: "cdn.example.com", Protocol: "HTTPS", Action: model.ActionAllow})

	hits, err := s.SearchLogs(ctx, "example.com", 0)
	if err != nil {
		t.Fatalf("SearchLogs failed: %v", err)
	}
	if len(hits) != 1 || hits[0].DestinationHost != "cdn.example.com" {
		t.Fatalf("expected one destination match, got %d", len(hits))
	}

	hits, _ = s.SearchLogs(ctx, "10.0.0", 0)
	if len(hits) != 1 || hits[0].SourceIP != "10.0.0.5" {
		t.Fatalf("expected one source match, got %d", len(hits))
	}
}

func TestStore_LogRetentionBound(t *testing.T) {
	s := New(5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		s.CreateLog(ctx, &model.TrafficLog{SourceIP: "10.0.0.1", Protocol: "TCP", Action: model.ActionAllow})
	}

	logs, _ := s.RecentLogs(ctx, 0)
	if len(logs) != 5 {
		t.Fatalf("expected retention bound of 5, got %d logs", len(logs))
	}
	// The newest records survive the trim.
	if logs[0].ID != 12 {
		t.Errorf("expected newest log ID 12, got %d", logs[0].ID)
	}
}

func TestStore_ResolveAlertIdempotent(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	created, err := s.CreateAlert(ctx, &model.Alert{
		Severity: model.SeverityMedium, Type: "RAPID_CONNECTIONS", Title: "Rapid connections detected",
	})
	if err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}
	if created.Resolved || created.ResolvedAt != nil {
		t.Fatal("new alerts must start unresolved with no resolvedAt")
	}

	// 1. First resolve sets the flag and the timestamp
	first, err := s.ResolveAlert(ctx, created.ID)
	if err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}
	if !first.Resolved || first.ResolvedAt == nil {
		t.Fatal("resolve must set resolved and resolvedAt together")
	}

	// 2. Second resolve is a no-op: same state, same timestamp, no error
	second, err := s.ResolveAlert(ctx, created.ID)
	if err != nil {
		t.Fatalf("second ResolveAlert errored: %v", err)
	}
	if !second.Resolved {
		t.Fatal("resolved must never transition back to false")
	}
	if !second.ResolvedAt.Equal(*first.ResolvedAt) {
		t.Error("resolvedAt must not change on repeated resolve calls")
	}

	// 3. Unknown IDs are reported as not found
	if _, err := s.ResolveAlert(ctx, 99999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown alert, got %v", err)
	}
}

func TestStore_UnresolvedAlertFilter(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	a1, _ := s.CreateAlert(ctx, &model.Alert{Severity: model.SeverityLow, Type: "T", Title: "one"})
	s.CreateAlert(ctx, &model.Alert{Severity: model.SeverityHigh, Type: "T", Title: "two"})
	s.ResolveAlert(ctx, a1.ID)

	unresolved, err := s.Alerts(ctx, true, 0)
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].Title != "two" {
		t.Fatalf("expected only the unresolved alert, got %d records", len(unresolved))
	}
}

func TestStore_ConnectionLifecycle(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	conn, err := s.CreateConnection(ctx, &model.Connection{
		SourceIP: "10.0.0.9", DestinationHost: "db.internal", Protocol: "TCP",
		DataSize: 100, ConnectionCount: 1, IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	// 1. Partial update of an active connection
	size := int64(900)
	count := int64(3)
	updated, err := s.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{
		DataSize: &size, ConnectionCount: &count,
	})
	if err != nil {
		t.Fatalf("UpdateConnection failed: %v", err)
	}
	if updated.DataSize != 900 || updated.ConnectionCount != 3 {
		t.Errorf("partial update not applied: size=%d count=%d", updated.DataSize, updated.ConnectionCount)
	}
	if updated.DestinationHost != "db.internal" {
		t.Error("fields absent from the update must be untouched")
	}

	// 2. Close the connection
	inactive := false
	now := time.Now().UTC()
	if _, err := s.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{IsActive: &inactive, EndTime: &now}); err != nil {
		t.Fatalf("closing update failed: %v", err)
	}

	// 3. Counter mutation after close is rejected
	if _, err := s.UpdateConnection(ctx, conn.ID, model.ConnectionUpdate{DataSize: &size}); !errors.Is(err, model.ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}

	// 4. Closed connections drop out of the active listing
	active, _ := s.ActiveConnections(ctx)
	if len(active) != 0 {
		t.Errorf("expected no active connections, got %d", len(active))
	}
}

func TestStore_TopConnectionsRanking(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	sizes := []int64{500, 2000, 100, 900}
	for _, sz := range sizes {
		s.CreateConnection(ctx, &model.Connection{
			SourceIP: "10.0.0.1", DestinationHost: "h", Protocol: "TCP",
			DataSize: sz, ConnectionCount: 1, IsActive: true,
		})
	}

	top, err := s.TopConnections(ctx, 3)
	if err != nil {
		t.Fatalf("TopConnections failed: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 connections, got %d", len(top))
	}
	want := []int64{2000, 900, 500}
	for i, c := range top {
		if c.DataSize != want[i] {
			t.Errorf("rank %d: got size %d, want %d", i, c.DataSize, want[i])
		}
	}
}

func TestStore_LatestMetric(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if _, err := s.LatestMetric(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any rollup, got %v", err)
	}

	s.CreateMetric(ctx, &model.TrafficMetric{TotalTraffic: "100"})
	s.CreateMetric(ctx, &model.TrafficMetric{TotalTraffic: "250"})

	latest, err := s.LatestMetric(ctx)
	if err != nil {
		t.Fatalf("LatestMetric failed: %v", err)
	}
	if latest.TotalTraffic != "250" {
		t.Errorf("expected latest snapshot, got totalTraffic=%s", latest.TotalTraffic)
	}
}

func TestStore_LogsInRange(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	s.CreateLog(ctx, &model.TrafficLog{SourceIP: "10.0.0.1", Protocol: "TCP", Action: model.ActionAllow})
	after := time.Now().UTC().Add(time.Second)

	in, err := s.LogsInRange(ctx, before, after)
	if err != nil {
		t.Fatalf("LogsInRange failed: %v", err)
	}
	if len(in) != 1 {
		t.Fatalf("expected 1 log in range, got %d", len(in))
	}

	out, _ := s.LogsInRange(ctx, after, after.Add(time.Hour))
	if len(out) != 0 {
		t.Errorf("expected no logs outside range, got %d", len(out))
	}
}
