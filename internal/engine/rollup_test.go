package engine

import (
	"context"
	"testing"

	"netwatch/internal/model"
)

func TestRollup_EmptyStore(t *testing.T) {
	e, b, store := newTestEngine(t, nil)
	ctx := context.Background()

	var snapshots int
	b.Subscribe(func(ev model.Event) {
		if ev.Type == model.EventMetricsSnapshot {
			snapshots++
		}
	})

	// 1. Rollup over zero records
	e.runMetricsRollup(ctx)

	// 2. Exactly one zero-valued snapshot is appended and announced
	m, err := store.LatestMetric(ctx)
	if err != nil {
		t.Fatalf("LatestMetric failed: %v", err)
	}
	if m.TotalTraffic != "0" {
		t.Errorf("expected totalTraffic \"0\", got %q", m.TotalTraffic)
	}
	if m.ActiveConnections != 0 || m.BlockedRequests != 0 {
		t.Errorf("expected zero counts, got active=%d blocked=%d", m.ActiveConnections, m.BlockedRequests)
	}
	if len(m.ProtocolDistribution) != 0 || len(m.TopDestinations) != 0 {
		t.Errorf("expected empty distribution maps, got %v / %v", m.ProtocolDistribution, m.TopDestinations)
	}
	if snapshots != 1 {
		t.Errorf("expected one metrics.snapshot event, got %d", snapshots)
	}
}

func TestRollup_ComputesWindowAggregates(t *testing.T) {
	e, _, store := newTestEngine(t, nil)
	ctx := context.Background()

	// 1. Seed logs: two HTTPS allows, one DNS allow, one TCP block; one log
	//    without a destination host must stay out of topDestinations.
	seed := []*model.TrafficLog{
		{SourceIP: "10.0.0.1", DestinationHost: "a.example.com", Protocol: "HTTPS", Action: model.ActionAllow, DataSize: 1000},
		{SourceIP: "10.0.0.1", DestinationHost: "a.example.com", Protocol: "HTTPS", Action: model.ActionAllow, DataSize: 2000},
		{SourceIP: "10.0.0.2", DestinationHost: "b.example.com", Protocol: "DNS", Action: model.ActionAllow, DataSize: 300},
		{SourceIP: "10.0.0.3", Protocol: "TCP", Action: model.ActionBlock, DataSize: 700},
	}
	for _, l := range seed {
		if _, err := e.ingest.CreateLog(ctx, l); err != nil {
			t.Fatalf("failed to seed log: %v", err)
		}
	}

	// 2. Two active connections and one closed
	for i := 0; i < 2; i++ {
		e.ingest.CreateConnection(ctx, &model.Connection{
			SourceIP: "10.0.0.1", DestinationHost: "a.example.com", Protocol: "HTTPS",
			ConnectionCount: 1, IsActive: true,
		})
	}
	closed, _ := e.ingest.CreateConnection(ctx, &model.Connection{
		SourceIP: "10.0.0.2", DestinationHost: "b.example.com", Protocol: "DNS",
		ConnectionCount: 1, IsActive: true,
	})
	inactive := false
	e.ingest.UpdateConnection(ctx, closed.ID, model.ConnectionUpdate{IsActive: &inactive})

	// 3. Roll up and verify the snapshot
	e.runMetricsRollup(ctx)

	m, err := store.LatestMetric(ctx)
	if err != nil {
		t.Fatalf("LatestMetric failed: %v", err)
	}
	if m.TotalTraffic != "4000" {
		t.Errorf("expected totalTraffic \"4000\", got %q", m.TotalTraffic)
	}
	if m.ActiveConnections != 2 {
		t.Errorf("expected 2 active connections, got %d", m.ActiveConnections)
	}
	if m.BlockedRequests != 1 {
		t.Errorf("expected 1 blocked request, got %d", m.BlockedRequests)
	}
	if m.ProtocolDistribution["HTTPS"] != 2 || m.ProtocolDistribution["DNS"] != 1 || m.ProtocolDistribution["TCP"] != 1 {
		t.Errorf("unexpected protocol distribution: %v", m.ProtocolDistribution)
	}
	if m.TopDestinations["a.example.com"] != 2 || m.TopDestinations["b.example.com"] != 1 {
		t.Errorf("unexpected top destinations: %v", m.TopDestinations)
	}
	if _, ok := m.TopDestinations[""]; ok {
		t.Error("logs without a destination host must not appear in topDestinations")
	}
}

func TestRollup_OneSnapshotPerCycle(t *testing.T) {
	e, _, store := newTestEngine(t, nil)
	ctx := context.Background()

	e.runMetricsRollup(ctx)
	e.runMetricsRollup(ctx)

	all, err := store.MetricsInRange(ctx, timeZero(), timeFarFuture())
	if err != nil {
		t.Fatalf("MetricsInRange failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected exactly one snapshot per cycle, got %d", len(all))
	}
}
