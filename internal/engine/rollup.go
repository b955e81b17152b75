package engine

import (
	"context"
	"log"
	"strconv"
	"time"

	"netwatch/internal/model"
)

// runMetricsRollup is the long-interval engine task: it condenses the
// trailing window plus the live connection set into exactly one
// TrafficMetric snapshot. Partial reads degrade the snapshot rather than
// aborting it; a failed write drops this cycle's snapshot entirely.
func (e *Engine) runMetricsRollup(ctx context.Context) {
	now := time.Now().UTC()

	logs, err := e.store.LogsInRange(ctx, now.Add(-e.rollupWindow), now)
	if err != nil {
		e.mset.IncTaskFailures("rollup")
		log.Printf("Metrics rollup: failed to read window: %v", err)
		return
	}

	active, err := e.store.ActiveConnections(ctx)
	if err != nil {
		e.mset.IncTaskFailures("rollup")
		log.Printf("Metrics rollup: failed to read active connections: %v", err)
		active = nil
	}

	var (
		totalTraffic int64
		blocked      int64
		protocols    = make(map[string]int64)
		destinations = make(map[string]int64)
	)
	for _, l := range logs {
		totalTraffic += l.DataSize
		if l.Action == model.ActionBlock {
			blocked++
		}
		protocols[l.Protocol]++
		if l.DestinationHost != "" {
			destinations[l.DestinationHost]++
		}
	}

	snapshot := &model.TrafficMetric{
		TotalTraffic:         strconv.FormatInt(totalTraffic, 10),
		ActiveConnections:    int64(len(active)),
		BlockedRequests:      blocked,
		ProtocolDistribution: protocols,
		TopDestinations:      destinations,
	}

	if _, err := e.ingest.CreateMetric(ctx, snapshot); err != nil {
		e.mset.IncTaskFailures("rollup")
		log.Printf("Metrics rollup: failed to store snapshot: %v", err)
	}
}
