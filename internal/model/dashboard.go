package model

import (
	"context"
	"errors"
	"time"
)

// DashboardStats is the current dashboard aggregate: the latest rollup
// snapshot joined with the live unresolved-alert count. When no rollup has
// run yet every figure is zero-valued.
type DashboardStats struct {
	TotalTraffic         string           `json:"totalTraffic"`
	ActiveConnections    int64            `json:"activeConnections"`
	BlockedRequests      int64            `json:"blockedRequests"`
	AlertCount           int64            `json:"alertCount"`
	ProtocolDistribution map[string]int64 `json:"protocolDistribution"`
	TopDestinations      map[string]int64 `json:"topDestinations"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// BuildDashboardStats assembles the dashboard aggregate from the store. A
// missing metric snapshot is not an error; the stats degrade to zeros.
func BuildDashboardStats(ctx context.Context, s Store) (*DashboardStats, error) {
	stats := &DashboardStats{
		TotalTraffic:         "0",
		ProtocolDistribution: map[string]int64{},
		TopDestinations:      map[string]int64{},
	}

	metric, err := s.LatestMetric(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if metric != nil {
		stats.TotalTraffic = metric.TotalTraffic
		stats.ActiveConnections = metric.ActiveConnections
		stats.BlockedRequests = metric.BlockedRequests
		if metric.ProtocolDistribution != nil {
			stats.ProtocolDistribution = metric.ProtocolDistribution
		}
		if metric.TopDestinations != nil {
			stats.TopDestinations = metric.TopDestinations
		}
		stats.UpdatedAt = metric.Timestamp
	}

	unresolved, err := s.Alerts(ctx, true, 0)
	if err != nil {
		return nil, err
	}
	stats.AlertCount = int64(len(unresolved))

	return stats, nil
}
