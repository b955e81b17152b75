package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"netwatch/internal/model"
)

// runAnomalyDetection is the medium-interval engine task. Both rules are
// evaluated every cycle against the trailing window and re-fire for as long
// as their condition holds; there is deliberately no debounce.
func (e *Engine) runAnomalyDetection(ctx context.Context) {
	now := time.Now().UTC()
	logs, err := e.store.LogsInRange(ctx, now.Add(-e.anomalyWindow), now)
	if err != nil {
		e.mset.IncTaskFailures("anomaly")
		log.Printf("Anomaly detection: failed to read window: %v", err)
		return
	}

	e.detectRapidConnections(ctx, logs)
	e.detectHighBandwidth(ctx, logs)
}

// detectRapidConnections raises one alert per source address exceeding the
// per-window connection threshold.
func (e *Engine) detectRapidConnections(ctx context.Context, logs []*model.TrafficLog) {
	counts := make(map[string]int64)
	for _, l := range logs {
		counts[l.SourceIP]++
	}

	windowMinutes := int(e.anomalyWindow.Minutes())
	for source, count := range counts {
		if count <= e.rapidConnectionThreshold {
			continue
		}
		_, err := e.ingest.CreateAlert(ctx, &model.Alert{
			Severity: model.SeverityMedium,
			Type:     model.AlertTypeRapidConnections,
			Title:    "Rapid connections detected",
			Description: fmt.Sprintf("Source %s made %d connections in the last %d minutes",
				source, count, windowMinutes),
			SourceIP: source,
			Metadata: map[string]string{"count": strconv.FormatInt(count, 10)},
		})
		if err != nil {
			e.mset.IncTaskFailures("anomaly")
			log.Printf("Anomaly detection: failed to raise rapid-connections alert for %s: %v", source, err)
		}
	}
}

// detectHighBandwidth raises one alert when the summed window traffic
// strictly exceeds the byte threshold.
func (e *Engine) detectHighBandwidth(ctx context.Context, logs []*model.TrafficLog) {
	var total int64
	for _, l := range logs {
		total += l.DataSize
	}
	if total <= e.bandwidthThresholdBytes {
		return
	}

	mb := float64(total) / (1024 * 1024)
	_, err := e.ingest.CreateAlert(ctx, &model.Alert{
		Severity: model.SeverityMedium,
		Type:     model.AlertTypeHighBandwidth,
		Title:    "High bandwidth usage detected",
		Description: fmt.Sprintf("Traffic volume of %.2f MB in the last %d minutes",
			mb, int(e.anomalyWindow.Minutes())),
		Metadata: map[string]string{"totalBytes": strconv.FormatInt(total, 10)},
	})
	if err != nil {
		e.mset.IncTaskFailures("anomaly")
		log.Printf("Anomaly detection: failed to raise high-bandwidth alert: %v", err)
	}
}
