package model

// EventType identifies one of the three event kinds carried by the bus.
type EventType string

const (
	EventLogCreated      EventType = "log.created"
	EventAlertCreated    EventType = "alert.created"
	EventMetricsSnapshot EventType = "metrics.snapshot"
)

// Event is the tagged union published on the bus. Exactly one of the payload
// fields is non-nil, matching Type.
type Event struct {
	Type   EventType
	Log    *TrafficLog
	Alert  *Alert
	Metric *TrafficMetric
}

// LogCreated wraps a freshly persisted traffic log.
func LogCreated(l *TrafficLog) Event {
	return Event{Type: EventLogCreated, Log: l}
}

// AlertCreated wraps a freshly persisted alert.
func AlertCreated(a *Alert) Event {
	return Event{Type: EventAlertCreated, Alert: a}
}

// MetricsSnapshot wraps a freshly persisted aggregation snapshot.
func MetricsSnapshot(m *TrafficMetric) Event {
	return Event{Type: EventMetricsSnapshot, Metric: m}
}
