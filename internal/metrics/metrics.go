// Package metrics holds the operational prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set groups every instrument the server registers. A nil *Set is valid and
// turns all recording into no-ops, so tests can pass nil freely.
type Set struct {
	LogsIngested    prometheus.Counter
	AlertsRaised    *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	OpenClients     prometheus.Gauge
	DroppedSends    prometheus.Counter
	TaskFailures    *prometheus.CounterVec
	TaskSkips       *prometheus.CounterVec
}

// New creates the instrument set and registers it on reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		LogsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_logs_ingested_total",
			Help: "Traffic log records accepted by the ingestion boundary.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_alerts_raised_total",
			Help: "Alert records created, by alert type.",
		}, []string{"type"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_events_published_total",
			Help: "Events published on the in-process bus, by event type.",
		}, []string{"event"}),
		OpenClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netwatch_gateway_open_clients",
			Help: "Currently open realtime gateway connections.",
		}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netwatch_gateway_dropped_sends_total",
			Help: "Broadcast sends abandoned because a client was slow or gone.",
		}),
		TaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_engine_task_failures_total",
			Help: "Aggregation engine cycles that logged at least one failure.",
		}, []string{"task"}),
		TaskSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netwatch_engine_task_skips_total",
			Help: "Ticks skipped because the previous cycle was still in flight.",
		}, []string{"task"}),
	}

	reg.MustRegister(
		s.LogsIngested, s.AlertsRaised, s.EventsPublished,
		s.OpenClients, s.DroppedSends, s.TaskFailures, s.TaskSkips,
	)
	return s
}

// IncLogsIngested records one accepted log.
func (s *Set) IncLogsIngested() {
	if s != nil {
		s.LogsIngested.Inc()
	}
}

// IncAlertsRaised records one created alert of the given type.
func (s *Set) IncAlertsRaised(alertType string) {
	if s != nil {
		s.AlertsRaised.WithLabelValues(alertType).Inc()
	}
}

// IncEventsPublished records one bus publish of the given event kind.
func (s *Set) IncEventsPublished(event string) {
	if s != nil {
		s.EventsPublished.WithLabelValues(event).Inc()
	}
}

// AddOpenClients moves the open-connection gauge by delta.
func (s *Set) AddOpenClients(delta float64) {
	if s != nil {
		s.OpenClients.Add(delta)
	}
}

// IncDroppedSends records one abandoned broadcast send.
func (s *Set) IncDroppedSends() {
	if s != nil {
		s.DroppedSends.Inc()
	}
}

// IncTaskFailures records a failed engine cycle for task.
func (s *Set) IncTaskFailures(task string) {
	if s != nil {
		s.TaskFailures.WithLabelValues(task).Inc()
	}
}

// IncTaskSkips records a skipped tick for task.
func (s *Set) IncTaskSkips(task string) {
	if s != nil {
		s.TaskSkips.WithLabelValues(task).Inc()
	}
}
