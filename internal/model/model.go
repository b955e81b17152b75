package model

import (
	"fmt"
	"time"
)

// Action is the verdict recorded for an observed network event.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionBlock Action = "BLOCK"
	ActionDeny  Action = "DENY"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Well-known alert types raised by the aggregation engine and ingestion sources.
const (
	AlertTypeSuspiciousTraffic = "SUSPICIOUS_TRAFFIC"
	AlertTypeRapidConnections  = "RAPID_CONNECTIONS"
	AlertTypeHighBandwidth     = "HIGH_BANDWIDTH"
)

// TrafficLog is a single observed network event. Logs are created through the
// ingestion path and are immutable afterwards; the store assigns ID and
// Timestamp on create.
type TrafficLog struct {
	ID              int64             `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	SourceIP        string            `json:"sourceIP"`
	DestinationHost string            `json:"destinationHost,omitempty"`
	DestinationIP   string            `json:"destinationIP,omitempty"`
	DestinationPort int               `json:"destinationPort,omitempty"`
	Protocol        string            `json:"protocol"`
	Action          Action            `json:"action"`
	DataSize        int64             `json:"dataSize"`
	DurationMs      int64             `json:"durationMs,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Alert is a derived security or operational signal. The only mutation after
// create is resolution, which is a one-way transition.
type Alert struct {
	ID          int64             `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Severity    Severity          `json:"severity"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	SourceIP    string            `json:"sourceIP,omitempty"`
	Resolved    bool              `json:"resolved"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Connection is a tracked logical connection or listener. While active it is
// updated in place by ingestion sources; once closed its counters are frozen.
type Connection struct {
	ID              int64      `json:"id"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	SourceIP        string     `json:"sourceIP"`
	DestinationHost string     `json:"destinationHost"`
	DestinationIP   string     `json:"destinationIP,omitempty"`
	DestinationPort int        `json:"destinationPort,omitempty"`
	Protocol        string     `json:"protocol"`
	DataSize        int64      `json:"dataSize"`
	ConnectionCount int64      `json:"connectionCount"`
	IsActive        bool       `json:"isActive"`
	LastActivity    time.Time  `json:"lastActivity"`
}

// ConnectionUpdate carries a partial-field update for a Connection. Nil fields
// are left untouched.
type ConnectionUpdate struct {
	DataSize        *int64
	ConnectionCount *int64
	IsActive        *bool
	EndTime         *time.Time
	LastActivity    *time.Time
}

// TrafficMetric is one aggregation snapshot produced by the metrics rollup.
// TotalTraffic is a decimal byte count kept as a string to avoid precision
// loss in downstream consumers.
type TrafficMetric struct {
	ID                   int64            `json:"id"`
	Timestamp            time.Time        `json:"timestamp"`
	TotalTraffic         string           `json:"totalTraffic"`
	ActiveConnections    int64            `json:"activeConnections"`
	BlockedRequests      int64            `json:"blockedRequests"`
	ProtocolDistribution map[string]int64 `json:"protocolDistribution"`
	TopDestinations      map[string]int64 `json:"topDestinations"`
}

// ValidateAction reports whether a is one of the three accepted verdicts.
func ValidateAction(a Action) bool {
	switch a {
	case ActionAllow, ActionBlock, ActionDeny:
		return true
	}
	return false
}

// ValidateSeverity reports whether s is a known alert severity.
func ValidateSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityRank orders severities for threshold comparisons. Unknown
// severities rank below LOW.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ValidateLog checks the invariants a TrafficLog must satisfy before it is
// accepted by the store. Violations are rejected, never coerced.
func ValidateLog(l *TrafficLog) error {
	if l == nil {
		return fmt.Errorf("log record is nil")
	}
	if l.SourceIP == "" {
		return fmt.Errorf("log record missing source address")
	}
	if l.Protocol == "" {
		return fmt.Errorf("log record missing protocol")
	}
	if !ValidateAction(l.Action) {
		return fmt.Errorf("invalid action %q: must be one of ALLOW, BLOCK, DENY", l.Action)
	}
	if l.DataSize < 0 {
		return fmt.Errorf("invalid data size %d: must be >= 0", l.DataSize)
	}
	if l.DurationMs < 0 {
		return fmt.Errorf("invalid duration %d: must be >= 0", l.DurationMs)
	}
	return nil
}

// ValidateAlert checks the invariants an Alert must satisfy on create.
func ValidateAlert(a *Alert) error {
	if a == nil {
		return fmt.Errorf("alert record is nil")
	}
	if !ValidateSeverity(a.Severity) {
		return fmt.Errorf("invalid severity %q: must be one of LOW, MEDIUM, HIGH, CRITICAL", a.Severity)
	}
	if a.Type == "" {
		return fmt.Errorf("alert record missing type")
	}
	if a.Title == "" {
		return fmt.Errorf("alert record missing title")
	}
	return nil
}

// ValidateConnection checks the invariants a Connection must satisfy on create.
func ValidateConnection(c *Connection) error {
	if c == nil {
		return fmt.Errorf("connection record is nil")
	}
	if c.SourceIP == "" {
		return fmt.Errorf("connection record missing source address")
	}
	if c.Protocol == "" {
		return fmt.Errorf("connection record missing protocol")
	}
	if c.DataSize < 0 {
		return fmt.Errorf("invalid data size %d: must be >= 0", c.DataSize)
	}
	if c.ConnectionCount < 1 {
		return fmt.Errorf("invalid connection count %d: must be >= 1", c.ConnectionCount)
	}
	return nil
}
