package redisbridge

import (
	"testing"
	"time"

	"netwatch/internal/ingest"
	"netwatch/internal/model"
)

func TestEventToLog_Mapping(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ev := externalEvent{
		Timestamp:   ts,
		SourceIP:    "203.0.113.7",
		Destination: "cnc.example.net",
		Port:        8443,
		Protocol:    "tcp",
		Action:      "block",
		Bytes:       2048,
		Category:    "botnet",
	}

	l := eventToLog(ev)
	if l.SourceIP != "203.0.113.7" || l.DestinationHost != "cnc.example.net" {
		t.Errorf("addresses not carried over: %+v", l)
	}
	if l.Protocol != "TCP" || l.Action != model.ActionBlock {
		t.Errorf("protocol and action must be normalized upper-case: %q %q", l.Protocol, l.Action)
	}
	if !l.Timestamp.Equal(ts) || l.DataSize != 2048 {
		t.Errorf("timestamp or size lost: %+v", l)
	}
	if l.Metadata["origin"] != "redis-bridge" || l.Metadata["category"] != "botnet" {
		t.Errorf("metadata tags missing: %v", l.Metadata)
	}
}

func TestEventToLog_UnknownActionDefaultsToBlock(t *testing.T) {
	l := eventToLog(externalEvent{SourceIP: "10.0.0.1", Action: "quarantine"})
	if l.Action != model.ActionBlock {
		t.Errorf("unknown external action must map to BLOCK, got %q", l.Action)
	}
	if l.Protocol != "TCP" {
		t.Errorf("missing protocol must default to TCP, got %q", l.Protocol)
	}
}

func TestEventToAlert_SeverityGate(t *testing.T) {
	cases := []struct {
		severity string
		want     bool
	}{
		{"LOW", false},
		{"MEDIUM", false},
		{"HIGH", true},
		{"critical", true},
		{"bogus", false},
		{"", false},
	}

	for _, tc := range cases {
		alert := eventToAlert(externalEvent{SourceIP: "10.0.0.1", Severity: tc.severity})
		if got := alert != nil; got != tc.want {
			t.Errorf("severity %q: alert raised = %v, want %v", tc.severity, got, tc.want)
		}
	}
}

func TestEventToAlert_Content(t *testing.T) {
	alert := eventToAlert(externalEvent{
		SourceIP: "203.0.113.7",
		Severity: "CRITICAL",
		Category: "exfiltration",
		Message:  "outbound transfer to known bad host",
	})
	if alert == nil {
		t.Fatal("expected an alert for CRITICAL severity")
	}
	if alert.Severity != model.SeverityCritical || alert.Type != model.AlertTypeSuspiciousTraffic {
		t.Errorf("unexpected alert classification: %+v", alert)
	}
	if alert.Title != "exfiltration" || alert.Description != "outbound transfer to known bad host" {
		t.Errorf("category and message must become title and description: %+v", alert)
	}
}

func TestAppendEvent(t *testing.T) {
	var batch ingest.Batch

	appendEvent(&batch, externalEvent{SourceIP: "10.0.0.1", Severity: "LOW"})
	appendEvent(&batch, externalEvent{SourceIP: "10.0.0.2", Severity: "HIGH"})

	if len(batch.Logs) != 2 {
		t.Errorf("every event must become a log, got %d", len(batch.Logs))
	}
	if len(batch.Alerts) != 1 || batch.Alerts[0].SourceIP != "10.0.0.2" {
		t.Errorf("only the HIGH event may raise an alert, got %d", len(batch.Alerts))
	}
}
