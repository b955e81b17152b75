package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"netwatch/internal/bus"
	"netwatch/internal/config"
	"netwatch/internal/ingest"
	"netwatch/internal/model"
	"netwatch/internal/store/memory"
)

func newTestEngine(t *testing.T, mutate func(*config.EngineConfig)) (*Engine, *bus.Bus, model.Store) {
	t.Helper()

	store := memory.New(0)
	b := bus.New()
	cfg := config.Default().Engine
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg, ingest.New(store, b, nil), nil)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return e, b, store
}

func TestEngine_RejectsInvalidIntervals(t *testing.T) {
	store := memory.New(0)
	cfg := config.Default().Engine
	cfg.Anomaly.Window = "five minutes"

	if _, err := New(cfg, ingest.New(store, bus.New(), nil), nil); err == nil {
		t.Fatal("expected error for malformed window duration")
	}
}

func TestTask_SingleFlightGuard(t *testing.T) {
	// 1. A task whose cycle blocks until released
	release := make(chan struct{})
	running := make(chan struct{})
	tk := &task{name: "test", interval: time.Second, run: func(ctx context.Context) {
		close(running)
		<-release
	}}

	var wg sync.WaitGroup

	// 2. First fire starts the cycle
	if !tk.fire(context.Background(), &wg) {
		t.Fatal("first fire must start a cycle")
	}
	<-running

	// 3. A tick while in flight is skipped
	if tk.fire(context.Background(), &wg) {
		t.Fatal("overlapping fire must be skipped")
	}

	// 4. After completion the next tick runs again
	close(release)
	wg.Wait()
	tk.run = func(ctx context.Context) {}
	if !tk.fire(context.Background(), &wg) {
		t.Fatal("fire after completion must start a new cycle")
	}
	wg.Wait()
}

func TestEngine_StartStop(t *testing.T) {
	e, _, _ := newTestEngine(t, func(cfg *config.EngineConfig) {
		cfg.Synthesis.Interval = "10ms"
		cfg.Anomaly.Interval = "10ms"
		cfg.Rollup.Interval = "10ms"
	})

	e.Start()
	e.Start() // second Start must be a no-op
	time.Sleep(50 * time.Millisecond)
	e.Stop()
	e.Stop() // second Stop must be a no-op
}

func TestEngine_RestartAfterStop(t *testing.T) {
	e, _, store := newTestEngine(t, func(cfg *config.EngineConfig) {
		cfg.Synthesis.Interval = "10ms"
		cfg.Anomaly.Interval = "1h"
		cfg.Rollup.Interval = "1h"
	})
	ctx := context.Background()

	e.Start()
	e.Stop()

	logs, err := store.RecentLogs(ctx, 0)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	before := len(logs)

	// A restarted engine must schedule cycles again, not exit silently.
	e.Start()
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, err = store.RecentLogs(ctx, 0)
		if err != nil {
			t.Fatalf("RecentLogs failed: %v", err)
		}
		if len(logs) > before {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no synthesis cycle ran after restart")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSynthesizer_CycleCountBounds(t *testing.T) {
	s := newSynthesizer(config.SynthesisConfig{
		BusinessHours: config.BusinessHours{StartHour: 9, EndHour: 18},
	})

	inside := time.Date(2025, 3, 10, 11, 0, 0, 0, time.Local)
	outside := time.Date(2025, 3, 10, 3, 0, 0, 0, time.Local)

	for i := 0; i < 200; i++ {
		if n := s.cycleCount(inside); n < 2 || n > 6 {
			t.Fatalf("business-hours count out of range: %d", n)
		}
		if n := s.cycleCount(outside); n < 1 || n > 3 {
			t.Fatalf("off-hours count out of range: %d", n)
		}
	}
}

func TestSynthesis_ProducesValidTraffic(t *testing.T) {
	e, b, store := newTestEngine(t, func(cfg *config.EngineConfig) {
		cfg.Synthesis.SuspiciousProbability = 0 // deterministic: no block path
	})
	ctx := context.Background()

	var logEvents int
	b.Subscribe(func(ev model.Event) {
		if ev.Type == model.EventLogCreated {
			logEvents++
		}
	})

	e.runSynthesis(ctx)

	logs, err := store.RecentLogs(ctx, 0)
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("synthesis produced no logs")
	}
	for _, l := range logs {
		if l.Action != model.ActionAllow {
			t.Errorf("expected ALLOW traffic, got %s", l.Action)
		}
		if l.DataSize <= 0 || l.DestinationHost == "" || l.Protocol == "" {
			t.Errorf("implausible synthetic log: %+v", l)
		}
	}
	if logEvents != len(logs) {
		t.Errorf("every created log must publish an event: %d events for %d logs", logEvents, len(logs))
	}

	// Synthesis maintains a live connection population.
	conns, _ := store.ActiveConnections(ctx)
	if len(conns) == 0 {
		t.Error("synthesis created no connection records")
	}
}

func TestSynthesis_SuspiciousPathRaisesAlert(t *testing.T) {
	e, _, store := newTestEngine(t, func(cfg *config.EngineConfig) {
		cfg.Synthesis.SuspiciousProbability = 1 // force the block path
	})
	ctx := context.Background()

	e.runSynthesis(ctx)

	alerts, err := store.Alerts(ctx, true, 0)
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one suspicious-traffic alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != model.AlertTypeSuspiciousTraffic || a.Severity != model.SeverityHigh {
		t.Errorf("unexpected alert: type=%s severity=%s", a.Type, a.Severity)
	}

	var blocked int
	logs, _ := store.RecentLogs(ctx, 0)
	for _, l := range logs {
		if l.Action == model.ActionBlock {
			blocked++
		}
	}
	if blocked != 1 {
		t.Errorf("expected exactly one BLOCK record, got %d", blocked)
	}
}
