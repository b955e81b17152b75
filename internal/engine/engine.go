// Package engine is the background aggregation process: it synthesizes
// traffic, derives anomaly alerts from a sliding window, and rolls the window
// up into metric snapshots, publishing everything it produces on the bus via
// the ingestion boundary.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/ingest"
	"netwatch/internal/metrics"
	"netwatch/internal/model"
)

// task is one periodic unit of work with a single-flight guard: a tick that
// arrives while the previous cycle is still running is skipped, not queued.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	inFlight atomic.Bool
}

// fire starts one cycle on its own goroutine. It returns false when the
// previous cycle is still in flight and the tick was skipped.
func (t *task) fire(ctx context.Context, wg *sync.WaitGroup) bool {
	if !t.inFlight.CompareAndSwap(false, true) {
		return false
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer t.inFlight.Store(false)
		t.run(ctx)
	}()
	return true
}

// Engine schedules the three periodic tasks. It holds no persisted state;
// every cycle recomputes from the record store, so a failed cycle leaves
// nothing to repair.
type Engine struct {
	ingest *ingest.Service
	store  model.Store
	mset   *metrics.Set

	synth *synthesizer

	anomalyWindow            time.Duration
	rapidConnectionThreshold int64
	bandwidthThresholdBytes  int64
	rollupWindow             time.Duration

	tasks []*task

	started atomic.Bool
	done    chan struct{}
	loopWg  sync.WaitGroup
	cycleWg sync.WaitGroup
}

// New builds an engine from configuration. The store handle is used for
// window reads; all writes go through the ingestion service so events are
// published uniformly.
func New(cfg config.EngineConfig, svc *ingest.Service, mset *metrics.Set) (*Engine, error) {
	synthInterval, err := time.ParseDuration(cfg.Synthesis.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid synthesis interval: %w", err)
	}
	anomalyInterval, err := time.ParseDuration(cfg.Anomaly.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid anomaly interval: %w", err)
	}
	anomalyWindow, err := time.ParseDuration(cfg.Anomaly.Window)
	if err != nil {
		return nil, fmt.Errorf("invalid anomaly window: %w", err)
	}
	rollupInterval, err := time.ParseDuration(cfg.Rollup.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid rollup interval: %w", err)
	}
	rollupWindow, err := time.ParseDuration(cfg.Rollup.Window)
	if err != nil {
		return nil, fmt.Errorf("invalid rollup window: %w", err)
	}

	e := &Engine{
		ingest:                   svc,
		store:                    svc.Store(),
		mset:                     mset,
		synth:                    newSynthesizer(cfg.Synthesis),
		anomalyWindow:            anomalyWindow,
		rapidConnectionThreshold: cfg.Anomaly.RapidConnectionThreshold,
		bandwidthThresholdBytes:  cfg.Anomaly.BandwidthThresholdBytes,
		rollupWindow:             rollupWindow,
	}
	e.tasks = []*task{
		{name: "synthesis", interval: synthInterval, run: e.runSynthesis},
		{name: "anomaly", interval: anomalyInterval, run: e.runAnomalyDetection},
		{name: "rollup", interval: rollupInterval, run: e.runMetricsRollup},
	}
	return e, nil
}

// Start launches one scheduling loop per task. Starting twice is a no-op;
// a stopped engine can be started again.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.done = make(chan struct{})
	for _, t := range e.tasks {
		e.loopWg.Add(1)
		go e.runLoop(t)
		log.Printf("Engine task %q started with interval %s", t.name, t.interval)
	}
}

func (e *Engine) runLoop(t *task) {
	defer e.loopWg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !t.fire(context.Background(), &e.cycleWg) {
				e.mset.IncTaskSkips(t.name)
				log.Printf("Engine task %q still in flight, skipping tick", t.name)
			}
		case <-e.done:
			return
		}
	}
}

// Stop ceases scheduling new cycles and waits for in-flight cycles to run to
// completion; it does not cancel them.
func (e *Engine) Stop() {
	if !e.started.CompareAndSwap(true, false) {
		return
	}
	log.Println("Stopping engine...")
	close(e.done)
	e.loopWg.Wait()
	e.cycleWg.Wait()
	log.Println("Engine stopped.")
}
