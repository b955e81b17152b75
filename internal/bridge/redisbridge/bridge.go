// Package redisbridge pulls externally queued security events from a Redis
// list and maps them into traffic logs and alerts.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/ingest"
	"netwatch/internal/model"

	redis "github.com/redis/go-redis/v9"
)

// externalEvent is the queue payload shape produced by the upstream
// security tooling.
type externalEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	SourceIP    string    `json:"source_ip"`
	Destination string    `json:"destination"`
	Port        int       `json:"port"`
	Protocol    string    `json:"protocol"`
	Action      string    `json:"action"`
	Bytes       int64     `json:"bytes"`
	Severity    string    `json:"severity"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
}

// Bridge drains a Redis list on a fixed interval.
type Bridge struct {
	client    *redis.Client
	key       string
	interval  time.Duration
	batchSize int
	ingest    *ingest.Service

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Bridge from cfg. The Redis connection is not dialed here;
// failures surface on the first pull and are retried on the next tick.
func New(cfg config.RedisBridgeConfig, svc *ingest.Service) (*Bridge, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid redis bridge interval: %w", err)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Bridge{
		client:    client,
		key:       cfg.Key,
		interval:  interval,
		batchSize: batchSize,
		ingest:    svc,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the pull loop.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
	log.Printf("redisbridge: pulling '%s' every %s", b.key, b.interval)
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.pull(ctx); err != nil {
				log.Printf("redisbridge: pull failed, retrying next tick: %v", err)
			}
		case <-b.done:
			return
		}
	}
}

// pull drains up to batchSize queued events and hands them to ingest.
func (b *Bridge) pull(ctx context.Context) error {
	var batch ingest.Batch
	for i := 0; i < b.batchSize; i++ {
		raw, err := b.client.LPop(ctx, b.key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return err
		}

		var ev externalEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Printf("redisbridge: dropping malformed event: %v", err)
			continue
		}
		appendEvent(&batch, ev)
	}

	if len(batch.Logs) == 0 && len(batch.Alerts) == 0 {
		return nil
	}

	res := b.ingest.IngestBatch(ctx, batch)
	if len(res.Errors) > 0 {
		log.Printf("redisbridge: %d of %d queued events rejected (first: %s)",
			len(res.Errors), len(batch.Logs)+len(batch.Alerts), res.Errors[0].Error)
	}
	return nil
}

// Stop halts the pull loop and closes the Redis connection.
func (b *Bridge) Stop() {
	close(b.done)
	b.wg.Wait()
	if err := b.client.Close(); err != nil {
		log.Printf("redisbridge: failed to close client: %v", err)
	}
}

// appendEvent maps one external event onto the batch. Every event becomes a
// log; HIGH and CRITICAL events additionally raise an alert.
func appendEvent(batch *ingest.Batch, ev externalEvent) {
	batch.Logs = append(batch.Logs, eventToLog(ev))
	if alert := eventToAlert(ev); alert != nil {
		batch.Alerts = append(batch.Alerts, alert)
	}
}

func eventToLog(ev externalEvent) *model.TrafficLog {
	action := model.Action(strings.ToUpper(ev.Action))
	if !model.ValidateAction(action) {
		action = model.ActionBlock
	}
	protocol := strings.ToUpper(ev.Protocol)
	if protocol == "" {
		protocol = "TCP"
	}

	l := &model.TrafficLog{
		Timestamp:       ev.Timestamp,
		SourceIP:        ev.SourceIP,
		DestinationHost: ev.Destination,
		DestinationPort: ev.Port,
		Protocol:        protocol,
		Action:          action,
		DataSize:        ev.Bytes,
		Metadata:        map[string]string{"origin": "redis-bridge"},
	}
	if ev.Category != "" {
		l.Metadata["category"] = ev.Category
	}
	return l
}

func eventToAlert(ev externalEvent) *model.Alert {
	severity := model.Severity(strings.ToUpper(ev.Severity))
	if !model.ValidateSeverity(severity) {
		return nil
	}
	if model.SeverityRank(severity) < model.SeverityRank(model.SeverityHigh) {
		return nil
	}

	title := ev.Category
	if title == "" {
		title = "External security event"
	}
	description := ev.Message
	if description == "" {
		description = fmt.Sprintf("External %s event from %s", severity, ev.SourceIP)
	}

	return &model.Alert{
		Timestamp:   ev.Timestamp,
		Severity:    severity,
		Type:        model.AlertTypeSuspiciousTraffic,
		Title:       title,
		Description: description,
		SourceIP:    ev.SourceIP,
		Metadata:    map[string]string{"origin": "redis-bridge"},
	}
}
