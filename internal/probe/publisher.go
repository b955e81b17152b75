package probe

import (
	"encoding/json"
	"log"

	"netwatch/internal/config"
	"netwatch/internal/ingest"
	"netwatch/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher batches traffic logs and publishes them as JSON to the NATS
// subject the server-side bridge consumes.
type Publisher struct {
	nc        *nats.Conn
	subject   string
	batchSize int
	pending   []*model.TrafficLog
}

// NewPublisher connects to the NATS server named in cfg.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Publisher{nc: nc, subject: cfg.Subject, batchSize: batchSize}, nil
}

// Add queues a log for publication, flushing when the batch is full.
func (p *Publisher) Add(l *model.TrafficLog) error {
	p.pending = append(p.pending, l)
	if len(p.pending) >= p.batchSize {
		return p.Flush()
	}
	return nil
}

// Flush publishes the pending batch. A serialization or transport error
// leaves the batch queued for the next attempt.
func (p *Publisher) Flush() error {
	if len(p.pending) == 0 {
		return nil
	}

	data, err := json.Marshal(ingest.Batch{Logs: p.pending})
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return err
	}

	p.pending = p.pending[:0]
	return nil
}

// Close flushes any remainder and drains the NATS connection.
func (p *Publisher) Close() {
	if err := p.Flush(); err != nil {
		log.Printf("probe: failed to flush final batch: %v", err)
	}
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
