// Package natsbridge consumes externally produced record batches from a
// NATS subject and feeds them into the ingest service.
package natsbridge

import (
	"context"
	"encoding/json"
	"log"

	"netwatch/internal/config"
	"netwatch/internal/ingest"

	"github.com/nats-io/nats.go"
)

// Bridge subscribes to a NATS subject carrying JSON batch payloads.
type Bridge struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	ingest  *ingest.Service
}

// New connects to the NATS server named in cfg.
func New(cfg config.NATSBridgeConfig, svc *ingest.Service) (*Bridge, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Bridge{nc: nc, subject: cfg.Subject, ingest: svc}, nil
}

// Start subscribes to the configured subject. Each message is decoded and
// ingested on the NATS delivery goroutine; a malformed payload is logged
// and skipped without tearing the subscription down.
func (b *Bridge) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var batch ingest.Batch
		if err := json.Unmarshal(msg.Data, &batch); err != nil {
			log.Printf("natsbridge: dropping malformed batch: %v", err)
			return
		}
		b.handleBatch(ctx, batch)
	})
	if err != nil {
		return err
	}
	b.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for batches...", b.subject)
	return nil
}

func (b *Bridge) handleBatch(ctx context.Context, batch ingest.Batch) {
	res := b.ingest.IngestBatch(ctx, batch)
	if len(res.Errors) > 0 {
		log.Printf("natsbridge: batch partially rejected: %d logs, %d connections, %d alerts accepted, %d errors (first: %s %d: %s)",
			res.LogsCreated, res.ConnectionsCreated, res.AlertsCreated, len(res.Errors),
			res.Errors[0].Kind, res.Errors[0].Index, res.Errors[0].Error)
	}
}

// Close unsubscribes and closes the NATS connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
		log.Println("NATS connection closed.")
	}
}
