package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/model"
)

// destination is one entry of the synthetic traffic catalog. Weights skew the
// pick toward the common services.
type destination struct {
	host     string
	ip       string
	port     int
	protocol string
	weight   int
}

var destinations = []destination{
	{"www.google.com", "142.250.80.36", 443, "HTTPS", 18},
	{"cdn.cloudflare.net", "104.16.132.229", 443, "HTTPS", 14},
	{"api.github.com", "140.82.113.6", 443, "HTTPS", 10},
	{"registry.npmjs.org", "104.16.92.83", 443, "HTTPS", 8},
	{"updates.ubuntu.com", "91.189.91.81", 80, "HTTP", 6},
	{"dns.google", "8.8.8.8", 53, "DNS", 16},
	{"one.one.one.one", "1.1.1.1", 53, "DNS", 12},
	{"mail.internal", "10.10.0.25", 25, "TCP", 4},
	{"db.internal", "10.10.0.40", 5432, "TCP", 5},
	{"backup.internal", "10.10.0.60", 873, "TCP", 3},
	{"ntp.pool.org", "162.159.200.1", 123, "UDP", 4},
}

var suspiciousDestinations = []destination{
	{"update-check.xyz-cdn.top", "185.220.101.47", 8443, "HTTPS", 1},
	{"crypto-miner-pool.cc", "91.242.217.32", 3333, "TCP", 1},
	{"free-vpn-exit.ru", "194.87.139.15", 1080, "TCP", 1},
	{"data-exfil.onion.ly", "23.129.64.131", 443, "HTTPS", 1},
}

var sourcePool = []string{
	"192.168.1.10", "192.168.1.11", "192.168.1.15", "192.168.1.23",
	"192.168.1.42", "192.168.2.7", "192.168.2.19", "10.0.0.5",
	"10.0.0.12", "10.0.0.31", "10.0.1.8", "10.0.1.14",
}

// connState tracks one synthetic connection so updates can grow its counters
// monotonically, as the store invariant requires.
type connState struct {
	id       int64
	dataSize int64
	count    int64
}

// synthesizer produces plausible ALLOW traffic, the occasional BLOCK with a
// matching alert, and a small population of connection records.
type synthesizer struct {
	rng           *rand.Rand
	businessStart int
	businessEnd   int
	suspiciousP   float64

	// Keyed by source+destination host; only touched from the synthesis
	// task, which is single-flight.
	conns map[string]*connState
}

func newSynthesizer(cfg config.SynthesisConfig) *synthesizer {
	return &synthesizer{
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		businessStart: cfg.BusinessHours.StartHour,
		businessEnd:   cfg.BusinessHours.EndHour,
		suspiciousP:   cfg.SuspiciousProbability,
		conns:         make(map[string]*connState),
	}
}

// cycleCount decides how many logs to produce this cycle, biased upward
// inside the configured business-hours window.
func (s *synthesizer) cycleCount(now time.Time) int {
	h := now.Hour()
	if h >= s.businessStart && h < s.businessEnd {
		return 2 + s.rng.Intn(5) // 2..6
	}
	return 1 + s.rng.Intn(3) // 1..3
}

// pickDestination draws from the catalog by weight.
func (s *synthesizer) pickDestination() destination {
	total := 0
	for _, d := range destinations {
		total += d.weight
	}
	n := s.rng.Intn(total)
	for _, d := range destinations {
		n -= d.weight
		if n < 0 {
			return d
		}
	}
	return destinations[0]
}

// payloadSize draws a byte count weighted heavily toward small payloads.
func (s *synthesizer) payloadSize() int64 {
	switch r := s.rng.Float64(); {
	case r < 0.60:
		return int64(200 + s.rng.Intn(1800))
	case r < 0.90:
		return int64(2_048 + s.rng.Intn(30_000))
	case r < 0.99:
		return int64(32_768 + s.rng.Intn(500_000))
	default:
		return int64(524_288 + s.rng.Intn(4_000_000))
	}
}

// runSynthesis is the short-interval engine task. Store failures are logged
// and swallowed; the cycle produces whatever subset it managed.
func (e *Engine) runSynthesis(ctx context.Context) {
	now := time.Now()
	count := e.synth.cycleCount(now)

	for i := 0; i < count; i++ {
		dst := e.synth.pickDestination()
		src := sourcePool[e.synth.rng.Intn(len(sourcePool))]
		rec := &model.TrafficLog{
			SourceIP:        src,
			DestinationHost: dst.host,
			DestinationIP:   dst.ip,
			DestinationPort: dst.port,
			Protocol:        dst.protocol,
			Action:          model.ActionAllow,
			DataSize:        e.synth.payloadSize(),
			DurationMs:      int64(1 + e.synth.rng.Intn(1500)),
			Metadata:        map[string]string{"source": "synthetic"},
		}
		created, err := e.ingest.CreateLog(ctx, rec)
		if err != nil {
			e.mset.IncTaskFailures("synthesis")
			log.Printf("Synthesis: failed to create log: %v", err)
			continue
		}
		e.trackConnection(ctx, created)
	}

	if e.synth.rng.Float64() < e.synth.suspiciousP {
		e.synthesizeSuspicious(ctx)
	}
}

// trackConnection creates or grows the synthetic connection matching a log,
// so the rollup sees a live connection population.
func (e *Engine) trackConnection(ctx context.Context, l *model.TrafficLog) {
	key := l.SourceIP + "->" + l.DestinationHost
	now := time.Now().UTC()

	if st, ok := e.synth.conns[key]; ok {
		st.dataSize += l.DataSize
		st.count++
		if _, err := e.ingest.UpdateConnection(ctx, st.id, model.ConnectionUpdate{
			DataSize:        &st.dataSize,
			ConnectionCount: &st.count,
			LastActivity:    &now,
		}); err != nil {
			log.Printf("Synthesis: failed to update connection %d: %v", st.id, err)
		}
		return
	}

	created, err := e.ingest.CreateConnection(ctx, &model.Connection{
		SourceIP:        l.SourceIP,
		DestinationHost: l.DestinationHost,
		DestinationIP:   l.DestinationIP,
		DestinationPort: l.DestinationPort,
		Protocol:        l.Protocol,
		DataSize:        l.DataSize,
		ConnectionCount: 1,
		IsActive:        true,
	})
	if err != nil {
		log.Printf("Synthesis: failed to create connection: %v", err)
		return
	}
	e.synth.conns[key] = &connState{id: created.ID, dataSize: created.DataSize, count: 1}
}

// synthesizeSuspicious emits one BLOCK record against a suspicious
// destination and the corresponding HIGH alert.
func (e *Engine) synthesizeSuspicious(ctx context.Context) {
	dst := suspiciousDestinations[e.synth.rng.Intn(len(suspiciousDestinations))]
	src := sourcePool[e.synth.rng.Intn(len(sourcePool))]

	if _, err := e.ingest.CreateLog(ctx, &model.TrafficLog{
		SourceIP:        src,
		DestinationHost: dst.host,
		DestinationIP:   dst.ip,
		DestinationPort: dst.port,
		Protocol:        dst.protocol,
		Action:          model.ActionBlock,
		DataSize:        e.synth.payloadSize(),
		Metadata:        map[string]string{"source": "synthetic", "reason": "suspicious destination"},
	}); err != nil {
		e.mset.IncTaskFailures("synthesis")
		log.Printf("Synthesis: failed to create block log: %v", err)
		return
	}

	if _, err := e.ingest.CreateAlert(ctx, &model.Alert{
		Severity:    model.SeverityHigh,
		Type:        model.AlertTypeSuspiciousTraffic,
		Title:       "Suspicious traffic blocked",
		Description: fmt.Sprintf("Blocked connection from %s to %s:%d", src, dst.host, dst.port),
		SourceIP:    src,
		Metadata:    map[string]string{"destinationHost": dst.host},
	}); err != nil {
		e.mset.IncTaskFailures("synthesis")
		log.Printf("Synthesis: failed to create alert: %v", err)
	}
}
