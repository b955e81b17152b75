package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netwatch/internal/api"
	"netwatch/internal/bridge/natsbridge"
	"netwatch/internal/bridge/redisbridge"
	"netwatch/internal/bus"
	"netwatch/internal/config"
	"netwatch/internal/engine"
	"netwatch/internal/gateway"
	"netwatch/internal/ingest"
	"netwatch/internal/metrics"
	"netwatch/internal/model"
	"netwatch/internal/notification"
	"netwatch/internal/store/clickhousestore"
	"netwatch/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Println("Starting nw-server...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Printf("Config file %s not found, using defaults", *configPath)
		cfg = config.Default()
	}

	// 2. Open the record store
	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	// 3. Core plumbing: bus, prometheus registry, ingest service
	b := bus.New()
	reg := prometheus.NewRegistry()
	mset := metrics.New(reg)
	svc := ingest.New(store, b, mset)

	// 4. Realtime gateway
	hub := gateway.NewHub(store, mset)
	detachHub := hub.Attach(b)
	defer detachHub()

	// 5. Email notifications, enabled only when SMTP is configured
	if cfg.SMTP.Host != "" {
		notifier, err := notification.NewEmailNotifier(cfg.SMTP)
		if err != nil {
			log.Fatalf("Failed to configure email notifications: %v", err)
		}
		mailer := notification.NewAlertMailer(notifier, model.Severity(cfg.SMTP.MinSeverity))
		detachMailer := mailer.Attach(b)
		defer detachMailer()
		log.Printf("Email notifications enabled for severity >= %s", cfg.SMTP.MinSeverity)
	}

	// 6. Aggregation engine
	var eng *engine.Engine
	if cfg.Engine.Enabled {
		eng, err = engine.New(cfg.Engine, svc, mset)
		if err != nil {
			log.Fatalf("Failed to create engine: %v", err)
		}
		eng.Start()
	} else {
		log.Println("Aggregation engine disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 7. Optional ingestion bridges
	var natsBr *natsbridge.Bridge
	if cfg.Bridges.NATS.Enabled {
		natsBr, err = natsbridge.New(cfg.Bridges.NATS, svc)
		if err != nil {
			log.Fatalf("Failed to create NATS bridge: %v", err)
		}
		if err := natsBr.Start(ctx); err != nil {
			log.Fatalf("Failed to start NATS bridge: %v", err)
		}
	}
	var redisBr *redisbridge.Bridge
	if cfg.Bridges.Redis.Enabled {
		redisBr, err = redisbridge.New(cfg.Bridges.Redis, svc)
		if err != nil {
			log.Fatalf("Failed to create Redis bridge: %v", err)
		}
		redisBr.Start(ctx)
	}

	// 8. HTTP server
	handler := api.NewHandler(svc, hub)
	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: handler.Router(reg),
	}

	go func() {
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 9. Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if natsBr != nil {
		natsBr.Close()
	}
	if redisBr != nil {
		redisBr.Stop()
	}
	if eng != nil {
		eng.Stop()
	}
	hub.Shutdown()

	log.Println("Shutdown complete.")
}

// openStore builds the configured store backend and verifies connectivity.
func openStore(cfg config.StoreConfig) (model.Store, error) {
	switch cfg.Type {
	case "clickhouse":
		store, err := clickhousestore.New(cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Printf("Connected to ClickHouse at %s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)
		return store, nil
	case "memory", "":
		log.Println("Using in-memory store")
		return memory.New(cfg.Memory.MaxLogs), nil
	default:
		log.Fatalf("Unknown store type %q", cfg.Type)
		return nil, nil
	}
}
