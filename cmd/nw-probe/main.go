package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/probe"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	captureWait       = pcap.BlockForever
)

const flushInterval = 2 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides config).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}
	if *iface != "" {
		cfg.Probe.Interface = *iface
	}
	if cfg.Probe.Interface == "" {
		log.Println("Error: no capture interface configured, pass -iface or set probe.interface")
		flag.Usage()
		os.Exit(1)
	}

	log.Printf("Starting nw-probe on interface: %s", cfg.Probe.Interface)

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	handle, err := pcap.OpenLive(cfg.Probe.Interface, snapshotLen, promiscuous, captureWait)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", cfg.Probe.Interface, err)
	}
	defer handle.Close()

	log.Println("Capture started. Publishing traffic logs to NATS...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		flush := time.NewTicker(flushInterval)
		defer flush.Stop()

		published := 0
		for {
			select {
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				l, err := probe.ParsePacket(packet, cfg.Probe.Interface)
				if err != nil {
					continue // skip non-IP traffic
				}
				if err := pub.Add(l); err != nil {
					log.Printf("Failed to publish batch: %v", err)
				}
				published++
				if published%1000 == 0 {
					log.Printf("%d packets published...", published)
				}
			case <-flush.C:
				// Ship partial batches so quiet links still deliver.
				if err := pub.Flush(); err != nil {
					log.Printf("Failed to flush batch: %v", err)
				}
			}
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
