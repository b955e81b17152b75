package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MemoryStoreConfig tunes the in-memory store.
type MemoryStoreConfig struct {
	MaxLogs int `yaml:"max_logs"`
}

// ClickHouseConfig holds the connection settings for the ClickHouse store.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Type       string            `yaml:"type"` // "memory" or "clickhouse"
	Memory     MemoryStoreConfig `yaml:"memory"`
	ClickHouse ClickHouseConfig  `yaml:"clickhouse"`
}

// BusinessHours is the local-time window during which synthetic traffic
// volume is biased upward.
type BusinessHours struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// SynthesisConfig tunes the synthetic traffic task.
type SynthesisConfig struct {
	Interval              string        `yaml:"interval"`
	BusinessHours         BusinessHours `yaml:"business_hours"`
	SuspiciousProbability float64       `yaml:"suspicious_probability"`
}

// AnomalyConfig tunes the anomaly detection task.
type AnomalyConfig struct {
	Interval                string `yaml:"interval"`
	Window                  string `yaml:"window"`
	RapidConnectionThreshold int64  `yaml:"rapid_connection_threshold"`
	BandwidthThresholdBytes  int64  `yaml:"bandwidth_threshold_bytes"`
}

// RollupConfig tunes the metrics rollup task.
type RollupConfig struct {
	Interval string `yaml:"interval"`
	Window   string `yaml:"window"`
}

// EngineConfig holds the configuration for the aggregation engine.
type EngineConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Rollup    RollupConfig    `yaml:"rollup"`
}

// NATSBridgeConfig configures the push-batch ingestion bridge.
type NATSBridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RedisBridgeConfig configures the external log-store pull bridge.
type RedisBridgeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Key       string `yaml:"key"`
	Interval  string `yaml:"interval"`
	BatchSize int    `yaml:"batch_size"`
}

// BridgesConfig groups the optional external ingestion bridges.
type BridgesConfig struct {
	NATS  NATSBridgeConfig  `yaml:"nats"`
	Redis RedisBridgeConfig `yaml:"redis"`
}

// SMTPConfig holds the settings for the email notifier. An empty Host
// disables notifications.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	MinSeverity string `yaml:"min_severity"`
}

// ProbeConfig holds the capture probe settings.
type ProbeConfig struct {
	Interface string `yaml:"interface"`
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	BatchSize int    `yaml:"batch_size"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Bridges BridgesConfig `yaml:"bridges"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Probe   ProbeConfig   `yaml:"probe"`
}

// Default returns a configuration suitable for a local run against the
// in-memory store with the engine enabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Store: StoreConfig{
			Type:   "memory",
			Memory: MemoryStoreConfig{MaxLogs: 100000},
		},
		Engine: EngineConfig{
			Enabled: true,
			Synthesis: SynthesisConfig{
				Interval:              "5s",
				BusinessHours:         BusinessHours{StartHour: 9, EndHour: 18},
				SuspiciousProbability: 0.05,
			},
			Anomaly: AnomalyConfig{
				Interval:                 "30s",
				Window:                   "5m",
				RapidConnectionThreshold: 20,
				BandwidthThresholdBytes:  100 * 1024 * 1024,
			},
			Rollup: RollupConfig{
				Interval: "60s",
				Window:   "1h",
			},
		},
		Bridges: BridgesConfig{
			NATS: NATSBridgeConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "netwatch.ingest",
			},
			Redis: RedisBridgeConfig{
				Addr:      "127.0.0.1:6379",
				Key:       "netwatch:events",
				Interval:  "15s",
				BatchSize: 100,
			},
		},
		SMTP: SMTPConfig{MinSeverity: "HIGH"},
		Probe: ProbeConfig{
			NATSURL:   "nats://127.0.0.1:4222",
			Subject:   "netwatch.ingest",
			BatchSize: 50,
		},
	}
}

// LoadConfig reads the configuration from a YAML file, applying it on top of
// the defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}
