// Package config loads the YAML configuration shared by the probe, engine
// and API binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProbeConfig configures the live capture agent.
type ProbeConfig struct {
	Interface      string `yaml:"interface"`
	SnapshotLen    int32  `yaml:"snapshot_len"`
	Promiscuous    bool   `yaml:"promiscuous"`
	BPFFilter      string `yaml:"bpf_filter"`
	ReportInterval int    `yaml:"report_interval"`
}

// ExtractorConfig configures the flow tracking engine.
type ExtractorConfig struct {
	FlowTimeout string `yaml:"flow_timeout"`
	MaxFlows    int    `yaml:"max_flows"`
	NumShards   uint32 `yaml:"num_shards"`
}

// KafkaConfig configures the Kafka feature record publisher.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	ClientID     string   `yaml:"client_id"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout string   `yaml:"batch_timeout"`
	Compression  string   `yaml:"compression"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

// NATSConfig configures the NATS feature record publisher and the engine
// side subscription.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// PublishersConfig groups the probe's record sinks.
type PublishersConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	NATS  NATSConfig  `yaml:"nats"`
}

// ArchiveConfig configures the optional raw packet archive.
type ArchiveConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	Encoding          string `yaml:"encoding"`
	NumWorkers        int    `yaml:"num_workers"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// MetricsConfig configures the probe's self-metrics endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ClickHouseConfig holds the connection settings for a ClickHouse sink.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NDJSONConfig holds the settings for a newline delimited JSON file sink.
type NDJSONConfig struct {
	Path string `yaml:"path"`
}

// WriterDef declares one record writer of the engine.
type WriterDef struct {
	Type          string           `yaml:"type"`
	Enabled       bool             `yaml:"enabled"`
	FlushInterval string           `yaml:"flush_interval"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
	NDJSON        NDJSONConfig     `yaml:"ndjson"`
}

// EngineConfig configures the record collector service.
type EngineConfig struct {
	NATSURL      string      `yaml:"nats_url"`
	Subject      string      `yaml:"subject"`
	NumWorkers   int         `yaml:"num_workers"`
	RecordBuffer int         `yaml:"record_buffer"`
	Writers      []WriterDef `yaml:"writers"`
}

// APIConfig configures the HTTP query service.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures log level, format and optional file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Probe      ProbeConfig      `yaml:"probe"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Publishers PublishersConfig `yaml:"publishers"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Engine     EngineConfig     `yaml:"engine"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoadConfig reads the configuration from a YAML file, applies defaults and
// returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Probe.SnapshotLen <= 0 {
		c.Probe.SnapshotLen = 1600
	}
	if c.Probe.ReportInterval <= 0 {
		c.Probe.ReportInterval = 1000
	}

	if c.Extractor.FlowTimeout == "" {
		c.Extractor.FlowTimeout = "10m"
	}
	if c.Extractor.MaxFlows <= 0 {
		c.Extractor.MaxFlows = 1000
	}
	if c.Extractor.NumShards == 0 {
		c.Extractor.NumShards = 64
	}

	if c.Publishers.Kafka.Topic == "" {
		c.Publishers.Kafka.Topic = "network-flows"
	}
	if c.Publishers.Kafka.BatchSize <= 0 {
		c.Publishers.Kafka.BatchSize = 100
	}
	if c.Publishers.Kafka.BatchTimeout == "" {
		c.Publishers.Kafka.BatchTimeout = "100ms"
	}
	if c.Publishers.Kafka.Compression == "" {
		c.Publishers.Kafka.Compression = "snappy"
	}
	if c.Publishers.Kafka.MaxAttempts <= 0 {
		c.Publishers.Kafka.MaxAttempts = 3
	}
	if c.Publishers.NATS.URL == "" {
		c.Publishers.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Publishers.NATS.Subject == "" {
		c.Publishers.NATS.Subject = "nfm.flows.features"
	}

	if c.Archive.Path == "" {
		c.Archive.Path = "./archive"
	}
	if c.Archive.Encoding == "" {
		c.Archive.Encoding = "pcap"
	}
	if c.Archive.NumWorkers <= 0 {
		c.Archive.NumWorkers = 1
	}
	if c.Archive.ChannelBufferSize <= 0 {
		c.Archive.ChannelBufferSize = 10000
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9101"
	}

	if c.Engine.NATSURL == "" {
		c.Engine.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Engine.Subject == "" {
		c.Engine.Subject = "nfm.flows.features"
	}
	if c.Engine.NumWorkers <= 0 {
		c.Engine.NumWorkers = 4
	}
	if c.Engine.RecordBuffer <= 0 {
		c.Engine.RecordBuffer = 4096
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 7
	}
}
