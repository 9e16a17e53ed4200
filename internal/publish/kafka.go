// Package publish implements the feature record publishers available to the
// probe: Kafka, NATS and a fan-out combining them.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// KafkaPublisher delivers feature records to a Kafka topic with batching,
// compression and retry. Records are keyed by flow identity so one flow
// always lands on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *logrus.Entry

	reportInterval uint64
	published      atomic.Uint64
	errors         atomic.Uint64
}

// NewKafkaPublisher validates the configuration and creates the writer.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: topic is required")
	}

	batchTimeout, err := time.ParseDuration(cfg.BatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: invalid batch_timeout: %w", err)
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: batchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false,
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("kafka publisher: invalid compression type: %s", cfg.Compression)
	}

	if cfg.ClientID != "" {
		writerConfig.Dialer = &kafka.Dialer{
			ClientID:  cfg.ClientID,
			Timeout:   10 * time.Second,
			DualStack: true,
		}
	}

	p := &KafkaPublisher{
		writer:         kafka.NewWriter(writerConfig),
		log:            logger.WithField("component", "kafka-publisher"),
		reportInterval: 1000,
	}
	p.log.WithFields(logrus.Fields{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"batch_size":  cfg.BatchSize,
		"compression": cfg.Compression,
	}).Info("kafka publisher created")
	return p, nil
}

// Publish serializes the record to JSON and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, record *model.FeatureRecord) error {
	if record == nil {
		return fmt.Errorf("kafka publisher: nil record")
	}

	value, err := json.Marshal(record)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("kafka publisher: serialize record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(record.PartitionKey()),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("kafka publisher: write: %w", err)
	}

	if n := p.published.Add(1); n%p.reportInterval == 0 {
		p.log.WithField("delivered", n).Info("record delivery progress")
	}
	return nil
}

// Counters returns the number of records published and failed so far.
func (p *KafkaPublisher) Counters() (published, failed uint64) {
	return p.published.Load(), p.errors.Load()
}

// Close flushes pending batches and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka publisher: close: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"published": p.published.Load(),
		"errors":    p.errors.Load(),
	}).Info("kafka publisher closed")
	return nil
}
