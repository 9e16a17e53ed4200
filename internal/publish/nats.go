package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// FlowKeyHeader carries the record's partition key on NATS messages so
// consumers can shard without decoding the payload.
const FlowKeyHeader = "Nfm-Flow-Key"

// NATSPublisher delivers feature records to a NATS subject as JSON.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	log     *logrus.Entry
}

// NewNATSPublisher connects to the NATS server.
func NewNATSPublisher(cfg config.NATSConfig, logger *logrus.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats publisher: connect %s: %w", cfg.URL, err)
	}

	log := logger.WithField("component", "nats-publisher")
	log.WithFields(logrus.Fields{"url": cfg.URL, "subject": cfg.Subject}).Info("connected to NATS server")
	return &NATSPublisher{nc: nc, subject: cfg.Subject, log: log}, nil
}

// Publish serializes the record to JSON and publishes it on the subject.
func (p *NATSPublisher) Publish(_ context.Context, record *model.FeatureRecord) error {
	if record == nil {
		return fmt.Errorf("nats publisher: nil record")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("nats publisher: serialize record: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{FlowKeyHeader: []string{record.PartitionKey()}},
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publisher: publish: %w", err)
	}
	return nil
}

// Close drains the connection so buffered messages flush before shutdown.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("nats publisher: drain: %w", err)
	}
	p.log.Info("NATS connection drained and closed")
	return nil
}
