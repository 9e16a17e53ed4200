package stream

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// Collector consumes feature records from NATS and feeds them into a
// Service for writing.
type Collector struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	service *Service
	input   chan<- *model.FeatureRecord

	url     string
	subject string
	log     *logrus.Entry

	received  atomic.Uint64
	malformed atomic.Uint64
}

// NewCollector builds the collector and its underlying service.
func NewCollector(cfg config.EngineConfig, writers []model.Writer, logger *logrus.Logger) *Collector {
	service := NewService(cfg, writers, logger)
	return &Collector{
		service: service,
		input:   service.InputChannel(),
		url:     cfg.NATSURL,
		subject: cfg.Subject,
		log:     logger.WithField("component", "collector"),
	}
}

// Start connects to NATS, starts the service, and subscribes to the
// feature subject.
func (c *Collector) Start() error {
	nc, err := nats.Connect(c.url)
	if err != nil {
		return fmt.Errorf("stream: connect to nats at %s: %w", c.url, err)
	}
	c.nc = nc

	c.service.Start()

	c.sub, err = c.nc.Subscribe(c.subject, c.handleMessage)
	if err != nil {
		c.nc.Close()
		return fmt.Errorf("stream: subscribe to %s: %w", c.subject, err)
	}

	c.log.WithFields(logrus.Fields{
		"url":     c.url,
		"subject": c.subject,
	}).Info("collector subscribed")
	return nil
}

// handleMessage decodes one record and hands it to the worker pool.
// Malformed payloads are dropped and counted.
func (c *Collector) handleMessage(msg *nats.Msg) {
	var rec model.FeatureRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		c.malformed.Add(1)
		c.log.WithError(err).Warn("dropping malformed record")
		return
	}
	c.received.Add(1)
	c.input <- &rec
}

// Counters reports how many records were received and how many payloads
// failed to decode.
func (c *Collector) Counters() (received, malformed uint64) {
	return c.received.Load(), c.malformed.Load()
}

// Stop unsubscribes, closes the NATS connection, then drains the service.
func (c *Collector) Stop() {
	c.log.Info("collector stopping")
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	if c.nc != nil {
		c.nc.Close()
	}
	c.service.Stop()
	c.log.WithFields(logrus.Fields{
		"received":  c.received.Load(),
		"malformed": c.malformed.Load(),
	}).Info("collector stopped")
}
