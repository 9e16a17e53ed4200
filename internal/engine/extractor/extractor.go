// Package extractor wires the header parsers, flow table and feature
// calculator into the per-packet extraction pipeline.
package extractor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/engine/features"
	"NetFlowMeter/internal/engine/flow"
	"NetFlowMeter/internal/engine/protocol"
	"NetFlowMeter/internal/model"
)

const (
	// DefaultFlowTimeout is how long a flow may sit idle before an
	// eviction sweep removes it.
	DefaultFlowTimeout = 600 * time.Second

	// DefaultMaxFlows is the table size above which Extract triggers an
	// opportunistic eviction sweep.
	DefaultMaxFlows = 1000
)

// ErrNotAnalyzable marks packets the pipeline cannot turn into a feature
// record: truncated headers, non-IPv4 traffic, malformed layers. Callers on
// a hot path count these and move on.
var ErrNotAnalyzable = errors.New("packet not analyzable")

// Config carries the tunables of the extraction pipeline.
type Config struct {
	FlowTimeout time.Duration
	MaxFlows    int
	NumShards   uint32
}

// Extractor owns the flow table and turns raw packets into feature records.
// One Extractor instance is safe for concurrent use; updates to the same
// flow serialize on its table shard.
type Extractor struct {
	table    *flow.Table
	timeout  time.Duration
	maxFlows int
	log      *logrus.Entry

	analyzed atomic.Uint64
	skipped  atomic.Uint64
	evicted  atomic.Uint64
}

// New creates an extractor. Zero config fields fall back to defaults.
func New(cfg Config, logger *logrus.Logger) *Extractor {
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = DefaultFlowTimeout
	}
	if cfg.MaxFlows <= 0 {
		cfg.MaxFlows = DefaultMaxFlows
	}

	e := &Extractor{
		table:    flow.NewTable(cfg.NumShards),
		timeout:  cfg.FlowTimeout,
		maxFlows: cfg.MaxFlows,
		log:      logger.WithField("component", "extractor"),
	}
	e.log.WithFields(logrus.Fields{
		"flow_timeout": cfg.FlowTimeout,
		"max_flows":    cfg.MaxFlows,
	}).Info("extractor created")
	return e
}

// Extract runs one packet through the pipeline and returns its feature
// record. Packets that cannot be analyzed return ErrNotAnalyzable; any
// unexpected internal failure is recovered, logged and returned as an
// error. The pipeline never panics outward and never aborts the stream.
func (e *Extractor) Extract(pkt *model.RawPacket) (rec *model.FeatureRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.skipped.Add(1)
			err = fmt.Errorf("extract failed: %v", r)
			e.log.WithField("error", err).Error("unexpected failure during extraction")
		}
	}()

	// Keep the table bounded before admitting new flows.
	if e.table.Len() > e.maxFlows {
		e.sweep()
	}

	eth, perr := protocol.ParseEthernet(pkt.Data)
	if perr != nil {
		e.skipped.Add(1)
		return nil, fmt.Errorf("%w: %v", ErrNotAnalyzable, perr)
	}
	if eth.EtherType != protocol.EtherTypeIPv4 {
		e.skipped.Add(1)
		return nil, fmt.Errorf("%w: ethertype 0x%04x", ErrNotAnalyzable, eth.EtherType)
	}

	ip, perr := protocol.ParseIPv4(eth.Payload)
	if perr != nil {
		e.skipped.Add(1)
		return nil, fmt.Errorf("%w: %v", ErrNotAnalyzable, perr)
	}

	length := pkt.Length
	if length == 0 {
		length = len(pkt.Data)
	}

	info := model.PacketInfo{
		Timestamp: pkt.Timestamp,
		Length:    length,
		FiveTuple: model.FiveTuple{
			SrcIP:    ip.SrcIP,
			DstIP:    ip.DstIP,
			Protocol: ip.Protocol,
		},
	}

	// Transport parse failures leave the ports zeroed; the packet still
	// counts toward its (degenerate) flow.
	switch ip.Protocol {
	case protocol.ProtocolTCP:
		if tcp, terr := protocol.ParseTCP(ip.Payload); terr == nil {
			info.FiveTuple.SrcPort = tcp.SrcPort
			info.FiveTuple.DstPort = tcp.DstPort
			info.TCPFlags = tcp.Flags
		}
	case protocol.ProtocolUDP:
		if udp, uerr := protocol.ParseUDP(ip.Payload); uerr == nil {
			info.FiveTuple.SrcPort = udp.SrcPort
			info.FiveTuple.DstPort = udp.DstPort
		}
	}

	arrival := pkt.Timestamp
	if arrival.IsZero() {
		arrival = time.Now()
	}

	key := flow.Key(info.FiveTuple)
	state := e.table.Upsert(key, &info, arrival)

	e.analyzed.Add(1)
	return features.Compute(state), nil
}

// sweep evicts idle flows and records the outcome.
func (e *Extractor) sweep() {
	n := e.table.EvictIdle(time.Now(), e.timeout)
	if n > 0 {
		e.evicted.Add(uint64(n))
		e.log.WithField("evicted", n).Debug("cleaned up expired flows")
	}
}

// FlowCount returns the number of flows currently tracked.
func (e *Extractor) FlowCount() int {
	return e.table.Len()
}

// Counters returns the number of packets analyzed, packets skipped and
// flows evicted since the extractor was created.
func (e *Extractor) Counters() (analyzed, skipped, evicted uint64) {
	return e.analyzed.Load(), e.skipped.Load(), e.evicted.Load()
}

// Close drains the flow table and logs final counters. The extractor must
// not be used after Close.
func (e *Extractor) Close() {
	drained := e.table.Drain()
	analyzed, skipped, evicted := e.Counters()
	e.log.WithFields(logrus.Fields{
		"flows_drained": len(drained),
		"analyzed":      analyzed,
		"skipped":       skipped,
		"evicted":       evicted,
	}).Info("extractor closed")
}
