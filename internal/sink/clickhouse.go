// Package sink provides the engine-side record writers.
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_features (
    SrcIP                 String,
    DstIP                 String,
    SrcPort               UInt16,
    DstPort               UInt16,
    Protocol              UInt8,
    FlowDuration          Float64,
    TotalFwdPackets       UInt64,
    TotalBwdPackets       UInt64,
    TotalLengthFwdPackets UInt64,
    TotalLengthBwdPackets UInt64,
    PacketLengthMax       Float64,
    PacketLengthMin       Float64,
    PacketLengthMean      Float64,
    PacketLengthStd       Float64,
    FlowBytesPerSecond    Float64,
    FlowPacketsPerSecond  Float64,
    FlowIATMean           Float64,
    FlowIATStd            Float64,
    FlowIATMax            Float64,
    FlowIATMin            Float64,
    TCPFlags              UInt8,
    FINFlagCount          UInt8,
    SYNFlagCount          UInt8,
    RSTFlagCount          UInt8,
    PSHFlagCount          UInt8,
    ACKFlagCount          UInt8,
    URGFlagCount          UInt8,
    AvgPacketSize         Float64,
    PacketLengthVariance  Float64,
    Timestamp             DateTime64(6),
    Label                 String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SrcIP, DstIP, Timestamp);
`

// ClickHouseWriter buffers feature records and ships them to the
// flow_features table in batches on each flush.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	pending []*model.FeatureRecord
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration, logger *logrus.Logger) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("sink: connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("sink: create table: %w", err)
	}

	log := logger.WithField("component", "clickhouse-writer")
	log.WithField("host", cfg.Host).Info("connected to clickhouse, flow_features table ready")

	return &ClickHouseWriter{conn: conn, interval: interval, log: log}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	return conn, nil
}

// Append buffers one record for the next flush.
func (w *ClickHouseWriter) Append(rec *model.FeatureRecord) error {
	w.mu.Lock()
	w.pending = append(w.pending, rec)
	w.mu.Unlock()
	return nil
}

// Flush sends the buffered records as a single batch insert.
func (w *ClickHouseWriter) Flush() error {
	w.mu.Lock()
	records := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO flow_features")
	if err != nil {
		return fmt.Errorf("sink: prepare batch: %w", err)
	}

	for _, rec := range records {
		err = batch.Append(
			rec.SrcIP,
			rec.DstIP,
			rec.SrcPort,
			rec.DstPort,
			rec.Protocol,
			rec.FlowDuration,
			rec.TotalFwdPackets,
			rec.TotalBwdPackets,
			rec.TotalLengthFwdPackets,
			rec.TotalLengthBwdPackets,
			rec.PacketLengthMax,
			rec.PacketLengthMin,
			rec.PacketLengthMean,
			rec.PacketLengthStd,
			rec.FlowBytesPerSecond,
			rec.FlowPacketsPerSecond,
			rec.FlowIATMean,
			rec.FlowIATStd,
			rec.FlowIATMax,
			rec.FlowIATMin,
			rec.TCPFlags,
			rec.FINFlagCount,
			rec.SYNFlagCount,
			rec.RSTFlagCount,
			rec.PSHFlagCount,
			rec.ACKFlagCount,
			rec.URGFlagCount,
			rec.AvgPacketSize,
			rec.PacketLengthVariance,
			time.UnixMicro(rec.Timestamp),
			rec.Label,
		)
		if err != nil {
			return fmt.Errorf("sink: append record to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send batch: %w", err)
	}

	w.log.WithField("records", len(records)).Debug("flushed batch to clickhouse")
	return nil
}

// GetInterval returns the configured flush interval.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Close flushes outstanding records and closes the connection.
func (w *ClickHouseWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.log.WithError(err).Error("flush on close failed")
	}
	return w.conn.Close()
}
