// Package query provides read access to the flow_features table for the
// HTTP API.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"NetFlowMeter/internal/config"
)

// SummaryRequest filters the summary aggregation. Nil time bounds mean
// unbounded; a nil protocol matches everything.
type SummaryRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Protocol  *uint8     `json:"protocol,omitempty"`
}

// SummaryResponse aggregates the latest per-flow counters. Records counts
// raw feature rows; FlowCount counts distinct flow identities.
type SummaryResponse struct {
	Records      uint64 `json:"records"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	FlowCount    uint64 `json:"flow_count"`
}

// TopFlowsRequest asks for the heaviest flows by bytes or packets.
type TopFlowsRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	OrderBy   string     `json:"order_by,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// FlowSummary is one flow identity with its latest counters.
type FlowSummary struct {
	SrcIP        string `json:"src_ip"`
	DstIP        string `json:"dst_ip"`
	SrcPort      uint16 `json:"src_port"`
	DstPort      uint16 `json:"dst_port"`
	Protocol     uint8  `json:"protocol"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	Records      uint64 `json:"records"`
}

// TopFlowsResponse holds the ranked flows.
type TopFlowsResponse struct {
	Flows []FlowSummary `json:"flows"`
}

// Querier defines the read interface used by the API handlers.
type Querier interface {
	Summary(ctx context.Context, req *SummaryRequest) (*SummaryResponse, error)
	TopFlows(ctx context.Context, req *TopFlowsRequest) (*TopFlowsResponse, error)
}

// clickhouseQuerier implements Querier against ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier connects to ClickHouse and returns a Querier.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("query: connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// Summary aggregates the latest counters per flow identity. Records are
// per-packet snapshots of running totals, so the newest row per flow wins.
func (q *clickhouseQuerier) Summary(ctx context.Context, req *SummaryRequest) (*SummaryResponse, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SUM(Records) AS Records,
			SUM(LatestBytes) AS TotalBytes,
			SUM(LatestPackets) AS TotalPackets,
			COUNT(*) AS FlowCount
		FROM (
			SELECT
				COUNT(*) AS Records,
				argMax(TotalLengthFwdPackets, Timestamp) AS LatestBytes,
				argMax(TotalFwdPackets, Timestamp) AS LatestPackets
			FROM flow_features
	`)

	whereClauses, args := timeFilters(req.StartTime, req.EndTime)
	if req.Protocol != nil {
		whereClauses = append(whereClauses, "Protocol = ?")
		args = append(args, *req.Protocol)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(`
			GROUP BY SrcIP, DstIP, SrcPort, DstPort, Protocol
		)
	`)

	var resp SummaryResponse
	row := q.conn.QueryRow(ctx, queryBuilder.String(), args...)
	if err := row.Scan(&resp.Records, &resp.TotalBytes, &resp.TotalPackets, &resp.FlowCount); err != nil {
		return nil, fmt.Errorf("query: scan summary: %w", err)
	}

	return &resp, nil
}

// TopFlows returns the top flows ranked by their latest byte or packet
// counters.
func (q *clickhouseQuerier) TopFlows(ctx context.Context, req *TopFlowsRequest) (*TopFlowsResponse, error) {
	// Only known columns may appear in ORDER BY.
	var orderColumn string
	switch req.OrderBy {
	case "", "bytes":
		orderColumn = "TotalBytes"
	case "packets":
		orderColumn = "TotalPackets"
	default:
		return nil, fmt.Errorf("query: unsupported order_by %q, use bytes or packets", req.OrderBy)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SrcIP, DstIP, SrcPort, DstPort, Protocol,
			argMax(TotalLengthFwdPackets, Timestamp) AS TotalBytes,
			argMax(TotalFwdPackets, Timestamp) AS TotalPackets,
			COUNT(*) AS Records
		FROM flow_features
	`)

	whereClauses, args := timeFilters(req.StartTime, req.EndTime)
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(`
		GROUP BY SrcIP, DstIP, SrcPort, DstPort, Protocol
	`)
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY %s DESC LIMIT ?", orderColumn))
	args = append(args, limit)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query: execute top flows: %w", err)
	}
	defer rows.Close()

	var resp TopFlowsResponse
	for rows.Next() {
		var flow FlowSummary
		if err := rows.Scan(
			&flow.SrcIP, &flow.DstIP, &flow.SrcPort, &flow.DstPort, &flow.Protocol,
			&flow.TotalBytes, &flow.TotalPackets, &flow.Records,
		); err != nil {
			return nil, fmt.Errorf("query: scan flow: %w", err)
		}
		resp.Flows = append(resp.Flows, flow)
	}

	return &resp, nil
}

func timeFilters(start, end *time.Time) ([]string, []interface{}) {
	var clauses []string
	args := []interface{}{}

	if start != nil {
		clauses = append(clauses, "Timestamp >= ?")
		args = append(args, *start)
	}
	if end != nil {
		clauses = append(clauses, "Timestamp <= ?")
		args = append(args, *end)
	}
	return clauses, args
}
