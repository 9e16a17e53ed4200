package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// --- API Request Structs ---
type summaryRequest struct {
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Protocol  *uint8 `json:"protocol,omitempty"`
}

type topFlowsRequest struct {
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	OrderBy   string `json:"order_by,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// --- Main Function ---
func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	queryKind := flag.String("query", "summary", "Query kind: 'summary' or 'top'.")
	apiURL := flag.String("url", "http://localhost:8080", "Base URL of the nfm-api server.")
	endTimeStr := flag.String("end", "", "End time in RFC3339 format (e.g., 2025-09-12T15:10:00Z). Empty means unbounded.")
	startTimeStr := flag.String("start", "", "Start time in RFC3339 format. Empty means unbounded.")
	orderBy := flag.String("order", "bytes", "Ranking for 'top': 'bytes' or 'packets'.")
	limit := flag.Int("limit", 10, "Row limit for 'top'.")

	chAddr := flag.String("ch-addr", "localhost:9000", "ClickHouse address for direct mode.")
	chDatabase := flag.String("ch-db", "default", "ClickHouse database for direct mode.")
	chUser := flag.String("ch-user", "default", "ClickHouse username for direct mode.")
	chPassword := flag.String("ch-pass", "", "ClickHouse password for direct mode.")

	flag.Parse()

	log.Printf("Running '%s' query in '%s' mode.", *queryKind, *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiURL, *queryKind, *startTimeStr, *endTimeStr, *orderBy, *limit)
	case "direct":
		directQueryClickHouse(*chAddr, *chDatabase, *chUser, *chPassword, *queryKind, *startTimeStr, *endTimeStr, *orderBy, *limit)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

// --- API Query Logic ---
func queryViaAPI(baseURL, queryKind, startTime, endTime, orderBy string, limit int) {
	var endpoint string
	var reqBody interface{}

	switch queryKind {
	case "summary":
		endpoint = baseURL + "/api/v1/flows/summary"
		reqBody = summaryRequest{StartTime: startTime, EndTime: endTime}
	case "top":
		endpoint = baseURL + "/api/v1/flows/top"
		reqBody = topFlowsRequest{StartTime: startTime, EndTime: endTime, OrderBy: orderBy, Limit: limit}
	default:
		log.Fatalf("Invalid query kind: %s. Use 'summary' or 'top'.", queryKind)
	}

	jsonReqBody, err := json.Marshal(reqBody)
	if err != nil {
		log.Fatalf("Error marshalling request body: %v", err)
	}

	log.Printf("Sending request to %s with body:\n%s\n", endpoint, string(jsonReqBody))

	resp, err := http.Post(endpoint, "application/json", bytes.NewBuffer(jsonReqBody))
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

// --- Direct ClickHouse Query Logic ---
func directQueryClickHouse(addr, database, username, password, queryKind, startTimeStr, endTimeStr, orderBy string, limit int) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	log.Println("Successfully connected to ClickHouse.")

	whereClauses, args := buildTimeFilters(startTimeStr, endTimeStr)

	switch queryKind {
	case "summary":
		directSummary(conn, whereClauses, args)
	case "top":
		directTopFlows(conn, whereClauses, args, orderBy, limit)
	default:
		log.Fatalf("Invalid query kind: %s. Use 'summary' or 'top'.", queryKind)
	}
}

func buildTimeFilters(startTimeStr, endTimeStr string) ([]string, []interface{}) {
	var whereClauses []string
	args := []interface{}{}

	if startTimeStr != "" {
		startTime, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			log.Fatalf("Invalid start time format: %v", err)
		}
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, startTime)
	}
	if endTimeStr != "" {
		endTime, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			log.Fatalf("Invalid end time format: %v", err)
		}
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, endTime)
	}
	return whereClauses, args
}

func directSummary(conn clickhouse.Conn, whereClauses []string, args []interface{}) {
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
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(`
			GROUP BY SrcIP, DstIP, SrcPort, DstPort, Protocol
		)
	`)

	var records, totalBytes, totalPackets, flowCount uint64
	row := conn.QueryRow(context.Background(), queryBuilder.String(), args...)
	if err := row.Scan(&records, &totalBytes, &totalPackets, &flowCount); err != nil {
		log.Fatalf("Error scanning summary row: %v", err)
	}

	log.Println("--- Summary (Direct) ---")
	fmt.Printf("Records:      %d\n", records)
	fmt.Printf("TotalBytes:   %d\n", totalBytes)
	fmt.Printf("TotalPackets: %d\n", totalPackets)
	fmt.Printf("FlowCount:    %d\n", flowCount)
}

func directTopFlows(conn clickhouse.Conn, whereClauses []string, args []interface{}, orderBy string, limit int) {
	var orderColumn string
	switch orderBy {
	case "bytes":
		orderColumn = "TotalBytes"
	case "packets":
		orderColumn = "TotalPackets"
	default:
		log.Fatalf("Invalid order: %s. Use 'bytes' or 'packets'.", orderBy)
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SrcIP, DstIP, SrcPort, DstPort, Protocol,
			argMax(TotalLengthFwdPackets, Timestamp) AS TotalBytes,
			argMax(TotalFwdPackets, Timestamp) AS TotalPackets
		FROM flow_features
	`)
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(`
		GROUP BY SrcIP, DstIP, SrcPort, DstPort, Protocol
	`)
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY %s DESC LIMIT ?", orderColumn))
	args = append(args, limit)

	rows, err := conn.Query(context.Background(), queryBuilder.String(), args...)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	log.Println("--- Top Flows (Direct) ---")

	var foundResult bool
	for rows.Next() {
		foundResult = true
		var (
			srcIP, dstIP     string
			srcPort, dstPort uint16
			protocol         uint8
			totalBytes       uint64
			totalPackets     uint64
		)
		if err := rows.Scan(&srcIP, &dstIP, &srcPort, &dstPort, &protocol, &totalBytes, &totalPackets); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("%s:%d -> %s:%d proto=%d bytes=%d packets=%d\n",
			srcIP, srcPort, dstIP, dstPort, protocol, totalBytes, totalPackets)
	}

	if !foundResult {
		log.Println("No data found for the specified criteria.")
	}
	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
