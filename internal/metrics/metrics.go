// Package metrics implements the probe's Prometheus self-metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsCapturedTotal counts packets delivered by the capture source.
	PacketsCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfm_packets_captured_total",
			Help: "Total number of packets captured",
		},
		[]string{"interface"},
	)

	// PacketsSkippedTotal counts packets the pipeline could not analyze.
	PacketsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfm_packets_skipped_total",
			Help: "Total number of packets skipped as not analyzable",
		},
		[]string{"interface"},
	)

	// RecordsPublishedTotal counts feature records handed to publishers.
	RecordsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfm_records_published_total",
			Help: "Total number of feature records published",
		},
		[]string{"sink"},
	)

	// PublishErrorsTotal counts failed publish attempts.
	PublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfm_publish_errors_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"sink"},
	)

	// ActiveFlows tracks the current size of the flow table.
	ActiveFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfm_active_flows",
			Help: "Current number of flows tracked in the flow table",
		},
	)

	// FlowsEvictedTotal counts flows removed by idle eviction sweeps.
	FlowsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfm_flows_evicted_total",
			Help: "Total number of flows evicted as idle",
		},
	)
)
