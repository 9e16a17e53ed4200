package model

import "fmt"

// FeatureRecord is the per-packet flow feature vector produced by the
// extraction pipeline. Field names and order match the wire schema consumed
// by downstream analytics; do not reorder or rename.
//
// Backward-direction counters are always 0: flows are tracked
// bidirectionally under one key, but per-direction attribution is not
// performed. Label is a placeholder for a downstream classifier.
type FeatureRecord struct {
	SrcIP                 string  `json:"src_ip"`
	DstIP                 string  `json:"dst_ip"`
	SrcPort               uint16  `json:"src_port"`
	DstPort               uint16  `json:"dst_port"`
	Protocol              uint8   `json:"protocol"`
	FlowDuration          float64 `json:"flow_duration"`
	TotalFwdPackets       uint64  `json:"total_fwd_packets"`
	TotalBwdPackets       uint64  `json:"total_bwd_packets"`
	TotalLengthFwdPackets uint64  `json:"total_length_fwd_packets"`
	TotalLengthBwdPackets uint64  `json:"total_length_bwd_packets"`
	PacketLengthMax       float64 `json:"packet_length_max"`
	PacketLengthMin       float64 `json:"packet_length_min"`
	PacketLengthMean      float64 `json:"packet_length_mean"`
	PacketLengthStd       float64 `json:"packet_length_std"`
	FlowBytesPerSecond    float64 `json:"flow_bytes_per_second"`
	FlowPacketsPerSecond  float64 `json:"flow_packets_per_second"`
	FlowIATMean           float64 `json:"flow_iat_mean"`
	FlowIATStd            float64 `json:"flow_iat_std"`
	FlowIATMax            float64 `json:"flow_iat_max"`
	FlowIATMin            float64 `json:"flow_iat_min"`
	TCPFlags              uint8   `json:"tcp_flags"`
	FINFlagCount          uint8   `json:"fin_flag_count"`
	SYNFlagCount          uint8   `json:"syn_flag_count"`
	RSTFlagCount          uint8   `json:"rst_flag_count"`
	PSHFlagCount          uint8   `json:"psh_flag_count"`
	ACKFlagCount          uint8   `json:"ack_flag_count"`
	URGFlagCount          uint8   `json:"urg_flag_count"`
	AvgPacketSize         float64 `json:"avg_packet_size"`
	PacketLengthVariance  float64 `json:"packet_length_variance"`
	Timestamp             int64   `json:"timestamp"`
	Label                 string  `json:"label"`
}

// PartitionKey returns the message key used to partition records in a sink,
// derived from the flow identity as observed from the first packet.
func (r *FeatureRecord) PartitionKey() string {
	return fmt.Sprintf("%s:%d-%s:%d", r.SrcIP, r.SrcPort, r.DstIP, r.DstPort)
}
