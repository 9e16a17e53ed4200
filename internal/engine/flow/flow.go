package flow

import (
	"time"
)

// State is the per-flow accumulator. Identity fields are fixed when the
// first packet of the flow is seen, from that packet's perspective, and
// never re-normalized afterward. All other fields advance on every packet
// attributed to the key.
//
// State is kept small and copyable on purpose: Table.Upsert hands callers a
// value copy so feature computation reads a consistent snapshot without
// holding the shard lock.
type State struct {
	Key      string
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8

	StartTime      time.Time
	LastPacketTime time.Time

	PacketCount uint64
	ByteCount   uint64

	Length RunningStats
	IAT    RunningStats

	// TCPFlagsUnion is the bitwise OR of every TCP flag byte seen on the
	// flow. Stays 0 for non-TCP flows.
	TCPFlagsUnion uint8
}
