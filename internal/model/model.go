package model

import (
	"net"
	"time"
)

// RawPacket is a single captured packet as delivered by a capture source.
// The pipeline borrows Data for the duration of one Extract call and never
// retains it.
type RawPacket struct {
	Data      []byte
	Length    int
	Port      int
	Timestamp time.Time
}

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the metadata extracted from a single packet's headers.
// TCPFlags is the raw flag byte for TCP packets and 0 otherwise.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	TCPFlags  uint8
}
