// Package protocol contains the L2-L4 header parsers for the extraction
// pipeline. Parsers operate on raw byte slices, never panic on malformed
// input, and signal failure through an error so callers can drop the packet
// and move on.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Protocol numbers and ethertypes the pipeline dispatches on.
const (
	EtherTypeIPv4 = 0x0800

	ProtocolTCP = 6
	ProtocolUDP = 17
)

// TCP flag bits as they appear in the header's flag byte.
const (
	TCPFlagFIN = 0x01
	TCPFlagSYN = 0x02
	TCPFlagRST = 0x04
	TCPFlagPSH = 0x08
	TCPFlagACK = 0x10
	TCPFlagURG = 0x20
)

var (
	// ErrTruncated indicates the input is shorter than the fixed minimum
	// header size of the layer being parsed.
	ErrTruncated = errors.New("truncated header")

	// ErrNotIPv4 indicates the IP version nibble is not 4.
	ErrNotIPv4 = errors.New("not an IPv4 header")

	// ErrHeaderLength indicates a variable-length header declares more
	// bytes than the input holds.
	ErrHeaderLength = errors.New("header length exceeds data")
)

// EthernetHeader is a decoded Ethernet II frame header.
type EthernetHeader struct {
	DstMAC    net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType uint16
	Payload   []byte
}

// IPv4Header is a decoded IPv4 header. Payload starts after the full header
// including options; options themselves are skipped, not decoded.
type IPv4Header struct {
	Version        uint8
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	Identification uint16
	Flags          uint8
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcIP          net.IP
	DstIP          net.IP
	HeaderLength   int
	Payload        []byte
}

// TCPHeader is a decoded TCP header. Options are skipped.
type TCPHeader struct {
	SrcPort      uint16
	DstPort      uint16
	SeqNum       uint32
	AckNum       uint32
	DataOffset   uint8
	Flags        uint8
	Window       uint16
	Checksum     uint16
	UrgentPtr    uint16
	HeaderLength int
	Payload      []byte
}

// UDPHeader is a decoded UDP header.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
	Payload  []byte
}

// ParseEthernet decodes an Ethernet II header from data.
// Layout: dst MAC (6) + src MAC (6) + ethertype (2).
func ParseEthernet(data []byte) (*EthernetHeader, error) {
	if len(data) < 14 {
		return nil, fmt.Errorf("ethernet: %w (%d bytes)", ErrTruncated, len(data))
	}

	h := &EthernetHeader{
		DstMAC:    net.HardwareAddr(data[0:6]),
		SrcMAC:    net.HardwareAddr(data[6:12]),
		EtherType: binary.BigEndian.Uint16(data[12:14]),
		Payload:   data[14:],
	}
	return h, nil
}

// ParseIPv4 decodes an IPv4 header from data. The header length comes from
// the IHL nibble, so payload begins after any IP options.
func ParseIPv4(data []byte) (*IPv4Header, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("ipv4: %w (%d bytes)", ErrTruncated, len(data))
	}

	version := data[0] >> 4
	if version != 4 {
		return nil, fmt.Errorf("ipv4: %w (version %d)", ErrNotIPv4, version)
	}

	ihl := data[0] & 0x0F
	headerLength := int(ihl) * 4
	if headerLength < 20 || len(data) < headerLength {
		return nil, fmt.Errorf("ipv4: %w (ihl %d, %d bytes)", ErrHeaderLength, ihl, len(data))
	}

	flagsFrag := binary.BigEndian.Uint16(data[6:8])

	h := &IPv4Header{
		Version:        version,
		IHL:            ihl,
		TOS:            data[1],
		TotalLength:    binary.BigEndian.Uint16(data[2:4]),
		Identification: binary.BigEndian.Uint16(data[4:6]),
		Flags:          uint8(flagsFrag >> 13),
		FragmentOffset: flagsFrag & 0x1FFF,
		TTL:            data[8],
		Protocol:       data[9],
		Checksum:       binary.BigEndian.Uint16(data[10:12]),
		SrcIP:          net.IP(data[12:16]),
		DstIP:          net.IP(data[16:20]),
		HeaderLength:   headerLength,
		Payload:        data[headerLength:],
	}
	return h, nil
}

// ParseTCP decodes a TCP header from data. The data-offset nibble gives the
// header length in 32-bit words; options are skipped.
func ParseTCP(data []byte) (*TCPHeader, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("tcp: %w (%d bytes)", ErrTruncated, len(data))
	}

	dataOffset := data[12] >> 4
	headerLength := int(dataOffset) * 4
	if headerLength < 20 || len(data) < headerLength {
		return nil, fmt.Errorf("tcp: %w (offset %d, %d bytes)", ErrHeaderLength, dataOffset, len(data))
	}

	h := &TCPHeader{
		SrcPort:      binary.BigEndian.Uint16(data[0:2]),
		DstPort:      binary.BigEndian.Uint16(data[2:4]),
		SeqNum:       binary.BigEndian.Uint32(data[4:8]),
		AckNum:       binary.BigEndian.Uint32(data[8:12]),
		DataOffset:   dataOffset,
		Flags:        data[13],
		Window:       binary.BigEndian.Uint16(data[14:16]),
		Checksum:     binary.BigEndian.Uint16(data[16:18]),
		UrgentPtr:    binary.BigEndian.Uint16(data[18:20]),
		HeaderLength: headerLength,
		Payload:      data[headerLength:],
	}
	return h, nil
}

// ParseUDP decodes the fixed 8-byte UDP header from data.
func ParseUDP(data []byte) (*UDPHeader, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("udp: %w (%d bytes)", ErrTruncated, len(data))
	}

	h := &UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
		Payload:  data[8:],
	}
	return h, nil
}
