// Package pcap reads packet capture files with the pure Go pcapgo decoder,
// so offline tooling works without libpcap.
package pcap

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"NetFlowMeter/internal/model"
)

// Reader streams raw packets from a pcap file.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
	err    error
}

// NewReader opens the given pcap file and validates its header.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("pcap: open file: %w", err)
	}

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("pcap: read file header: %w", err)
	}

	return &Reader{file: file, reader: reader}, nil
}

// LinkType reports the capture's link layer.
func (r *Reader) LinkType() layers.LinkType {
	return r.reader.LinkType()
}

// ReadPackets sends every packet in the file to out with its recorded
// capture timestamp, then closes the channel. Check Err afterwards for a
// mid-file read failure.
func (r *Reader) ReadPackets(out chan<- *model.RawPacket) {
	defer close(out)

	for {
		data, ci, err := r.reader.ReadPacketData()
		if err == io.EOF {
			return
		}
		if err != nil {
			r.err = fmt.Errorf("pcap: read packet: %w", err)
			return
		}
		out <- &model.RawPacket{
			Data:      data,
			Length:    ci.CaptureLength,
			Port:      ci.InterfaceIndex,
			Timestamp: ci.Timestamp,
		}
	}
}

// Err returns the error that stopped ReadPackets, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}
