// Package capture provides the live packet source feeding the probe.
package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/model"
)

// Source captures packets from a network interface and exposes them as a
// channel of raw packets. The channel closes when the handle is closed or
// the capture errors out.
type Source struct {
	handle *pcap.Handle
	iface  string
	log    *logrus.Entry

	captured atomic.Uint64
}

// NewLiveSource opens the configured interface for live capture and applies
// the BPF filter, if any.
func NewLiveSource(cfg config.ProbeConfig, logger *logrus.Logger) (*Source, error) {
	handle, err := pcap.OpenLive(cfg.Interface, cfg.SnapshotLen, cfg.Promiscuous, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %s: %w", cfg.Interface, err)
	}

	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("capture: set bpf filter %q: %w", cfg.BPFFilter, err)
		}
	}

	log := logger.WithField("component", "capture")
	log.WithFields(logrus.Fields{
		"interface":   cfg.Interface,
		"snapshot":    cfg.SnapshotLen,
		"promiscuous": cfg.Promiscuous,
		"filter":      cfg.BPFFilter,
	}).Info("capture started")

	return &Source{handle: handle, iface: cfg.Interface, log: log}, nil
}

// Interface returns the capture interface name.
func (s *Source) Interface() string {
	return s.iface
}

// Packets starts the capture pump and returns the packet channel.
func (s *Source) Packets() <-chan *model.RawPacket {
	out := make(chan *model.RawPacket, 1024)

	go func() {
		defer close(out)
		packetSource := gopacket.NewPacketSource(s.handle, s.handle.LinkType())
		for packet := range packetSource.Packets() {
			meta := packet.Metadata()
			out <- &model.RawPacket{
				Data:      packet.Data(),
				Length:    meta.CaptureLength,
				Port:      meta.InterfaceIndex,
				Timestamp: meta.Timestamp,
			}
			s.captured.Add(1)
		}
		s.log.Info("capture pump stopped")
	}()

	return out
}

// Captured returns the number of packets delivered so far.
func (s *Source) Captured() uint64 {
	return s.captured.Load()
}

// Close stops the capture; the packet channel closes once the pump drains.
func (s *Source) Close() {
	s.handle.Close()
	s.log.WithField("captured", s.captured.Load()).Info("capture closed")
}
