package extractor

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/model"
)

func testExtractor(t *testing.T, cfg Config) *Extractor {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(cfg, logger)
}

// buildSYNFrame assembles the minimal 54-byte Ethernet/IPv4/TCP SYN frame
// for 10.0.0.1:1234 -> 10.0.0.2:80 byte by byte.
func buildSYNFrame() []byte {
	frame := make([]byte, 0, 54)
	frame = append(frame, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff)
	frame = append(frame, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66)
	frame = append(frame, 0x08, 0x00)
	frame = append(frame, 0x45, 0x00, 0x00, 0x28)
	frame = append(frame, 0x00, 0x01, 0x00, 0x00)
	frame = append(frame, 0x40, 0x06, 0x00, 0x00)
	frame = append(frame, 10, 0, 0, 1)
	frame = append(frame, 10, 0, 0, 2)
	frame = append(frame, 0x04, 0xd2, 0x00, 0x50)
	frame = append(frame, 0x00, 0x00, 0x03, 0xe8)
	frame = append(frame, 0x00, 0x00, 0x00, 0x00)
	frame = append(frame, 0x50, 0x02, 0x20, 0x00)
	frame = append(frame, 0x00, 0x00, 0x00, 0x00)
	return frame
}

// serializeFrame builds a frame with gopacket for the richer test cases.
func serializeFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, proto layers.IPProtocol, flags map[string]bool, payloadLen int) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
		Version:  4,
		TTL:      64,
		Protocol: proto,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	payload := gopacket.Payload(make([]byte, payloadLen))

	var err error
	switch proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(srcPort),
			DstPort: layers.TCPPort(dstPort),
			SYN:     flags["syn"],
			ACK:     flags["ack"],
			PSH:     flags["psh"],
			FIN:     flags["fin"],
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp, payload)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(srcPort),
			DstPort: layers.UDPPort(dstPort),
		}
		udp.SetNetworkLayerForChecksum(ip)
		err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload)
	default:
		err = gopacket.SerializeLayers(buf, opts, eth, ip, payload)
	}
	if err != nil {
		t.Fatalf("failed to serialize test frame: %v", err)
	}
	return buf.Bytes()
}

func rawPacket(data []byte, at time.Time) *model.RawPacket {
	return &model.RawPacket{Data: data, Length: len(data), Timestamp: at}
}

func TestExtractSYNPacket(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	rec, err := e.Extract(rawPacket(buildSYNFrame(), time.Now()))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if rec.SrcIP != "10.0.0.1" || rec.SrcPort != 1234 {
		t.Errorf("src = %s:%d, want 10.0.0.1:1234", rec.SrcIP, rec.SrcPort)
	}
	if rec.DstIP != "10.0.0.2" || rec.DstPort != 80 {
		t.Errorf("dst = %s:%d, want 10.0.0.2:80", rec.DstIP, rec.DstPort)
	}
	if rec.Protocol != 6 {
		t.Errorf("protocol = %d, want 6", rec.Protocol)
	}
	if rec.TotalFwdPackets != 1 {
		t.Errorf("total_fwd_packets = %d, want 1", rec.TotalFwdPackets)
	}
	if rec.TotalLengthFwdPackets != 54 {
		t.Errorf("total_length_fwd_packets = %d, want 54", rec.TotalLengthFwdPackets)
	}
	if rec.SYNFlagCount != 1 {
		t.Errorf("syn_flag_count = %d, want 1", rec.SYNFlagCount)
	}
	if rec.FINFlagCount != 0 || rec.ACKFlagCount != 0 {
		t.Errorf("unexpected flag indicators: fin=%d ack=%d", rec.FINFlagCount, rec.ACKFlagCount)
	}
	if rec.PacketLengthMax != 54 || rec.PacketLengthMin != 54 {
		t.Errorf("packet length min/max = %v/%v, want 54/54", rec.PacketLengthMin, rec.PacketLengthMax)
	}
	if rec.FlowDuration != 1e-6 {
		t.Errorf("flow_duration = %v, want 1e-6 floor", rec.FlowDuration)
	}
	if rec.Label != "BENIGN" {
		t.Errorf("label = %q, want BENIGN", rec.Label)
	}
}

func TestExtractSkipsNonIPv4(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	// ARP ethertype.
	frame := buildSYNFrame()
	frame[12], frame[13] = 0x08, 0x06

	rec, err := e.Extract(rawPacket(frame, time.Now()))
	if rec != nil {
		t.Fatal("expected no record for ARP frame")
	}
	if !errors.Is(err, ErrNotAnalyzable) {
		t.Errorf("expected ErrNotAnalyzable, got %v", err)
	}

	if _, skipped, _ := e.Counters(); skipped != 1 {
		t.Errorf("skipped counter = %d, want 1", skipped)
	}
}

func TestExtractSkipsTruncatedFrames(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	for _, size := range []int{0, 10, 13} {
		if _, err := e.Extract(rawPacket(make([]byte, size), time.Now())); !errors.Is(err, ErrNotAnalyzable) {
			t.Errorf("%d bytes: expected ErrNotAnalyzable, got %v", size, err)
		}
	}

	// Valid Ethernet but truncated IPv4.
	short := buildSYNFrame()[:20]
	if _, err := e.Extract(rawPacket(short, time.Now())); !errors.Is(err, ErrNotAnalyzable) {
		t.Errorf("truncated ipv4: expected ErrNotAnalyzable, got %v", err)
	}
}

func TestExtractBidirectionalFlow(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()
	base := time.Now()

	fwd := serializeFrame(t, "10.0.0.1", "10.0.0.2", 1234, 80, layers.IPProtocolTCP,
		map[string]bool{"syn": true}, 0)
	rev := serializeFrame(t, "10.0.0.2", "10.0.0.1", 80, 1234, layers.IPProtocolTCP,
		map[string]bool{"syn": true, "ack": true}, 0)

	if _, err := e.Extract(rawPacket(fwd, base)); err != nil {
		t.Fatalf("forward packet: %v", err)
	}
	rec, err := e.Extract(rawPacket(rev, base.Add(5*time.Millisecond)))
	if err != nil {
		t.Fatalf("reverse packet: %v", err)
	}

	if rec.TotalFwdPackets != 2 {
		t.Errorf("both directions should land in one flow, total_fwd_packets = %d", rec.TotalFwdPackets)
	}
	if rec.SrcIP != "10.0.0.1" {
		t.Errorf("flow identity flipped to %s, want first packet's 10.0.0.1", rec.SrcIP)
	}
	if rec.SYNFlagCount != 1 || rec.ACKFlagCount != 1 {
		t.Errorf("flag union lost a direction: syn=%d ack=%d", rec.SYNFlagCount, rec.ACKFlagCount)
	}
	if e.FlowCount() != 1 {
		t.Errorf("flow count = %d, want 1", e.FlowCount())
	}
}

func TestExtractUDPPacket(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	frame := serializeFrame(t, "192.168.1.5", "8.8.8.8", 5353, 53, layers.IPProtocolUDP, nil, 32)
	rec, err := e.Extract(rawPacket(frame, time.Now()))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if rec.Protocol != 17 {
		t.Errorf("protocol = %d, want 17", rec.Protocol)
	}
	if rec.SrcPort != 5353 || rec.DstPort != 53 {
		t.Errorf("ports = %d/%d, want 5353/53", rec.SrcPort, rec.DstPort)
	}
	if rec.TCPFlags != 0 || rec.SYNFlagCount != 0 {
		t.Errorf("UDP flow carries TCP flags: 0x%02x syn=%d", rec.TCPFlags, rec.SYNFlagCount)
	}
}

func TestExtractOtherProtocolDefaultsPorts(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	// ICMP: no transport ports to parse.
	frame := serializeFrame(t, "10.1.1.1", "10.1.1.2", 0, 0, layers.IPProtocolICMPv4, nil, 8)
	rec, err := e.Extract(rawPacket(frame, time.Now()))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.Protocol != 1 {
		t.Errorf("protocol = %d, want 1", rec.Protocol)
	}
	if rec.SrcPort != 0 || rec.DstPort != 0 {
		t.Errorf("ports = %d/%d, want 0/0", rec.SrcPort, rec.DstPort)
	}
}

func TestExtractTruncatedTCPStillCounts(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()

	// IPv4 header claims TCP but only 10 payload bytes follow.
	frame := buildSYNFrame()[:44]
	rec, err := e.Extract(rawPacket(frame, time.Now()))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if rec.SrcPort != 0 || rec.DstPort != 0 {
		t.Errorf("ports = %d/%d, want 0/0 on transport parse failure", rec.SrcPort, rec.DstPort)
	}
	if rec.TotalFwdPackets != 1 {
		t.Errorf("packet not attributed to flow: total_fwd_packets = %d", rec.TotalFwdPackets)
	}
}

func TestExtractEvictsWhenOverThreshold(t *testing.T) {
	e := testExtractor(t, Config{FlowTimeout: time.Millisecond, MaxFlows: 10})
	defer e.Close()

	// 1. Fill the table one past the threshold with long-idle flows. The
	// sweep cannot fire during the fill because the size check precedes
	// each upsert.
	stale := time.Now().Add(-time.Minute)
	for i := 0; i < 11; i++ {
		frame := serializeFrame(t, fmt.Sprintf("10.0.0.%d", i+1), "10.9.9.9", uint16(1000+i), 80,
			layers.IPProtocolTCP, map[string]bool{"syn": true}, 0)
		if _, err := e.Extract(rawPacket(frame, stale)); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
	}
	if e.FlowCount() != 11 {
		t.Fatalf("setup expected 11 flows, got %d", e.FlowCount())
	}

	// 2. The next packet finds the table over threshold and sweeps before
	// its own upsert.
	frame := serializeFrame(t, "172.16.0.1", "172.16.0.2", 40000, 443, layers.IPProtocolTCP,
		map[string]bool{"syn": true}, 0)
	if _, err := e.Extract(rawPacket(frame, time.Now())); err != nil {
		t.Fatalf("trigger packet: %v", err)
	}

	if e.FlowCount() != 1 {
		t.Errorf("flow count after sweep = %d, want only the trigger packet's flow", e.FlowCount())
	}
	if _, _, evicted := e.Counters(); evicted != 11 {
		t.Errorf("evicted counter = %d, want 11", evicted)
	}
}

func TestExtractStreamMixedTraffic(t *testing.T) {
	e := testExtractor(t, Config{})
	defer e.Close()
	base := time.Now()

	var analyzable, skipped int
	for i := 0; i < 200; i++ {
		var data []byte
		switch i % 4 {
		case 0:
			data = serializeFrame(t, "10.0.0.1", "10.0.0.2", 1234, 80, layers.IPProtocolTCP,
				map[string]bool{"ack": true}, 100)
		case 1:
			data = serializeFrame(t, "10.0.0.3", "8.8.4.4", 40000, 53, layers.IPProtocolUDP, nil, 60)
		case 2:
			data = serializeFrame(t, "10.0.0.1", "10.0.0.2", 1234, 80, layers.IPProtocolTCP,
				map[string]bool{"psh": true, "ack": true}, 400)
		case 3:
			data = make([]byte, 8) // junk
		}

		rec, err := e.Extract(rawPacket(data, base.Add(time.Duration(i)*time.Millisecond)))
		if err != nil {
			skipped++
			continue
		}
		analyzable++
		if rec.TotalFwdPackets == 0 {
			t.Fatalf("packet %d: empty record", i)
		}
	}

	if analyzable != 150 || skipped != 50 {
		t.Errorf("analyzed/skipped = %d/%d, want 150/50", analyzable, skipped)
	}
	gotAnalyzed, gotSkipped, _ := e.Counters()
	if gotAnalyzed != 150 || gotSkipped != 50 {
		t.Errorf("counters = %d/%d, want 150/50", gotAnalyzed, gotSkipped)
	}
	if e.FlowCount() != 2 {
		t.Errorf("flow count = %d, want 2 (one TCP, one UDP)", e.FlowCount())
	}
}

func TestExtractConcurrentSameFlow(t *testing.T) {
	// Parallel updates to one flow must serialize: the last record reflects
	// every packet.
	e := testExtractor(t, Config{})
	defer e.Close()

	frame := buildSYNFrame()
	base := time.Now()

	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				at := base.Add(time.Duration(g*perGoroutine+i) * time.Microsecond)
				if _, err := e.Extract(rawPacket(frame, at)); err != nil {
					t.Errorf("Extract failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	rec, err := e.Extract(rawPacket(frame, base.Add(time.Second)))
	if err != nil {
		t.Fatalf("final packet: %v", err)
	}
	want := uint64(goroutines*perGoroutine + 1)
	if rec.TotalFwdPackets != want {
		t.Errorf("total_fwd_packets = %d, want %d", rec.TotalFwdPackets, want)
	}
	if analyzed, _, _ := e.Counters(); analyzed != want {
		t.Errorf("analyzed counter = %d, want %d", analyzed, want)
	}
	if e.FlowCount() != 1 {
		t.Errorf("flow count = %d, want 1", e.FlowCount())
	}
}

func TestExtractorCloseDrainsTable(t *testing.T) {
	e := testExtractor(t, Config{})

	for i := 0; i < 5; i++ {
		frame := serializeFrame(t, fmt.Sprintf("10.0.1.%d", i+1), "10.0.2.1", uint16(2000+i), 80,
			layers.IPProtocolTCP, map[string]bool{"syn": true}, 0)
		if _, err := e.Extract(rawPacket(frame, time.Now())); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
	}
	if e.FlowCount() != 5 {
		t.Fatalf("flow count before close = %d, want 5", e.FlowCount())
	}

	e.Close()
	if e.FlowCount() != 0 {
		t.Errorf("flow count after close = %d, want 0", e.FlowCount())
	}
}

func BenchmarkExtract(b *testing.B) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	e := New(Config{}, logger)
	defer e.Close()

	frame := buildSYNFrame()
	pkt := rawPacket(frame, time.Now())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Extract(pkt); err != nil {
			b.Fatal(err)
		}
	}
}
