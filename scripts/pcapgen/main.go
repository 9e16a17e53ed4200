package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// flowSpec fixes the endpoints of one synthetic flow so every packet of the
// flow shares a five-tuple.
type flowSpec struct {
	srcIP   net.IP
	dstIP   net.IP
	srcPort uint16
	dstPort uint16
	proto   layers.IPProtocol
	seq     uint32
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	flowCount := flag.Int("flows", 20, "Number of distinct flows")
	packetsPerFlow := flag.Int("p", 50, "Packets per flow")
	udpShare := flag.Float64("udp", 0.2, "Fraction of flows carried over UDP")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rand.Seed(time.Now().UnixNano())

	flows := make([]*flowSpec, *flowCount)
	for i := range flows {
		proto := layers.IPProtocolTCP
		if rand.Float64() < *udpShare {
			proto = layers.IPProtocolUDP
		}
		flows[i] = &flowSpec{
			srcIP:   net.IP{10, 0, byte(rand.Intn(256)), byte(rand.Intn(254) + 1)},
			dstIP:   net.IP{192, 168, byte(rand.Intn(256)), byte(rand.Intn(254) + 1)},
			srcPort: uint16(rand.Intn(65535-1024) + 1024),
			dstPort: uint16(rand.Intn(65535-1024) + 1024),
			proto:   proto,
			seq:     rand.Uint32(),
		}
	}

	totalPackets := *flowCount * *packetsPerFlow
	log.Printf("Generating %d flows x %d packets into %s...", *flowCount, *packetsPerFlow, *outputFile)

	// Interleave flows round by round so the capture looks like concurrent
	// traffic rather than one flow at a time.
	ts := time.Now()
	written := 0
	for round := 0; round < *packetsPerFlow; round++ {
		for _, flow := range flows {
			data, err := buildPacket(flow, round, round == *packetsPerFlow-1)
			if err != nil {
				log.Fatalf("Failed to serialize packet: %v", err)
			}

			ts = ts.Add(time.Duration(rand.Intn(1900)+100) * time.Microsecond)
			ci := gopacket.CaptureInfo{
				Timestamp:     ts,
				CaptureLength: len(data),
				Length:        len(data),
			}
			if err := pcapWriter.WritePacket(ci, data); err != nil {
				log.Fatalf("Failed to write packet: %v", err)
			}

			written++
			if written%100000 == 0 {
				log.Printf("Generated %d packets...", written)
			}
		}
	}

	log.Printf("Successfully generated %d packets into %s.", totalPackets, *outputFile)
}

// buildPacket serializes the next packet of a flow. TCP flows open with a
// SYN and close with FIN+ACK; everything in between is ACK data.
func buildPacket(flow *flowSpec, round int, last bool) ([]byte, error) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    flow.srcIP,
		DstIP:    flow.dstIP,
		Version:  4,
		TTL:      64,
		Protocol: flow.proto,
	}

	var payload []byte
	if flow.proto == layers.IPProtocolUDP || round > 0 {
		payload = make([]byte, rand.Intn(1200)+64)
		rand.Read(payload)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}

	switch flow.proto {
	case layers.IPProtocolTCP:
		tcpLayer := &layers.TCP{
			SrcPort: layers.TCPPort(flow.srcPort),
			DstPort: layers.TCPPort(flow.dstPort),
			Seq:     flow.seq,
			Window:  14600,
		}
		switch {
		case round == 0:
			tcpLayer.SYN = true
		case last:
			tcpLayer.FIN = true
			tcpLayer.ACK = true
		default:
			tcpLayer.ACK = true
			tcpLayer.PSH = len(payload) > 0
		}
		tcpLayer.SetNetworkLayerForChecksum(ipLayer)
		flow.seq += uint32(len(payload))

		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
	case layers.IPProtocolUDP:
		udpLayer := &layers.UDP{
			SrcPort: layers.UDPPort(flow.srcPort),
			DstPort: layers.UDPPort(flow.dstPort),
		}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)

		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
