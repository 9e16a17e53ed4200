package flow

import (
	"net"
	"testing"

	"NetFlowMeter/internal/model"
)

func tuple(srcIP string, srcPort uint16, dstIP string, dstPort uint16, proto uint8) model.FiveTuple {
	return model.FiveTuple{
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Protocol: proto,
	}
}

func TestKeyBidirectional(t *testing.T) {
	// Both directions of one conversation must share a key.
	forward := Key(tuple("10.0.0.1", 1234, "10.0.0.2", 80, 6))
	reverse := Key(tuple("10.0.0.2", 80, "10.0.0.1", 1234, 6))

	if forward != reverse {
		t.Errorf("direction changed the key: %s vs %s", forward, reverse)
	}
}

func TestKeyWidth(t *testing.T) {
	key := Key(tuple("192.168.1.10", 55555, "1.1.1.1", 443, 6))
	if len(key) != 16 {
		t.Errorf("key length = %d, want 16 hex characters", len(key))
	}
	for _, c := range key {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("key %q contains non-hex character %q", key, c)
		}
	}
}

func TestKeyDistinguishesFlows(t *testing.T) {
	base := Key(tuple("10.0.0.1", 1234, "10.0.0.2", 80, 6))

	cases := map[string]model.FiveTuple{
		"different dst port": tuple("10.0.0.1", 1234, "10.0.0.2", 443, 6),
		"different src port": tuple("10.0.0.1", 4321, "10.0.0.2", 80, 6),
		"different protocol": tuple("10.0.0.1", 1234, "10.0.0.2", 80, 17),
		"different dst ip":   tuple("10.0.0.1", 1234, "10.0.0.3", 80, 6),
	}
	for name, ft := range cases {
		if Key(ft) == base {
			t.Errorf("%s mapped to the same key", name)
		}
	}
}

func TestKeyEqualIPsPortTiebreak(t *testing.T) {
	// With equal IPs the smaller port decides the canonical orientation.
	a := Key(tuple("10.0.0.1", 1000, "10.0.0.1", 2000, 6))
	b := Key(tuple("10.0.0.1", 2000, "10.0.0.1", 1000, 6))

	if a != b {
		t.Errorf("port tiebreak not symmetric: %s vs %s", a, b)
	}
}

func BenchmarkKey(b *testing.B) {
	ft := tuple("192.168.1.100", 54321, "93.184.216.34", 443, 6)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Key(ft)
	}
}
