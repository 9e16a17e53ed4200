package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"NetFlowMeter/internal/engine/flow"
	"NetFlowMeter/internal/model"
)

func tcpState(t *testing.T, lengths []int, gaps []time.Duration, flags uint8) flow.State {
	t.Helper()

	ft := model.FiveTuple{
		SrcIP:    []byte{10, 0, 0, 1},
		DstIP:    []byte{10, 0, 0, 2},
		SrcPort:  1234,
		DstPort:  80,
		Protocol: 6,
	}
	key := flow.Key(ft)
	table := flow.NewTable(4)

	arrival := time.Unix(1700000000, 0)
	var st flow.State
	for i, length := range lengths {
		if i > 0 {
			arrival = arrival.Add(gaps[i-1])
		}
		st = table.Upsert(key, &model.PacketInfo{
			FiveTuple: ft,
			Length:    length,
			TCPFlags:  flags,
		}, arrival)
	}
	return st
}

func TestComputeSinglePacketFlow(t *testing.T) {
	st := tcpState(t, []int{54}, nil, 0x02)
	r := Compute(st)

	assert.Equal(t, "10.0.0.1", r.SrcIP)
	assert.Equal(t, "10.0.0.2", r.DstIP)
	assert.Equal(t, uint16(1234), r.SrcPort)
	assert.Equal(t, uint16(80), r.DstPort)
	assert.Equal(t, uint8(6), r.Protocol)

	// Duration floored for a single packet, rates computed against the floor.
	assert.Equal(t, 1e-6, r.FlowDuration)
	assert.InDelta(t, 54e6, r.FlowBytesPerSecond, 1e-6)
	assert.InDelta(t, 1e6, r.FlowPacketsPerSecond, 1e-6)

	assert.Equal(t, uint64(1), r.TotalFwdPackets)
	assert.Equal(t, uint64(0), r.TotalBwdPackets)
	assert.Equal(t, uint64(54), r.TotalLengthFwdPackets)
	assert.Equal(t, uint64(0), r.TotalLengthBwdPackets)

	assert.Equal(t, 54.0, r.PacketLengthMax)
	assert.Equal(t, 54.0, r.PacketLengthMin)
	assert.Equal(t, 54.0, r.PacketLengthMean)
	assert.Equal(t, 0.0, r.PacketLengthStd, "std undefined below two samples")

	// No gaps recorded yet.
	assert.Equal(t, 0.0, r.FlowIATMean)
	assert.Equal(t, 0.0, r.FlowIATStd)
	assert.Equal(t, 0.0, r.FlowIATMax)
	assert.Equal(t, 0.0, r.FlowIATMin)

	assert.Equal(t, uint8(0x02), r.TCPFlags)
	assert.Equal(t, uint8(1), r.SYNFlagCount)
	assert.Equal(t, uint8(0), r.FINFlagCount)
	assert.Equal(t, uint8(0), r.ACKFlagCount)

	assert.Equal(t, "BENIGN", r.Label)
	assert.Greater(t, r.Timestamp, int64(0))
}

func TestComputeLengthStatistics(t *testing.T) {
	// [40, 60]: mean 50, sample variance 200.
	st := tcpState(t, []int{40, 60}, []time.Duration{100 * time.Millisecond}, 0x10)
	r := Compute(st)

	assert.Equal(t, 40.0, r.PacketLengthMin)
	assert.Equal(t, 60.0, r.PacketLengthMax)
	assert.InDelta(t, 50.0, r.PacketLengthMean, 1e-12)
	assert.InDelta(t, 200.0, r.PacketLengthVariance, 1e-9)
	assert.InDelta(t, r.PacketLengthStd*r.PacketLengthStd, r.PacketLengthVariance, 1e-12,
		"variance must be std squared by construction")
	assert.Equal(t, r.PacketLengthMean, r.AvgPacketSize)
}

func TestComputeRatesAndIAT(t *testing.T) {
	gaps := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}
	st := tcpState(t, []int{100, 200, 300}, gaps, 0x18)
	r := Compute(st)

	assert.InDelta(t, 0.4, r.FlowDuration, 1e-9)
	assert.InDelta(t, 600.0/0.4, r.FlowBytesPerSecond, 1e-6)
	assert.InDelta(t, 3.0/0.4, r.FlowPacketsPerSecond, 1e-6)

	assert.InDelta(t, 0.2, r.FlowIATMean, 1e-9)
	assert.InDelta(t, 0.3, r.FlowIATMax, 1e-9)
	assert.InDelta(t, 0.1, r.FlowIATMin, 1e-9)
	assert.InDelta(t, 0.1414213562, r.FlowIATStd, 1e-9)
}

func TestComputeFlagIndicators(t *testing.T) {
	// Union of SYN, ACK, PSH and FIN across the flow's lifetime.
	ft := model.FiveTuple{
		SrcIP:    []byte{10, 0, 0, 1},
		DstIP:    []byte{10, 0, 0, 2},
		SrcPort:  1234,
		DstPort:  80,
		Protocol: 6,
	}
	table := flow.NewTable(4)
	key := flow.Key(ft)
	base := time.Unix(1700000000, 0)
	var st flow.State
	for i, flags := range []uint8{0x02, 0x12, 0x18, 0x11} {
		st = table.Upsert(key, &model.PacketInfo{FiveTuple: ft, Length: 60, TCPFlags: flags},
			base.Add(time.Duration(i)*time.Millisecond))
	}
	r := Compute(st)

	assert.Equal(t, uint8(0x1b), r.TCPFlags)
	assert.Equal(t, uint8(1), r.FINFlagCount)
	assert.Equal(t, uint8(1), r.SYNFlagCount)
	assert.Equal(t, uint8(0), r.RSTFlagCount)
	assert.Equal(t, uint8(1), r.PSHFlagCount)
	assert.Equal(t, uint8(1), r.ACKFlagCount)
	assert.Equal(t, uint8(0), r.URGFlagCount)
}

func TestComputeNonTCPZeroesFlags(t *testing.T) {
	ft := model.FiveTuple{
		SrcIP:    []byte{10, 0, 0, 1},
		DstIP:    []byte{10, 0, 0, 2},
		SrcPort:  5353,
		DstPort:  53,
		Protocol: 17,
	}
	table := flow.NewTable(4)
	st := table.Upsert(flow.Key(ft), &model.PacketInfo{FiveTuple: ft, Length: 80}, time.Now())
	r := Compute(st)

	assert.Equal(t, uint8(0), r.TCPFlags)
	assert.Equal(t, uint8(0), r.FINFlagCount)
	assert.Equal(t, uint8(0), r.SYNFlagCount)
	assert.Equal(t, uint8(0), r.RSTFlagCount)
	assert.Equal(t, uint8(0), r.PSHFlagCount)
	assert.Equal(t, uint8(0), r.ACKFlagCount)
	assert.Equal(t, uint8(0), r.URGFlagCount)
}

func TestPartitionKeyFromRecord(t *testing.T) {
	st := tcpState(t, []int{54}, nil, 0x02)
	r := Compute(st)

	assert.Equal(t, "10.0.0.1:1234-10.0.0.2:80", r.PartitionKey())
}
