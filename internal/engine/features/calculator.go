// Package features derives the fixed-schema feature record from an
// accumulated flow state.
package features

import (
	"time"

	"NetFlowMeter/internal/engine/flow"
	"NetFlowMeter/internal/engine/protocol"
	"NetFlowMeter/internal/model"
)

// minDuration floors flow duration so rate features never divide by zero on
// single-packet flows.
const minDuration = 1e-6

// Compute derives the feature record for a flow state. Pure function; the
// caller guarantees the state has seen at least one packet. The state is a
// value copy, so computation is race-free with respect to ongoing updates.
func Compute(st flow.State) *model.FeatureRecord {
	duration := st.LastPacketTime.Sub(st.StartTime).Seconds()
	if duration < minDuration {
		duration = minDuration
	}

	r := &model.FeatureRecord{
		SrcIP:    st.SrcIP,
		DstIP:    st.DstIP,
		SrcPort:  st.SrcPort,
		DstPort:  st.DstPort,
		Protocol: st.Protocol,

		FlowDuration: duration,

		TotalFwdPackets:       st.PacketCount,
		TotalBwdPackets:       0,
		TotalLengthFwdPackets: st.ByteCount,
		TotalLengthBwdPackets: 0,

		PacketLengthMax:  st.Length.Max(),
		PacketLengthMin:  st.Length.Min(),
		PacketLengthMean: st.Length.Mean(),
		PacketLengthStd:  st.Length.StdDev(),

		FlowBytesPerSecond:   float64(st.ByteCount) / duration,
		FlowPacketsPerSecond: float64(st.PacketCount) / duration,

		FlowIATMean: st.IAT.Mean(),
		FlowIATStd:  st.IAT.StdDev(),
		FlowIATMax:  st.IAT.Max(),
		FlowIATMin:  st.IAT.Min(),

		Timestamp: time.Now().UnixMicro(),
		Label:     "BENIGN",
	}

	if st.Protocol == protocol.ProtocolTCP {
		r.TCPFlags = st.TCPFlagsUnion
		r.FINFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagFIN)
		r.SYNFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagSYN)
		r.RSTFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagRST)
		r.PSHFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagPSH)
		r.ACKFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagACK)
		r.URGFlagCount = flagIndicator(st.TCPFlagsUnion, protocol.TCPFlagURG)
	}

	r.AvgPacketSize = r.PacketLengthMean
	r.PacketLengthVariance = r.PacketLengthStd * r.PacketLengthStd

	return r
}

func flagIndicator(union uint8, bit uint8) uint8 {
	if union&bit != 0 {
		return 1
	}
	return 0
}
