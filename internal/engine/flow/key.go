// Package flow implements bidirectional flow identification and the sharded
// table of per-flow accumulators behind the extraction pipeline.
package flow

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"

	"NetFlowMeter/internal/model"
)

// Key derives the flow identifier for a packet's 5-tuple. Both directions of
// a conversation map to the same key: the endpoint with the numerically
// smaller IP (smaller port on equal IPs) is placed first before hashing.
// The key is the first 16 hex characters of an MD5 digest, 64 bits wide;
// at the table sizes this engine holds (thousands of concurrent flows) the
// collision probability is negligible.
func Key(ft model.FiveTuple) string {
	src := canonicalIPv4(ft.SrcIP)
	dst := canonicalIPv4(ft.DstIP)

	var s string
	cmp := bytes.Compare(src, dst)
	if cmp < 0 || (cmp == 0 && ft.SrcPort < ft.DstPort) {
		s = fmt.Sprintf("%s:%d-%s:%d:%d", src, ft.SrcPort, dst, ft.DstPort, ft.Protocol)
	} else {
		s = fmt.Sprintf("%s:%d-%s:%d:%d", dst, ft.DstPort, src, ft.SrcPort, ft.Protocol)
	}

	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalIPv4 reduces an address to its 4-byte form so the byte comparison
// is well defined regardless of how the address was produced (raw header
// slice or net.ParseIP).
func canonicalIPv4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
