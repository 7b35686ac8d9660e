// Package packet implements the frame parser from spec.md §4.5: given a raw
// Ethernet frame, it extracts just enough of the VLAN/IPv4/TCP/UDP headers
// to populate a ring.CaptureHeader. Parsing is read-only and never mutates
// the input slice.
package packet

import (
	"encoding/binary"

	"github.com/ringtap/ringtap/internal/ring"
)

const (
	ethHeaderLen  = 14
	vlanTagLen    = 4
	ethTypeVLAN   = 0x8100
	ethTypeIPv4   = 0x0800
	protoTCP      = 6
	protoUDP      = 17
	minIPv4Header = 20
	minTCPHeader  = 20
	minUDPHeader  = 8
)

// NoVlan is the vlan_id sentinel for frames without an 802.1Q tag, matching
// the original parser's (u_int16_t)-1.
const NoVlan uint16 = 0xFFFF

// Parse extracts spec.md §4.5's capture-header fields from an Ethernet
// frame. It never returns an error: frames too short to carry even an
// Ethernet header are reported back with every field but Len zeroed
// (eth_type included), which is indistinguishable from "not IPv4" to every
// filter stage downstream.
func Parse(frame []byte) ring.CaptureHeader {
	var hdr ring.CaptureHeader
	hdr.Len = uint32(len(frame))
	hdr.VlanID = NoVlan

	if len(frame) < ethHeaderLen {
		hdr.VlanID = 0
		return hdr
	}

	ethType := binary.BigEndian.Uint16(frame[12:14])
	displ := 0

	if ethType == ethTypeVLAN {
		if len(frame) < ethHeaderLen+vlanTagLen {
			return hdr
		}
		hdr.VlanID = binary.BigEndian.Uint16(frame[14:16]) & 0x0FFF
		ethType = binary.BigEndian.Uint16(frame[16:18])
		displ = vlanTagLen
	}
	hdr.EthType = ethType

	if ethType != ethTypeIPv4 {
		return hdr
	}

	l3Offset := ethHeaderLen + displ
	if len(frame) < l3Offset+minIPv4Header {
		return hdr
	}
	ip := frame[l3Offset:]

	ihl := int(ip[0]&0x0F) * 4
	if ihl < minIPv4Header {
		return hdr
	}

	hdr.L3Offset = uint16(l3Offset)
	hdr.IPv4Src = binary.BigEndian.Uint32(ip[12:16])
	hdr.IPv4Dst = binary.BigEndian.Uint32(ip[16:20])
	hdr.L3Proto = ip[9]

	if hdr.L3Proto != protoTCP && hdr.L3Proto != protoUDP {
		return hdr
	}

	l4Offset := l3Offset + ihl
	hdr.L4Offset = uint16(l4Offset)
	if len(frame) < l4Offset+4 {
		return hdr
	}
	l4 := frame[l4Offset:]
	hdr.L4SrcPort = binary.BigEndian.Uint16(l4[0:2])
	hdr.L4DstPort = binary.BigEndian.Uint16(l4[2:4])

	switch hdr.L3Proto {
	case protoTCP:
		if len(frame) < l4Offset+minTCPHeader {
			return hdr
		}
		dataOffset := int(l4[12]>>4) * 4
		hdr.PayloadOffset = uint16(l4Offset + dataOffset)
	case protoUDP:
		hdr.PayloadOffset = uint16(l4Offset + minUDPHeader)
	}

	return hdr
}

// FiveTuple is the (src_ip, dst_ip, proto, src_port, dst_port) key used by
// the per_flow cluster hash (spec.md §4.2 step 3). For IPv4 frames without
// TCP/UDP the caller falls back to frame length; for non-IPv4 frames it
// falls back to the sum of the folded MAC addresses.
type FiveTuple struct {
	SrcIP   uint32
	DstIP   uint32
	Proto   uint8
	SrcPort uint16
	DstPort uint16
	HasFlow bool
}

// Flow derives the 5-tuple from a parsed header. HasFlow is false for
// non-IPv4 frames or IPv4 frames without a TCP/UDP header.
func Flow(hdr ring.CaptureHeader) FiveTuple {
	if hdr.EthType != ethTypeIPv4 || (hdr.L3Proto != protoTCP && hdr.L3Proto != protoUDP) {
		return FiveTuple{}
	}
	return FiveTuple{
		SrcIP:   hdr.IPv4Src,
		DstIP:   hdr.IPv4Dst,
		Proto:   hdr.L3Proto,
		SrcPort: hdr.L4SrcPort,
		DstPort: hdr.L4DstPort,
		HasFlow: true,
	}
}
