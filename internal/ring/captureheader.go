package ring

import "encoding/binary"

// CaptureHeader is pcap_pkthdr extended with the parsed fields from
// spec.md §3: the per-slot metadata that precedes the captured payload.
type CaptureHeader struct {
	TimestampNanos uint64
	CapLen         uint32 // bytes of payload actually captured in this slot
	Len            uint32 // original on-wire frame length

	VlanID    uint16
	EthType   uint16
	L3Proto   uint8
	L3Offset  uint16
	L4Offset  uint16
	IPv4Src   uint32
	IPv4Dst   uint32
	L4SrcPort uint16
	L4DstPort uint16

	PayloadOffset uint16
}

// captureHeaderSize is the encoded size of CaptureHeader, padded up to a
// 4-byte boundary so the payload that follows it in a slot starts aligned.
const captureHeaderSize = 40

func encodeCaptureHeader(dst []byte, h *CaptureHeader) {
	binary.LittleEndian.PutUint64(dst[0:8], h.TimestampNanos)
	binary.LittleEndian.PutUint32(dst[8:12], h.CapLen)
	binary.LittleEndian.PutUint32(dst[12:16], h.Len)
	binary.LittleEndian.PutUint16(dst[16:18], h.VlanID)
	binary.LittleEndian.PutUint16(dst[18:20], h.EthType)
	dst[20] = h.L3Proto
	binary.LittleEndian.PutUint16(dst[22:24], h.L3Offset)
	binary.LittleEndian.PutUint16(dst[24:26], h.L4Offset)
	binary.LittleEndian.PutUint32(dst[26:30], h.IPv4Src)
	binary.LittleEndian.PutUint32(dst[30:34], h.IPv4Dst)
	binary.LittleEndian.PutUint16(dst[34:36], h.L4SrcPort)
	binary.LittleEndian.PutUint16(dst[36:38], h.L4DstPort)
	binary.LittleEndian.PutUint16(dst[38:40], h.PayloadOffset)
}

func decodeCaptureHeader(src []byte) CaptureHeader {
	var h CaptureHeader
	h.TimestampNanos = binary.LittleEndian.Uint64(src[0:8])
	h.CapLen = binary.LittleEndian.Uint32(src[8:12])
	h.Len = binary.LittleEndian.Uint32(src[12:16])
	h.VlanID = binary.LittleEndian.Uint16(src[16:18])
	h.EthType = binary.LittleEndian.Uint16(src[18:20])
	h.L3Proto = src[20]
	h.L3Offset = binary.LittleEndian.Uint16(src[22:24])
	h.L4Offset = binary.LittleEndian.Uint16(src[24:26])
	h.IPv4Src = binary.LittleEndian.Uint32(src[26:30])
	h.IPv4Dst = binary.LittleEndian.Uint32(src[30:34])
	h.L4SrcPort = binary.LittleEndian.Uint16(src[34:36])
	h.L4DstPort = binary.LittleEndian.Uint16(src[36:38])
	h.PayloadOffset = binary.LittleEndian.Uint16(src[38:40])
	return h
}
