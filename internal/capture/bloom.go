package capture

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/ringtap/ringtap/common/go/bitset"
	"github.com/ringtap/ringtap/internal/ring"
)

// Bloom set sizes, carried over from the original's init_blooms: the
// MAC/VLAN/port/proto sets are sized smaller than the IP set, which sees
// the widest value range. Each twin set has the same size as its primary.
const (
	macBits   = 4096
	vlanBits  = 4096
	ipBits    = 32768
	portBits  = 4096
	protoBits = 4096
)

// BloomSets is the seven-bitmask filter stage from spec.md §3 "Capture
// socket": one bitmask per {MAC, VLAN, IP, twin-IP, port, twin-port,
// proto}. The twin sets are probed alongside their primary counterpart
// using an independent hash, decorrelating collisions in the primary set
// (spec.md §4.2 step 6 "auxiliary hash").
type BloomSets struct {
	enabled bool

	mac      *bitset.Bitmask
	vlan     *bitset.Bitmask
	ip       *bitset.Bitmask
	twinIP   *bitset.Bitmask
	port     *bitset.Bitmask
	twinPort *bitset.Bitmask
	proto    *bitset.Bitmask
}

// NewBloomSets allocates a fresh, disabled bloom filter stage.
func NewBloomSets() *BloomSets {
	return &BloomSets{
		mac:      bitset.NewBitmask(macBits),
		vlan:     bitset.NewBitmask(vlanBits),
		ip:       bitset.NewBitmask(ipBits),
		twinIP:   bitset.NewBitmask(ipBits),
		port:     bitset.NewBitmask(portBits),
		twinPort: bitset.NewBitmask(portBits),
		proto:    bitset.NewBitmask(protoBits),
	}
}

// Enabled reports whether the bloom stage should run.
func (b *BloomSets) Enabled() bool { return b.enabled }

// SetEnabled implements the TOGGLE_BLOOM_STATE option.
func (b *BloomSets) SetEnabled(v bool) { b.enabled = v }

// Reset implements RESET_BLOOM_FILTERS: clearing every set twice is
// idempotent with clearing it once (spec.md §8 "Idempotence").
func (b *BloomSets) Reset() {
	b.mac.Reset()
	b.vlan.Reset()
	b.ip.Reset()
	b.twinIP.Reset()
	b.port.Reset()
	b.twinPort.Reset()
	b.proto.Reset()
}

// auxHash is the second, independent probe hash for the IP and port twin
// sets: a BLAKE2b-based hash decorrelated from the identity-like primary
// index (bit mod num_bits), truncated to its first 64 bits.
func auxHash(value uint32) uint64 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	sum := blake2b.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[:8])
}

// SetRule implements SET_BLOOM: parse an ASCII rule "+tag=value" or
// "-tag=value" and insert/remove the corresponding bit(s).
func (b *BloomSets) SetRule(rule string) error {
	if len(rule) < 2 {
		return fmt.Errorf("%w: bloom rule %q too short", ErrInvalid, rule)
	}
	add := rule[0] == '+'
	if !add && rule[0] != '-' {
		return fmt.Errorf("%w: bloom rule %q missing +/- prefix", ErrInvalid, rule)
	}
	tag, value, ok := strings.Cut(rule[1:], "=")
	if !ok {
		return fmt.Errorf("%w: bloom rule %q missing '='", ErrInvalid, rule)
	}

	switch tag {
	case "vlan":
		return b.applyScalar(b.vlan, nil, value, add, parseUint)
	case "mac":
		return b.applyScalar(b.mac, nil, value, add, parseMAC)
	case "ip":
		return b.applyScalar(b.ip, b.twinIP, value, add, parseIPv4)
	case "port":
		return b.applyScalar(b.port, b.twinPort, value, add, parseUint)
	case "proto":
		return b.applyScalar(b.proto, nil, value, add, parseProto)
	default:
		return fmt.Errorf("%w: unknown bloom rule tag %q", ErrInvalid, tag)
	}
}

type scalarParser func(string) (uint32, error)

// applyScalar sets or clears bit in the primary set and, when twin is
// non-nil, the aux-hashed bit in the twin set.
func (b *BloomSets) applyScalar(primary, twin *bitset.Bitmask, value string, add bool, parse scalarParser) error {
	v, err := parse(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if add {
		primary.Set(uint64(v))
		if twin != nil {
			twin.Set(auxHash(v))
		}
	} else {
		primary.Clear(uint64(v))
		if twin != nil {
			twin.Clear(auxHash(v))
		}
	}
	return nil
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseMAC(s string) (uint32, error) {
	var a, b2, c, d, e, f uint32
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &a, &b2, &c, &d, &e, &f)
	if err != nil || n != 6 {
		return 0, fmt.Errorf("invalid MAC address %q", s)
	}
	return (a & 0xff) + (b2 & 0xff) + ((c & 0xff) << 24) + ((d & 0xff) << 16) + ((e & 0xff) << 8) + (f & 0xff), nil
}

func parseIPv4(s string) (uint32, error) {
	var a, b, c, d uint32
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return ((a & 0xff) << 24) + ((b & 0xff) << 16) + ((c & 0xff) << 8) + (d & 0xff), nil
}

func parseProto(s string) (uint32, error) {
	switch s {
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	case "icmp":
		return 1, nil
	default:
		return parseUint(s)
	}
}

// Match implements spec.md §4.2 step 6: the frame passes iff its VLAN is
// present in the VLAN set (or the frame has no VLAN), AND at least one of
// {src MAC, dst MAC, src IP, dst IP, src port, dst port, protocol} is
// present in its set.
func (b *BloomSets) Match(hdr ring.CaptureHeader, srcMAC, dstMAC uint32) bool {
	vlanMatch := true
	if hdr.VlanID != noVlanSentinel {
		vlanMatch = b.vlan.Test(uint64(hdr.VlanID))
	}
	if !vlanMatch {
		return false
	}

	if b.mac.Test(uint64(srcMAC)) || b.mac.Test(uint64(dstMAC)) {
		return true
	}

	isIP := hdr.EthType == ethTypeIPv4
	if isIP {
		if b.ip.Test(uint64(hdr.IPv4Src)) || b.twinIP.Test(auxHash(hdr.IPv4Src)) {
			return true
		}
		if b.ip.Test(uint64(hdr.IPv4Dst)) || b.twinIP.Test(auxHash(hdr.IPv4Dst)) {
			return true
		}
		if hdr.L3Proto == protoTCP || hdr.L3Proto == protoUDP {
			if b.port.Test(uint64(hdr.L4SrcPort)) || b.twinPort.Test(auxHash(uint32(hdr.L4SrcPort))) {
				return true
			}
			if b.port.Test(uint64(hdr.L4DstPort)) || b.twinPort.Test(auxHash(uint32(hdr.L4DstPort))) {
				return true
			}
		}
		if b.proto.Test(uint64(hdr.L3Proto)) {
			return true
		}
	}
	return false
}

const (
	noVlanSentinel = 0xFFFF
	ethTypeIPv4    = 0x0800
	protoTCP       = 6
	protoUDP       = 17
)

// bloomSetNames pairs each bitmask with its status-surface label, in the
// fixed order the status line reports them.
func (b *BloomSets) bloomSetNames() []struct {
	name string
	set  *bitset.Bitmask
} {
	return []struct {
		name string
		set  *bitset.Bitmask
	}{
		{"mac", b.mac}, {"vlan", b.vlan}, {"ip", b.ip}, {"twin_ip", b.twinIP},
		{"port", b.port}, {"twin_port", b.twinPort}, {"proto", b.proto},
	}
}

// Summary reports each bloom set's populated member count and, for small
// sets, the member values themselves, by walking the set bits with
// Traverse rather than re-deriving membership some other way.
func (b *BloomSets) Summary() string {
	var parts []string
	for _, s := range b.bloomSetNames() {
		var members []uint64
		count := 0
		s.set.Traverse(func(bit uint64) bool {
			count++
			if len(members) < 8 { // cap the dump, just report the count past this
				members = append(members, bit)
			}
			return true
		})
		if count == 0 {
			continue
		}
		if count > len(members) {
			parts = append(parts, fmt.Sprintf("%s=%d", s.name, count))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d%v", s.name, count, members))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}
