package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ringtap/ringtap/internal/packet"
	"github.com/ringtap/ringtap/internal/ring"
)

// HashMode selects the per-cluster member-selection function (spec.md
// §4.2 step 3).
type HashMode uint8

const (
	HashRoundRobin HashMode = iota
	HashPerFlow
)

// maxClusterMembers is the hard cap from spec.md §3 "Cluster".
const maxClusterMembers = 8

// Cluster is a named group of up to 8 sockets sharing one dispatch
// selection function.
type Cluster struct {
	ID   uint16
	Mode HashMode

	mu      sync.RWMutex
	members []*Socket
	rr      uint32 // round-robin counter, advanced atomically
}

// NewCluster creates an empty cluster, created on first member join per
// spec.md §3 "Lifecycle".
func NewCluster(id uint16, mode HashMode) *Cluster {
	return &Cluster{ID: id, Mode: mode}
}

// Join adds sock as a member, enforcing the 8-member cap.
func (c *Cluster) Join(sock *Socket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.members) >= maxClusterMembers {
		return fmt.Errorf("%w: cluster %d already has %d members", ErrInvalid, c.ID, maxClusterMembers)
	}
	c.members = append(c.members, sock)
	return nil
}

// Leave removes sock from the cluster. Returns true if the cluster is now
// empty and should be destroyed (spec.md §3 "Lifecycle").
func (c *Cluster) Leave(sock *Socket) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.members {
		if m == sock {
			c.members = append(c.members[:i], c.members[i+1:]...)
			break
		}
	}
	return len(c.members) == 0
}

// Select picks the member that should receive frame, implementing spec.md
// §4.2 step 3's round_robin and per_flow hashing modes. srcMAC/dstMAC are
// only consulted for the non-IP fallback tier (see perFlowIndex).
func (c *Cluster) Select(hdr ring.CaptureHeader, srcMAC, dstMAC uint32) (*Socket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.members)
	if n == 0 {
		return nil, false
	}

	var idx uint32
	switch c.Mode {
	case HashRoundRobin:
		idx = atomic.AddUint32(&c.rr, 1) % uint32(n)
	case HashPerFlow:
		idx = perFlowIndex(hdr, srcMAC, dstMAC, n)
	}
	return c.members[idx], true
}

// perFlowIndex implements spec.md §4.2 step 3's "sum src_ip + dst_ip +
// proto + src_port + dst_port modulo member count", falling back in two
// tiers when the 5-tuple is unavailable: frames with an IPv4 header but no
// TCP/UDP payload fall back to packet length (named explicitly in
// spec.md); frames with no L3 header at all fall back to the sum of the
// source and destination MAC (a detail from original_source not named in
// spec.md's distillation, supplementing it per SPEC_FULL.md §12).
func perFlowIndex(hdr ring.CaptureHeader, srcMAC, dstMAC uint32, n int) uint32 {
	flow := packet.Flow(hdr)
	switch {
	case flow.HasFlow:
		sum := flow.SrcIP + flow.DstIP + uint32(flow.Proto) + uint32(flow.SrcPort) + uint32(flow.DstPort)
		return sum % uint32(n)
	case hdr.EthType == ethTypeIPv4:
		return hdr.Len % uint32(n)
	default:
		return (srcMAC + dstMAC) % uint32(n)
	}
}
