package capture

import (
	"sync/atomic"

	"github.com/ringtap/ringtap/internal/acsm"
	"github.com/ringtap/ringtap/internal/ring"
)

// Socket is RingOpt from spec.md §3: a capture socket bound to a device,
// owning one ring slot area and the filter stages applied to every frame
// selected for it.
type Socket struct {
	Name   string
	Ring   *ring.Ring
	Device Device

	// Reflector is the device a frame is retransmitted through (spec.md
	// §4.2 step 4). A frame reflected successfully is not enqueued; the
	// ring receives it only when the transmit fails. Nil disables
	// reflection.
	Reflector *Device

	Filter  *Program  // byte-code filter, nil if none attached
	Matcher *acsm.ACSM // AC payload matcher, nil if none attached
	Bloom   *BloomSets

	ClusterID uint16 // 0 = unclustered

	// Dispatch-level counters. These live outside the ring header
	// deliberately: tot_pkts inside the ring header only counts frames
	// that reach Ring.Produce, preserving spec.md §8's loss-accounting
	// identity (tot_pkts = tot_insert + tot_lost). Frames a filter stage
	// rejects before Produce is ever called are counted here instead.
	totalSeen      uint64
	filterDropped  uint64
	sampleDropped  uint64
	bloomDropped   uint64
	matcherDropped uint64
	reflected      uint64
}

// NewSocket wraps a bound ring into a dispatchable capture socket.
func NewSocket(name string, r *ring.Ring, dev Device) *Socket {
	return &Socket{
		Name:  name,
		Ring:  r,
		Device: dev,
		Bloom: NewBloomSets(),
	}
}

// SocketStats is the dispatch-level counter snapshot, complementing
// ring.Stats for the status surface (spec.md §6).
type SocketStats struct {
	TotalSeen      uint64
	FilterDropped  uint64
	SampleDropped  uint64
	BloomDropped   uint64
	MatcherDropped uint64
	Reflected      uint64
	Ring           ring.Stats
}

func (s *Socket) Stats() SocketStats {
	return SocketStats{
		TotalSeen:      atomic.LoadUint64(&s.totalSeen),
		FilterDropped:  atomic.LoadUint64(&s.filterDropped),
		SampleDropped:  atomic.LoadUint64(&s.sampleDropped),
		BloomDropped:   atomic.LoadUint64(&s.bloomDropped),
		MatcherDropped: atomic.LoadUint64(&s.matcherDropped),
		Reflected:      atomic.LoadUint64(&s.reflected),
		Ring:           s.Ring.Stats(),
	}
}

// MatchesDevice reports whether a frame arriving on dev should be
// considered for this socket: either a direct match, or dev is a slave of
// this socket's bound device (spec.md §4.2 step 2).
func (s *Socket) MatchesDevice(dev Device) bool {
	if s.Device.Name == dev.Name {
		return true
	}
	return dev.IsSlaveOf(s.Device.Name)
}
