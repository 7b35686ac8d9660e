// Package ring implements the shared-memory capture ring from spec.md §3-4.1:
// a single-producer/single-consumer circular buffer with a compact header
// followed by N fixed-size slots. The producer is the dispatch pipeline
// (internal/capture), possibly invoked from many goroutines concurrently
// serialized by the ring's own index lock; the consumer is a single
// userland-style reader goroutine per spec.md §5.
package ring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Slot state values. A slot is owned by the producer while SlotEmpty and by
// the consumer while SlotFull; ownership transfer is a single atomic store
// with release semantics (spec.md §3 Invariants).
const (
	SlotEmpty uint32 = 0
	SlotFull  uint32 = 1
)

const slotStateSize = 4 // one atomic uint32, not a single byte, to keep every field naturally aligned

// align4 rounds off up to the next 4-byte boundary, matching the dataplane
// alignment convention used throughout this package's layout.
func align4(off int) int {
	return (off + 3) &^ 3
}

// SlotLen computes the per-slot size for a given payload capacity
// (bucket_len from spec.md §6's module parameters).
func SlotLen(bucketLen uint32) uint32 {
	return uint32(align4(slotStateSize + captureHeaderSize + int(bucketLen)))
}

// RegionSize computes tot_mem for a ring sized to hold numSlots slots of
// bucketLen payload capacity each, rounded up to a page boundary.
func RegionSize(bucketLen, numSlots uint32, pageSize int) uint64 {
	raw := uint64(headerSize) + uint64(SlotLen(bucketLen))*uint64(numSlots)
	if pageSize <= 0 {
		pageSize = 4096
	}
	pages := (raw + uint64(pageSize) - 1) / uint64(pageSize)
	return pages * uint64(pageSize)
}

// Ring is the slot buffer described in spec.md §3-4.1. It operates on a
// caller-provided byte region (typically an mmap'd, page-locked mapping
// allocated by internal/capture.Bind) so this package stays agnostic of how
// the backing memory was obtained — mmap'd shared memory in production,
// a plain make([]byte, ...) in tests.
type Ring struct {
	region []byte
	h      *header

	slotLen  uint32
	dataLen  uint32
	totSlots uint32

	// mu is the ring's index write-lock (spec.md §4.2 "Concurrency"):
	// producers hold it around index increments, counter updates, and the
	// in-slot payload write, serializing producers on the same ring.
	mu sync.Mutex

	waiters int32
	wakeCh  chan struct{}

	sampleRate      uint32
	sampleCountdown uint32
	sampleMu        sync.Mutex
}

// New lays out a fresh ring over region: a FlowSlotInfo header followed by
// numSlots slots of bucketLen payload capacity each. region must be at
// least RegionSize(bucketLen, numSlots, pageSize) bytes and is assumed to
// be zeroed (true for a freshly mmap'd or made region), since the mutable
// counters start implicitly at zero.
func New(region []byte, bucketLen, numSlots, sampleRate uint32) (*Ring, error) {
	slotLen := SlotLen(bucketLen)
	need := uint64(headerSize) + uint64(slotLen)*uint64(numSlots)
	if uint64(len(region)) < need {
		return nil, fmt.Errorf("ring: region of %d bytes too small for %d slots of %d bytes (need %d)",
			len(region), numSlots, slotLen, need)
	}

	h := newHeader(region)
	h.initialize(1, slotLen, bucketLen, numSlots, uint64(len(region)), sampleRate)

	r := &Ring{
		region:          region,
		h:               h,
		slotLen:         slotLen,
		dataLen:         bucketLen,
		totSlots:        numSlots,
		wakeCh:          make(chan struct{}, 1),
		sampleRate:      sampleRate,
		sampleCountdown: sampleRate,
	}
	return r, nil
}

// Attach wraps an already-initialized region (e.g. one mapped from an
// existing producer) without resetting its header.
func Attach(region []byte) (*Ring, error) {
	if len(region) < headerSize {
		return nil, fmt.Errorf("ring: region of %d bytes too small for header", len(region))
	}
	h := newHeader(region)
	slotLen := h.SlotLen()
	totSlots := h.TotSlots()
	if slotLen == 0 || totSlots == 0 {
		return nil, fmt.Errorf("ring: region is not an initialized ring (slot_len=%d tot_slots=%d)", slotLen, totSlots)
	}
	return &Ring{
		region:          region,
		h:               h,
		slotLen:         slotLen,
		dataLen:         h.DataLen(),
		totSlots:        totSlots,
		wakeCh:          make(chan struct{}, 1),
		sampleRate:      h.SampleRate(),
		sampleCountdown: h.SampleRate(),
	}, nil
}

func (r *Ring) slotOffset(i uint64) int {
	return headerSize + int(i)*int(r.slotLen)
}

func (r *Ring) stateOf(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.region[off]))
}

func (r *Ring) capHeaderBytes(off int) []byte {
	start := off + slotStateSize
	return r.region[start : start+captureHeaderSize]
}

func (r *Ring) payloadBytes(off int) []byte {
	start := off + slotStateSize + captureHeaderSize
	return r.region[start : start+int(r.dataLen)]
}

// Produce implements spec.md §4.1 "Produce". It reports whether the frame
// was enqueued; a false return means the slot was still full and tot_lost
// was incremented — overrun is not an error (spec.md §7).
//
// tot_pkts is incremented here too, in the same critical section as
// tot_insert/tot_lost, so that spec.md §8's loss-accounting identity
// (tot_pkts = tot_insert + tot_lost) holds unconditionally for every call
// to Produce. Frames dropped earlier by a filter stage, before Produce is
// ever called, are tracked by the dispatch pipeline's own counters
// (internal/capture), not by the ring header — see DESIGN.md.
func (r *Ring) Produce(hdr CaptureHeader, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	atomic.AddUint64(r.h.totPkts, 1)

	i := atomic.LoadUint64(r.h.insertIdx)
	off := r.slotOffset(i)
	statePtr := r.stateOf(off)

	if atomic.LoadUint32(statePtr) != SlotEmpty {
		atomic.AddUint64(r.h.totLost, 1)
		return false
	}

	hdr.CapLen = uint32(min(len(payload), int(r.dataLen)))
	encodeCaptureHeader(r.capHeaderBytes(off), &hdr)
	copy(r.payloadBytes(off), payload[:hdr.CapLen])

	next := (i + 1) % uint64(r.totSlots)

	// Publish with release ordering: readers must not observe the header
	// or payload bytes before observing slot_state = 1.
	atomic.StoreUint32(statePtr, SlotFull)
	atomic.StoreUint64(r.h.insertIdx, next)
	atomic.AddUint64(r.h.totInsert, 1)

	r.wake()
	return true
}

func (r *Ring) wake() {
	if atomic.LoadInt32(&r.waiters) <= 0 {
		return
	}
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// TryConsume implements spec.md §4.1 "Consume" without blocking: it returns
// ok=false immediately if remove_idx's slot is not yet full.
func (r *Ring) TryConsume() (hdr CaptureHeader, payload []byte, ok bool) {
	i := atomic.LoadUint64(r.h.removeIdx)
	off := r.slotOffset(i)
	statePtr := r.stateOf(off)

	if atomic.LoadUint32(statePtr) != SlotFull {
		return CaptureHeader{}, nil, false
	}

	hdr = decodeCaptureHeader(r.capHeaderBytes(off))
	payload = append([]byte(nil), r.payloadBytes(off)[:hdr.CapLen]...)

	// Release the slot back to the producer only after the copy above has
	// completed.
	atomic.StoreUint32(statePtr, SlotEmpty)
	next := (i + 1) % uint64(r.totSlots)
	atomic.StoreUint64(r.h.removeIdx, next)
	atomic.AddUint64(r.h.totRead, 1)

	return hdr, payload, true
}

// Consume blocks on the ring's wait-queue until a slot is ready or ctx is
// canceled, standing in for PF_RING's interruptible wait (spec.md §4.1
// "Blocking", §5 "Cancellation").
func (r *Ring) Consume(ctx context.Context) (CaptureHeader, []byte, error) {
	for {
		if hdr, payload, ok := r.TryConsume(); ok {
			return hdr, payload, nil
		}

		atomic.AddInt32(&r.waiters, 1)
		select {
		case <-r.wakeCh:
			atomic.AddInt32(&r.waiters, -1)
		case <-ctx.Done():
			atomic.AddInt32(&r.waiters, -1)
			return CaptureHeader{}, nil, ctx.Err()
		}
	}
}

// ShouldSample reports whether the next accepted frame should pass
// sampling, implementing spec.md §4.2 step 3: decrement a per-ring
// countdown, drop until it reaches zero, then reset to sample_rate. A
// sample_rate of 0 or 1 means "capture everything".
func (r *Ring) ShouldSample() bool {
	if r.sampleRate <= 1 {
		return true
	}
	r.sampleMu.Lock()
	defer r.sampleMu.Unlock()
	r.sampleCountdown--
	if r.sampleCountdown == 0 {
		r.sampleCountdown = r.sampleRate
		return true
	}
	return false
}

// NumQueued returns tot_insert - tot_read using explicit, documented
// modular (unsigned 64-bit) arithmetic: both counters are monotonically
// non-decreasing uint64s in this implementation (unlike the 32-bit counters
// of the original, whose num_queued_pkts relies on 32-bit wraparound — see
// spec.md §9). Subtraction remains correct even if both
// counters individually wrap past 2^64, since unsigned subtraction is
// modular.
func (r *Ring) NumQueued() uint64 {
	return r.h.TotInsert() - r.h.TotRead()
}

// Stats is a snapshot of the ring's counters for the status surface
// (spec.md §6).
type Stats struct {
	Version    uint32
	SlotLen    uint32
	DataLen    uint32
	TotSlots   uint32
	TotMem     uint64
	SampleRate uint32
	InsertIdx  uint64
	RemoveIdx  uint64
	TotPkts    uint64
	TotLost    uint64
	TotInsert  uint64
	TotRead    uint64
}

// Stats returns a consistent-enough snapshot of the ring's counters. It is
// read-only and safe to call concurrently with Produce/Consume.
func (r *Ring) Stats() Stats {
	return Stats{
		Version:    r.h.Version(),
		SlotLen:    r.h.SlotLen(),
		DataLen:    r.h.DataLen(),
		TotSlots:   r.h.TotSlots(),
		TotMem:     r.h.TotMem(),
		SampleRate: r.h.SampleRate(),
		InsertIdx:  r.h.InsertIdx(),
		RemoveIdx:  r.h.RemoveIdx(),
		TotPkts:    r.h.TotPkts(),
		TotLost:    r.h.TotLost(),
		TotInsert:  r.h.TotInsert(),
		TotRead:    r.h.TotRead(),
	}
}

// TotSlots returns the fixed slot count for this ring's lifetime.
func (r *Ring) TotSlots() uint32 { return r.totSlots }

// SlotLen returns the fixed per-slot size for this ring's lifetime.
func (r *Ring) SlotLen() uint32 { return r.slotLen }

// DataLen returns the payload capacity (bucket_len) of each slot.
func (r *Ring) DataLen() uint32 { return r.dataLen }
