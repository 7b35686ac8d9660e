package ring

import (
	"sync/atomic"
	"unsafe"
)

// headerLayout is the on-wire shape of FlowSlotInfo from spec.md §3. Fields
// are fixed-width and placed at hand-assigned, 4-byte-aligned offsets so
// that atomic.*32/*64 operations on pointers derived from the backing
// mmap'd region are valid on every architecture we build for.
//
//	offset  field
//	0       version      uint32
//	4       slot_len     uint32
//	8       data_len     uint32
//	12      tot_slots    uint32
//	16      tot_mem      uint64
//	24      insert_idx   uint64
//	32      remove_idx   uint64
//	40      tot_pkts     uint64
//	48      tot_lost     uint64
//	56      tot_insert   uint64
//	64      tot_read     uint64
//	72      sample_rate  uint32
//	76      (padding)
const headerSize = 80

// header is a set of pointers into the ring's backing byte region, one per
// FlowSlotInfo field. It owns no memory itself: Attach derives it from a
// region allocated or mapped by the caller.
type header struct {
	version    *uint32
	slotLen    *uint32
	dataLen    *uint32
	totSlots   *uint32
	totMem     *uint64
	insertIdx  *uint64
	removeIdx  *uint64
	totPkts    *uint64
	totLost    *uint64
	totInsert  *uint64
	totRead    *uint64
	sampleRate *uint32
}

func newHeader(region []byte) *header {
	if len(region) < headerSize {
		panic("ring: region too small for header")
	}
	at := func(off int) unsafe.Pointer {
		return unsafe.Pointer(&region[off])
	}
	return &header{
		version:    (*uint32)(at(0)),
		slotLen:    (*uint32)(at(4)),
		dataLen:    (*uint32)(at(8)),
		totSlots:   (*uint32)(at(12)),
		totMem:     (*uint64)(at(16)),
		insertIdx:  (*uint64)(at(24)),
		removeIdx:  (*uint64)(at(32)),
		totPkts:    (*uint64)(at(40)),
		totLost:    (*uint64)(at(48)),
		totInsert:  (*uint64)(at(56)),
		totRead:    (*uint64)(at(64)),
		sampleRate: (*uint32)(at(72)),
	}
}

// initialize writes the fixed, never-again-mutated fields (version,
// slot_len, data_len, tot_slots, tot_mem, sample_rate). The mutable
// counters (indices, packet counters) start at zero because the backing
// region is freshly allocated/mapped and therefore already zeroed.
func (h *header) initialize(version, slotLen, dataLen, totSlots uint32, totMem uint64, sampleRate uint32) {
	atomic.StoreUint32(h.version, version)
	atomic.StoreUint32(h.slotLen, slotLen)
	atomic.StoreUint32(h.dataLen, dataLen)
	atomic.StoreUint32(h.totSlots, totSlots)
	atomic.StoreUint64(h.totMem, totMem)
	atomic.StoreUint32(h.sampleRate, sampleRate)
}

func (h *header) Version() uint32    { return atomic.LoadUint32(h.version) }
func (h *header) SlotLen() uint32    { return atomic.LoadUint32(h.slotLen) }
func (h *header) DataLen() uint32    { return atomic.LoadUint32(h.dataLen) }
func (h *header) TotSlots() uint32   { return atomic.LoadUint32(h.totSlots) }
func (h *header) TotMem() uint64     { return atomic.LoadUint64(h.totMem) }
func (h *header) SampleRate() uint32 { return atomic.LoadUint32(h.sampleRate) }

func (h *header) InsertIdx() uint64 { return atomic.LoadUint64(h.insertIdx) }
func (h *header) RemoveIdx() uint64 { return atomic.LoadUint64(h.removeIdx) }
func (h *header) TotPkts() uint64   { return atomic.LoadUint64(h.totPkts) }
func (h *header) TotLost() uint64   { return atomic.LoadUint64(h.totLost) }
func (h *header) TotInsert() uint64 { return atomic.LoadUint64(h.totInsert) }
func (h *header) TotRead() uint64   { return atomic.LoadUint64(h.totRead) }

// HeaderSize returns the fixed size in bytes of the FlowSlotInfo region
// preceding slot 0, as used by spec.md §3's layout table.
func HeaderSize() int { return headerSize }
