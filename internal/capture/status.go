package capture

import (
	"fmt"
	"strings"
)

// Status returns the process-visible status surface: module parameters,
// ring count, and a per-ring textual summary (spec.md §2 "Process-visible
// status surface").
func (rt *Runtime) Status() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "transparent_mode=%v enable_tx_capture=%v rings=%d clusters=%d\n",
		rt.transparentMode, rt.enableTxCapture, len(rt.rings), len(rt.clusters))

	for _, sock := range rt.rings {
		writeRingStatus(&b, sock)
	}
	for _, c := range rt.clusters {
		c.mu.RLock()
		for _, sock := range c.members {
			writeRingStatus(&b, sock)
		}
		c.mu.RUnlock()
	}
	return b.String()
}

func writeRingStatus(b *strings.Builder, sock *Socket) {
	stats := sock.Stats()
	fmt.Fprintf(b,
		"ring=%s device=%s cluster=%d version=%d sample_rate=%d tot_slots=%d slot_len=%d data_len=%d tot_mem=%d tot_pkts=%d tot_lost=%d tot_insert=%d tot_read=%d filter_dropped=%d sample_dropped=%d bloom_dropped=%d matcher_dropped=%d reflected=%d\n",
		sock.Name, sock.Device.Name, sock.ClusterID,
		stats.Ring.Version, stats.Ring.SampleRate, stats.Ring.TotSlots, stats.Ring.SlotLen, stats.Ring.DataLen, stats.Ring.TotMem,
		stats.Ring.TotPkts, stats.Ring.TotLost, stats.Ring.TotInsert, stats.Ring.TotRead,
		stats.FilterDropped, stats.SampleDropped, stats.BloomDropped, stats.MatcherDropped, stats.Reflected,
	)
	fmt.Fprintf(b, "ring=%s bloom %s\n", sock.Name, sock.Bloom.Summary())
}
