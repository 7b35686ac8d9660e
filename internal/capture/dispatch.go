package capture

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ringtap/ringtap/internal/acsm"
	"github.com/ringtap/ringtap/internal/packet"
	"github.com/ringtap/ringtap/internal/ring"
)

// Runtime is the top-level capture runtime: spec.md §9's "Globals → passed
// context" redesign note turns the free-standing lists of rings and
// clusters into fields of one value threaded through every operation
// instead of package-level state.
type Runtime struct {
	// mu is the global management lock (spec.md §5 "Locking discipline"):
	// held as reader throughout dispatch, as writer for
	// create/bind/destroy/cluster-mutate.
	mu sync.RWMutex

	rings    []*Socket          // unclustered rings
	clusters map[uint16]*Cluster

	transparentMode bool
	enableTxCapture bool

	log *zap.SugaredLogger

	reflectedOnce sync.Map // device name -> struct{}, for "log once per transition"
}

// NewRuntime builds an empty capture runtime from module parameters
// (spec.md §6 "Module parameters").
func NewRuntime(cfg Config, log *zap.SugaredLogger) *Runtime {
	return &Runtime{
		clusters:        make(map[uint16]*Cluster),
		transparentMode: cfg.TransparentMode,
		enableTxCapture: cfg.EnableTxCapture,
		log:             log,
	}
}

// Direction distinguishes the frame's RX/TX path (spec.md §4.2 inputs).
type Direction uint8

const (
	DirectionRX Direction = iota
	DirectionTX
)

// AddRing registers an unclustered socket with the runtime.
func (rt *Runtime) AddRing(sock *Socket) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.rings = append(rt.rings, sock)
}

// RemoveRing unregisters a socket, e.g. on release.
func (rt *Runtime) RemoveRing(sock *Socket) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, s := range rt.rings {
		if s == sock {
			rt.rings = append(rt.rings[:i], rt.rings[i+1:]...)
			return
		}
	}
}

// Cluster looks up a cluster by id, creating it if it does not exist yet
// (spec.md §3 "Lifecycle": "created on first member join").
func (rt *Runtime) Cluster(id uint16, mode HashMode) *Cluster {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c, ok := rt.clusters[id]
	if !ok {
		c = NewCluster(id, mode)
		rt.clusters[id] = c
	}
	return c
}

// LeaveCluster removes sock from the cluster identified by id, destroying
// the cluster if it is now empty (spec.md §3 "Lifecycle").
func (rt *Runtime) LeaveCluster(id uint16, sock *Socket) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c, ok := rt.clusters[id]
	if !ok {
		return
	}
	if c.Leave(sock) {
		delete(rt.clusters, id)
	}
}

// OnFrame is the dispatch entry point (spec.md §6): for each intercepted
// frame, selects candidate rings/cluster members and enqueues. It returns
// true only in opaque mode, when real is set and at least one ring accepted
// the frame, telling the caller to free it; in transparent mode it always
// returns false.
func (rt *Runtime) OnFrame(dev Device, frame []byte, dir Direction, real bool) bool {
	if !rt.enableTxCapture && dir == DirectionTX {
		return false
	}

	hdr := packet.Parse(frame)
	hdr.Len = uint32(len(frame))
	srcMAC, dstMAC := ethernetMACs(frame)

	rt.mu.RLock()
	defer rt.mu.RUnlock()

	consumed := false

	for _, sock := range rt.rings {
		if sock.MatchesDevice(dev) {
			if rt.enqueue(sock, hdr, frame, srcMAC, dstMAC) {
				consumed = true
			}
		}
	}

	for _, c := range rt.clusters {
		member, ok := c.Select(hdr, srcMAC, dstMAC)
		if !ok {
			continue
		}
		if member.MatchesDevice(dev) {
			if rt.enqueue(member, hdr, frame, srcMAC, dstMAC) {
				consumed = true
			}
		}
	}

	if !rt.transparentMode && consumed && real {
		return true
	}
	return false
}

// OnRawBuffer synthesizes a lightweight RX frame descriptor and calls
// OnFrame, for callers that only have a raw device + byte buffer (spec.md
// §6 "on_raw_buffer").
func (rt *Runtime) OnRawBuffer(dev Device, data []byte) bool {
	return rt.OnFrame(dev, data, DirectionRX, false)
}

// enqueue runs the per-ring filter pipeline from spec.md §4.2 "Enqueue":
// byte-code filter -> sampling -> reflector -> bloom -> AC, in that fixed
// order (spec.md §9 "Filter polymorphism").
func (rt *Runtime) enqueue(sock *Socket, hdr ring.CaptureHeader, frame []byte, srcMAC, dstMAC uint32) bool {
	atomic.AddUint64(&sock.totalSeen, 1)

	if sock.Filter != nil && !sock.Filter.Eval(hdr) {
		atomic.AddUint64(&sock.filterDropped, 1)
		return false
	}

	if !sock.Ring.ShouldSample() {
		atomic.AddUint64(&sock.sampleDropped, 1)
		return false
	}

	if sock.Reflector != nil {
		if rt.reflect(sock, *sock.Reflector, frame) {
			atomic.AddUint64(&sock.reflected, 1)
			return true
		}
	}

	if sock.Bloom.Enabled() {
		if !sock.Bloom.Match(hdr, srcMAC, dstMAC) {
			atomic.AddUint64(&sock.bloomDropped, 1)
			return false
		}
	}

	if sock.Matcher != nil && shouldRunMatcher(hdr) {
		payload := payloadSlice(frame, hdr)
		if len(payload) > 0 {
			matched := false
			err := sock.Matcher.Search(payload, func(acsm.Match) bool {
				matched = true
				return false
			})
			_ = err
			if !matched {
				atomic.AddUint64(&sock.matcherDropped, 1)
				return false
			}
		}
	}

	return sock.Ring.Produce(hdr, frame)
}

// shouldRunMatcher implements spec.md §4.2 step 7: the AC matcher only
// runs on TCP/UDP frames with source or destination port 80 and a
// non-empty payload.
func shouldRunMatcher(hdr ring.CaptureHeader) bool {
	if hdr.PayloadOffset == 0 {
		return false
	}
	return hdr.L4SrcPort == 80 || hdr.L4DstPort == 80
}

func payloadSlice(frame []byte, hdr ring.CaptureHeader) []byte {
	if int(hdr.PayloadOffset) >= len(frame) {
		return nil
	}
	return frame[hdr.PayloadOffset:]
}

// ethernetMACs extracts the source/destination MAC addresses folded into a
// single uint32 each, matching the original's addition of the six octets
// (spec.md §4.2 step 6 uses these as bloom keys).
func ethernetMACs(frame []byte) (src, dst uint32) {
	if len(frame) < 12 {
		return 0, 0
	}
	dst = foldMAC(frame[0:6])
	src = foldMAC(frame[6:12])
	return src, dst
}

func foldMAC(mac []byte) uint32 {
	return uint32(mac[0]) + uint32(mac[1]) + uint32(mac[2])<<24 + uint32(mac[3])<<16 + uint32(mac[4])<<8 + uint32(mac[5])
}

// reflect transmits frame through dev's transmit path. Transmit failures
// are logged once per transition and the frame proceeds into the ring as
// if no reflector were set (spec.md §7).
func (rt *Runtime) reflect(sock *Socket, dev Device, frame []byte) bool {
	ok := transmit(dev, frame)
	if !ok {
		if _, logged := rt.reflectedOnce.LoadOrStore(dev.Name, struct{}{}); !logged {
			rt.log.Warnw("reflector transmit failed", "device", dev.Name, "socket", sock.Name)
		}
		return false
	}
	rt.reflectedOnce.Delete(dev.Name)
	return true
}
