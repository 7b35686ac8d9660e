package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRuntime(t *testing.T, transparent, enableTx bool) *Runtime {
	t.Helper()
	cfg := Config{TransparentMode: transparent, EnableTxCapture: enableTx}
	return NewRuntime(cfg, zap.NewNop().Sugar())
}

func udpFrame(vlan uint16, payload []byte) []byte {
	// Untagged Ethernet + IPv4 + UDP header, enough for packet.Parse.
	frame := make([]byte, 14+20+8+len(payload))
	// EtherType IPv4
	frame[12], frame[13] = 0x08, 0x00
	ipStart := 14
	frame[ipStart] = 0x45 // version 4, IHL 5
	frame[ipStart+9] = 17 // UDP
	udpStart := ipStart + 20
	frame[udpStart], frame[udpStart+1] = 0x00, 80 // src port 80
	frame[udpStart+2], frame[udpStart+3] = 0x1f, 0x90
	copy(frame[udpStart+8:], payload)
	return frame
}

func Test_OnFrameEnqueuesToMatchingDevice(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	rt.AddRing(sock)

	consumed := rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, nil), DirectionRX, true)
	assert.False(t, consumed, "transparent mode never consumes")
	assert.Equal(t, uint64(1), sock.Stats().Ring.TotInsert)
}

func Test_OnFrameSkipsNonMatchingDevice(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth1"}, udpFrame(0, nil), DirectionRX, true)
	assert.Equal(t, uint64(0), sock.Stats().Ring.TotInsert)
}

func Test_OnFrameOpaqueModeConsumesRealFrames(t *testing.T) {
	rt := newTestRuntime(t, false, true)
	sock := newTestSocket(t, "eth0")
	rt.AddRing(sock)

	consumed := rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, nil), DirectionRX, true)
	assert.True(t, consumed)
}

func Test_OnFrameDropsTXWhenTxCaptureDisabled(t *testing.T) {
	rt := newTestRuntime(t, true, false)
	sock := newTestSocket(t, "eth0")
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, nil), DirectionTX, true)
	assert.Equal(t, uint64(0), sock.Stats().Ring.TotInsert)
}

func Test_OnFrameDropsOnBloomMismatch(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	sock.Bloom.SetEnabled(true)
	require.NoError(t, sock.Bloom.SetRule("+vlan=42"))
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, nil), DirectionRX, true)
	assert.Equal(t, uint64(0), sock.Stats().Ring.TotInsert)
	assert.Equal(t, uint64(1), sock.Stats().BloomDropped)
}

func Test_MatcherDropsFrameWithoutPatternMatch(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	require.NoError(t, rt.Apply(sock, OptSetString, "evil"))
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, []byte("hello world")), DirectionRX, true)
	assert.Equal(t, uint64(0), sock.Stats().Ring.TotInsert)
	assert.Equal(t, uint64(1), sock.Stats().MatcherDropped)
}

func Test_MatcherAllowsFrameWithPatternMatch(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	require.NoError(t, rt.Apply(sock, OptSetString, "evil"))
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, []byte("totally evil payload")), DirectionRX, true)
	assert.Equal(t, uint64(1), sock.Stats().Ring.TotInsert)
}

func Test_FilterDropStillTracksSeenButNotRing(t *testing.T) {
	rt := newTestRuntime(t, true, true)
	sock := newTestSocket(t, "eth0")
	prog, err := Compile([]Instruction{
		{Op: OpLoadVlan}, {Op: OpJEQ, K: 99, Jt: 0, Jf: 1}, {Op: OpRet, K: 1}, {Op: OpRet, K: 0},
	})
	require.NoError(t, err)
	sock.Filter = prog
	rt.AddRing(sock)

	rt.OnFrame(Device{Name: "eth0"}, udpFrame(0, nil), DirectionRX, true)
	stats := sock.Stats()
	assert.Equal(t, uint64(1), stats.TotalSeen)
	assert.Equal(t, uint64(1), stats.FilterDropped)
	assert.Equal(t, uint64(0), stats.Ring.TotPkts, "ring-level tot_pkts excludes filter-rejected frames")
}
