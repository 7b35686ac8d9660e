package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringtap/ringtap/internal/ring"
)

func newTestSocket(t *testing.T, name string) *Socket {
	t.Helper()
	region := make([]byte, ring.RegionSize(64, 64, 64))
	r, err := ring.New(region, 64, 64, 1)
	require.NoError(t, err)
	return NewSocket(name, r, Device{Name: name})
}

func flowHeader(srcIP, dstIP uint32, srcPort, dstPort uint16) ring.CaptureHeader {
	return ring.CaptureHeader{
		EthType:   0x0800,
		L3Proto:   17,
		IPv4Src:   srcIP,
		IPv4Dst:   dstIP,
		L4SrcPort: srcPort,
		L4DstPort: dstPort,
	}
}

// Test_Scenario4_PerFlowClusterSplit is spec.md §8 scenario 4: a cluster of
// 2 rings, per_flow hashing, fed 10 frames of flow A and 10 of flow B, each
// ring receives exactly one flow's frames.
func Test_Scenario4_PerFlowClusterSplit(t *testing.T) {
	c := NewCluster(1, HashPerFlow)
	a := newTestSocket(t, "a")
	b := newTestSocket(t, "b")
	require.NoError(t, c.Join(a))
	require.NoError(t, c.Join(b))

	flowA := flowHeader(10, 20, 1000, 2000) // 5-tuple sum 3047, odd
	flowB := flowHeader(30, 41, 3000, 4000) // 5-tuple sum 7088, even

	var flowAMembers, flowBMembers []*Socket
	for i := 0; i < 10; i++ {
		m, ok := c.Select(flowA, 0, 0)
		require.True(t, ok)
		flowAMembers = append(flowAMembers, m)

		m, ok = c.Select(flowB, 0, 0)
		require.True(t, ok)
		flowBMembers = append(flowBMembers, m)
	}

	for _, m := range flowAMembers {
		assert.Same(t, flowAMembers[0], m, "flow A always hashes to the same member")
	}
	for _, m := range flowBMembers {
		assert.Same(t, flowBMembers[0], m, "flow B always hashes to the same member")
	}
	assert.NotSame(t, flowAMembers[0], flowBMembers[0], "flow A and flow B must land on different rings")
}

func Test_ClusterJoinCapsAtEightMembers(t *testing.T) {
	c := NewCluster(1, HashRoundRobin)
	for i := 0; i < maxClusterMembers; i++ {
		require.NoError(t, c.Join(newTestSocket(t, "m")))
	}
	err := c.Join(newTestSocket(t, "overflow"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_ClusterRoundRobinCyclesMembers(t *testing.T) {
	c := NewCluster(1, HashRoundRobin)
	a := newTestSocket(t, "a")
	b := newTestSocket(t, "b")
	require.NoError(t, c.Join(a))
	require.NoError(t, c.Join(b))

	seen := map[*Socket]int{}
	for i := 0; i < 10; i++ {
		m, ok := c.Select(ring.CaptureHeader{}, 0, 0)
		require.True(t, ok)
		seen[m]++
	}
	assert.Equal(t, 5, seen[a])
	assert.Equal(t, 5, seen[b])
}

func Test_ClusterLeaveReportsEmpty(t *testing.T) {
	c := NewCluster(1, HashRoundRobin)
	a := newTestSocket(t, "a")
	require.NoError(t, c.Join(a))
	assert.True(t, c.Leave(a))
}

func Test_PerFlowFallsBackToLengthWithoutL4(t *testing.T) {
	hdr := ring.CaptureHeader{EthType: ethTypeIPv4, Len: 100}
	idx := perFlowIndex(hdr, 0, 0, 4)
	assert.Equal(t, uint32(0), idx)
}

func Test_PerFlowFallsBackToMACSumForNonIP(t *testing.T) {
	hdr := ring.CaptureHeader{}
	idx := perFlowIndex(hdr, 7, 3, 4)
	assert.Equal(t, uint32(10%4), idx)
}
