package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringtap/ringtap/internal/ring"
)

func Test_BloomRuleUnknownTagIsInvalid(t *testing.T) {
	b := NewBloomSets()
	err := b.SetRule("+frobnicate=1")
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_BloomRuleMissingPrefixIsInvalid(t *testing.T) {
	b := NewBloomSets()
	err := b.SetRule("vlan=1")
	assert.ErrorIs(t, err, ErrInvalid)
}

// Test_Scenario5_VLANBloomFilter is spec.md §8 scenario 5: rule "+vlan=42"
// combined with "+ip=10.0.0.1" passes VLAN 42 frames from that address and
// drops VLAN 41 frames, since the VLAN check is a gate, not a match on its
// own (spec.md §4.2 step 6 requires the VLAN hit plus a mac/ip/port/proto hit).
func Test_Scenario5_VLANBloomFilter(t *testing.T) {
	b := NewBloomSets()
	b.SetEnabled(true)
	require.NoError(t, b.SetRule("+vlan=42"))
	require.NoError(t, b.SetRule("+ip=10.0.0.1"))

	pass := ring.CaptureHeader{VlanID: 42, EthType: ethTypeIPv4, IPv4Src: ipv4("10.0.0.1")}
	drop := ring.CaptureHeader{VlanID: 41, EthType: ethTypeIPv4, IPv4Src: ipv4("10.0.0.1")}

	assert.True(t, b.Match(pass, 0, 0))
	assert.False(t, b.Match(drop, 0, 0))
}

func Test_BloomUntaggedFramePassesVlanCheck(t *testing.T) {
	b := NewBloomSets()
	b.SetEnabled(true)
	require.NoError(t, b.SetRule("+vlan=42"))

	hdr := ring.CaptureHeader{VlanID: noVlanSentinel}
	// vlan check passes (no VLAN), but nothing else is in any set.
	assert.False(t, b.Match(hdr, 0, 0))
}

func Test_BloomIPRuleMatchesSrcAndDst(t *testing.T) {
	b := NewBloomSets()
	require.NoError(t, b.SetRule("+ip=10.0.0.1"))

	hdr := ring.CaptureHeader{EthType: ethTypeIPv4, IPv4Src: ipv4("10.0.0.1")}
	assert.True(t, b.Match(hdr, 0, 0))

	hdr2 := ring.CaptureHeader{EthType: ethTypeIPv4, IPv4Dst: ipv4("10.0.0.2")}
	assert.False(t, b.Match(hdr2, 0, 0))

	hdr3 := ring.CaptureHeader{EthType: ethTypeIPv4, IPv4Dst: ipv4("10.0.0.1")}
	assert.True(t, b.Match(hdr3, 0, 0))
}

func Test_BloomResetIsIdempotent(t *testing.T) {
	b := NewBloomSets()
	require.NoError(t, b.SetRule("+vlan=42"))
	b.Reset()
	b.Reset()
	assert.False(t, b.vlan.Test(42))
}

func ipv4(s string) uint32 {
	v, err := parseIPv4(s)
	if err != nil {
		panic(err)
	}
	return v
}
