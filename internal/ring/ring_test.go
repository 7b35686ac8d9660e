package ring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, bucketLen, numSlots uint32) *Ring {
	t.Helper()
	size := RegionSize(bucketLen, numSlots, 64) // small fake page size keeps test regions tiny
	region := make([]byte, size)
	r, err := New(region, bucketLen, numSlots, 1)
	require.NoError(t, err)
	return r
}

// Test_Scenario2_OverrunCounters is spec.md §8 scenario 2: 4 slots, 6
// frames produced with no consumer.
func Test_Scenario2_OverrunCounters(t *testing.T) {
	r := newTestRing(t, 64, 4)

	for i := 0; i < 6; i++ {
		r.Produce(CaptureHeader{Len: 10}, []byte("0123456789"))
	}

	stats := r.Stats()
	assert.Equal(t, uint64(6), stats.TotPkts)
	assert.Equal(t, uint64(4), stats.TotInsert)
	assert.Equal(t, uint64(2), stats.TotLost)
	assert.Equal(t, uint64(0), stats.InsertIdx, "wrapped exactly once over 4 slots")
	assert.Equal(t, stats.TotPkts, stats.TotInsert+stats.TotLost, "loss-accounting identity")
}

func Test_RoundTripPayload(t *testing.T) {
	r := newTestRing(t, 32, 4)

	payload := []byte("hello capture ring")
	ok := r.Produce(CaptureHeader{Len: uint32(len(payload)), VlanID: 42}, payload)
	require.True(t, ok)

	hdr, got, err := r.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, uint16(42), hdr.VlanID)
}

func Test_RoundTripTruncatesToDataLen(t *testing.T) {
	r := newTestRing(t, 4, 2)

	payload := []byte("this is way longer than 4 bytes")
	r.Produce(CaptureHeader{}, payload)

	_, got, err := r.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload[:4], got)
}

func Test_FIFOOrdering(t *testing.T) {
	r := newTestRing(t, 16, 8)

	for i := 0; i < 5; i++ {
		r.Produce(CaptureHeader{}, []byte{byte(i)})
	}

	for i := 0; i < 5; i++ {
		_, got, err := r.Consume(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, byte(i), got[0])
	}
}

func Test_ConsumeBlocksThenWakesOnProduce(t *testing.T) {
	r := newTestRing(t, 16, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, payload, err := r.Consume(ctx)
		if err == nil {
			got = payload
		}
	}()

	time.Sleep(20 * time.Millisecond) // give the consumer time to register as a waiter
	r.Produce(CaptureHeader{}, []byte("woke"))
	wg.Wait()

	assert.Equal(t, []byte("woke"), got)
}

func Test_ConsumeCanceledByContext(t *testing.T) {
	r := newTestRing(t, 16, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_TryConsumeEmptyRingReturnsFalse(t *testing.T) {
	r := newTestRing(t, 16, 4)
	_, _, ok := r.TryConsume()
	assert.False(t, ok)
}

func Test_NumQueuedNeverExceedsTotSlots(t *testing.T) {
	r := newTestRing(t, 8, 4)
	for i := 0; i < 10; i++ {
		r.Produce(CaptureHeader{}, []byte{byte(i)})
	}
	assert.LessOrEqual(t, r.NumQueued(), uint64(r.TotSlots()))
}

func Test_SamplingKeepsOneInN(t *testing.T) {
	r := newTestRing(t, 8, 64)
	r.sampleRate = 5
	r.sampleCountdown = 5

	kept := 0
	for i := 0; i < 100; i++ {
		if r.ShouldSample() {
			kept++
		}
	}
	assert.Equal(t, 20, kept, "spec.md §8 scenario 6: sample_rate=5 over 100 frames keeps 20")
}
