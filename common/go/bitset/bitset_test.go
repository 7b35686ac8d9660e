package bitset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_BitmaskSetClear(t *testing.T) {
	b := NewBitmask(1024)

	assert.False(t, b.Test(0))
	b.Set(0)
	b.Set(0)
	assert.True(t, b.Test(0))

	b.Clear(0)
	assert.True(t, b.Test(0), "a second live insertion keeps the bit set")

	b.Clear(0)
	assert.False(t, b.Test(0), "the last insertion clears the bit")
}

func Test_BitmaskClearUnsetIsNoop(t *testing.T) {
	b := NewBitmask(64)
	assert.NotPanics(t, func() { b.Clear(5) })
	assert.False(t, b.Test(5))
}

func Test_BitmaskResetIdempotent(t *testing.T) {
	b := NewBitmask(128)
	b.Set(3)
	b.Set(3)
	b.Set(70)

	b.Reset()
	first := slices.Collect(func(yield func(uint64) bool) {
		b.Traverse(yield)
	})

	b.Reset()
	second := slices.Collect(func(yield func(uint64) bool) {
		b.Traverse(yield)
	})

	assert.Empty(t, first)
	assert.Equal(t, first, second)
}

func Test_BitmaskWrapsModuloNumBits(t *testing.T) {
	b := NewBitmask(8)
	b.Set(10) // 10 mod 8 == 2
	assert.True(t, b.Test(2))
	assert.True(t, b.Test(10))
}

func Test_BitmaskTraverseAscending(t *testing.T) {
	b := NewBitmask(1024)
	b.Set(512)
	b.Set(0)
	b.Set(42)

	var bits []uint64
	b.Traverse(func(idx uint64) bool {
		bits = append(bits, idx)
		return true
	})

	assert.Equal(t, []uint64{0, 42, 512}, bits)
}

func Test_BitsTraverser(t *testing.T) {
	bits := slices.Collect(NewBitsTraverser(0b101).Iter())
	assert.Equal(t, []uint32{0, 2}, bits)
}
