package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfs-project/tinyfs/bitmap"
	"github.com/tfs-project/tinyfs/blockcache"
	"github.com/tfs-project/tinyfs/blockdev"
)

func newManager(t *testing.T, blocks uint32) *blockcache.Manager {
	dev := blockdev.NewMemDevice(blocks)
	return blockcache.NewManager(dev)
}

func TestBitmap_AllocIsFirstFit(t *testing.T) {
	mgr := newManager(t, 2)
	bm := bitmap.New(0, 1)

	first, ok := bm.Alloc(mgr)
	require.True(t, ok)
	assert.EqualValues(t, 0, first)

	second, ok := bm.Alloc(mgr)
	require.True(t, ok)
	assert.EqualValues(t, 1, second)
}

func TestBitmap_DeallocThenRealloc(t *testing.T) {
	mgr := newManager(t, 2)
	bm := bitmap.New(0, 1)

	bit, ok := bm.Alloc(mgr)
	require.True(t, ok)

	bm.Dealloc(mgr, bit)

	reused, ok := bm.Alloc(mgr)
	require.True(t, ok)
	assert.Equal(t, bit, reused)
}

func TestBitmap_DoubleFreePanics(t *testing.T) {
	mgr := newManager(t, 2)
	bm := bitmap.New(0, 1)

	bit, ok := bm.Alloc(mgr)
	require.True(t, ok)
	bm.Dealloc(mgr, bit)

	assert.Panics(t, func() { bm.Dealloc(mgr, bit) })
}

func TestBitmap_ExhaustionReturnsNotOK(t *testing.T) {
	mgr := newManager(t, 2)
	bm := bitmap.New(0, 1)

	max := bm.Maximum()
	for i := uint32(0); i < max; i++ {
		_, ok := bm.Alloc(mgr)
		require.True(t, ok, "unexpected exhaustion at bit %d of %d", i, max)
	}

	_, ok := bm.Alloc(mgr)
	assert.False(t, ok, "expected exhaustion once every bit is allocated")
}

func TestBitmap_AllocSpansMultipleBlocksWithoutExhaustingCachePool(t *testing.T) {
	// Exercise a bitmap wider than the cache pool's capacity to make sure
	// Alloc releases each block's handle as it scans past it.
	const blocks = blockcache.Capacity + 4
	mgr := newManager(t, blocks+1)
	bm := bitmap.New(0, blocks)

	// Fill every bit in every block except the very last one.
	for i := uint32(0); i < (blocks-1)*4096; i++ {
		_, ok := bm.Alloc(mgr)
		require.True(t, ok)
	}

	bit, ok := bm.Alloc(mgr)
	require.True(t, ok)
	assert.GreaterOrEqual(t, bit, (blocks-1)*4096)
}
