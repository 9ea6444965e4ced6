package blockcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfs-project/tinyfs/blockcache"
	"github.com/tfs-project/tinyfs/blockdev"
)

func TestManager_GetReturnsSameCacheForSameBlock(t *testing.T) {
	dev := blockdev.NewMemDevice(4)
	mgr := blockcache.NewManager(dev)

	a := mgr.Get(1)
	b := mgr.Get(1)
	assert.Same(t, a.Cache(), b.Cache())
	a.Release()
	b.Release()
}

func TestManager_WriteIsVisibleAfterSync(t *testing.T) {
	dev := blockdev.NewMemDevice(2)
	mgr := blockcache.NewManager(dev)

	handle := mgr.Get(0)
	handle.Cache().Modify(0, func(buf []byte) {
		buf[0] = 0xAB
	})
	handle.Release()
	mgr.SyncAll()

	raw := make([]byte, blockdev.BlockSize)
	dev.ReadBlock(0, raw)
	assert.EqualValues(t, 0xAB, raw[0])
}

func TestManager_EvictsUnreferencedEntryWhenFull(t *testing.T) {
	dev := blockdev.NewMemDevice(blockcache.Capacity + 1)
	mgr := blockcache.NewManager(dev)

	for i := uint32(0); i < blockcache.Capacity; i++ {
		h := mgr.Get(i)
		h.Release()
	}

	// Pool is full but every entry is unreferenced, so this must evict one
	// rather than panicking.
	h := mgr.Get(blockcache.Capacity)
	h.Release()
}

func TestManager_PanicsWhenPoolExhaustedByLiveHandles(t *testing.T) {
	dev := blockdev.NewMemDevice(blockcache.Capacity + 1)
	mgr := blockcache.NewManager(dev)

	handles := make([]*blockcache.Handle, blockcache.Capacity)
	for i := uint32(0); i < blockcache.Capacity; i++ {
		handles[i] = mgr.Get(i)
	}

	assert.Panics(t, func() { mgr.Get(blockcache.Capacity) })

	for _, h := range handles {
		h.Release()
	}
	require.Len(t, handles, blockcache.Capacity)
}
