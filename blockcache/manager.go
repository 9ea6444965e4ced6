package blockcache

import (
	"sync"

	"github.com/tfs-project/tinyfs/blockdev"
)

// Capacity is the maximum number of distinct blocks a Manager will hold at
// once. It is a hard limit, not a tunable: the filesystem's indirection
// walks are sized (at most ~3 concurrently touched blocks) to stay well
// inside it.
const Capacity = 16

type poolEntry struct {
	id    uint32
	cache *BlockCache
	refs  int
}

// Manager is a bounded pool of BlockCaches with reference-count-aware
// eviction. Per the design notes this module is grounded on, the pool is
// scoped to a single mounted image (one Manager per TinyFileSystem) rather
// than shared process-wide, so that unrelated mounts never evict each
// other's buffers.
type Manager struct {
	mu   sync.Mutex
	dev  blockdev.BlockDevice
	pool []*poolEntry
}

// NewManager creates an empty pool backed by dev.
func NewManager(dev blockdev.BlockDevice) *Manager {
	return &Manager{dev: dev}
}

// Handle is a reference-counted lease on a cached block. Callers must call
// Release exactly once when they're done with it; Go has no destructor to
// do this automatically.
type Handle struct {
	mgr   *Manager
	entry *poolEntry
}

// Cache returns the underlying BlockCache. It stays valid only as long as
// the handle hasn't been released.
func (h *Handle) Cache() *BlockCache {
	return h.entry.cache
}

// Release decrements the handle's reference count, making the block
// eligible for eviction once no other handle references it.
func (h *Handle) Release() {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	h.entry.refs--
}

// Get returns a handle to the cached copy of block id, loading it from the
// device on a miss. If the pool is full and every entry is referenced by
// some other live handle, this panics — per spec, that represents a broken
// invariant in the caller (an indirection walk holding more blocks than the
// budget allows), not a recoverable condition.
func (m *Manager) Get(id uint32) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.pool {
		if entry.id == id {
			entry.refs++
			return &Handle{mgr: m, entry: entry}
		}
	}

	if len(m.pool) >= Capacity {
		evictIndex := -1
		for i, entry := range m.pool {
			if entry.refs == 0 {
				evictIndex = i
				break
			}
		}
		if evictIndex == -1 {
			panic("blockcache: run out of BlockCache")
		}
		m.pool[evictIndex].cache.Sync()
		m.pool = append(m.pool[:evictIndex], m.pool[evictIndex+1:]...)
	}

	entry := &poolEntry{id: id, cache: newBlockCache(id, m.dev), refs: 1}
	m.pool = append(m.pool, entry)
	return &Handle{mgr: m, entry: entry}
}

// SyncAll flushes every dirty entry currently in the pool to the device.
func (m *Manager) SyncAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.pool {
		entry.cache.Sync()
	}
}
