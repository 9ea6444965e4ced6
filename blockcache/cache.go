// Package blockcache implements the bounded, dirty-tracked block buffer pool
// shared by every layer above it: a BlockCache is one in-memory copy of a
// single on-disk block, and a BlockCacheManager lends out reference-counted
// handles to at most 16 of them at a time.
//
// Go has no unsafe-free way to reinterpret a byte buffer as an arbitrary T
// the way the corpus's Rust origin does, so BlockCache exposes Read/Modify
// as plain byte-slice views; the typed record decoding lives in the layout
// package, built on encoding/binary.
package blockcache

import (
	"fmt"
	"sync"

	"github.com/tfs-project/tinyfs/blockdev"
)

// BlockCache owns one BlockSize-byte copy of a block plus its dirty flag. All
// access goes through Read/Modify so the dirty bit can never drift from the
// buffer it describes.
type BlockCache struct {
	mu       sync.Mutex
	blockID  uint32
	dev      blockdev.BlockDevice
	buf      [blockdev.BlockSize]byte
	modified bool
}

func newBlockCache(id uint32, dev blockdev.BlockDevice) *BlockCache {
	c := &BlockCache{blockID: id, dev: dev}
	dev.ReadBlock(id, c.buf[:])
	return c
}

// BlockID returns the physical block this cache entry mirrors.
func (c *BlockCache) BlockID() uint32 {
	return c.blockID
}

// Read invokes f with a read-only view of the buffer starting at offset.
// Precondition: offset+len(f's intended read) <= BlockSize; callers are
// responsible for slicing no further than they need.
func (c *BlockCache) Read(offset int, f func(buf []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.buf[offset:])
}

// Modify invokes f with a mutable view of the buffer starting at offset and
// unconditionally marks the cache dirty once f returns — even if f made no
// changes. A spurious write-back of unchanged bytes is harmless and the
// eviction policy in BlockCacheManager relies on this being true.
func (c *BlockCache) Modify(offset int, f func(buf []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.buf[offset:])
	c.modified = true
}

// Sync writes the buffer back to the device if it has been modified since
// the last sync, then clears the dirty flag.
func (c *BlockCache) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked()
}

func (c *BlockCache) syncLocked() {
	if !c.modified {
		return
	}
	c.dev.WriteBlock(c.blockID, c.buf[:])
	c.modified = false
}

func (c *BlockCache) String() string {
	return fmt.Sprintf("BlockCache{block=%d, modified=%v}", c.blockID, c.modified)
}
