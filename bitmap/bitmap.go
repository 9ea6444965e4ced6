// Package bitmap implements the allocator used for both the inode bitmap
// and the data bitmap: a contiguous range of blocks, each holding 4096 bits
// (64 uint64 words), tracking which of up to blocks*4096 numbered units are
// in use.
package bitmap

import (
	"encoding/binary"
	"fmt"

	gobitmap "github.com/boljen/go-bitmap"
	"github.com/tfs-project/tinyfs/blockcache"
	"github.com/tfs-project/tinyfs/blockdev"
)

const bitsPerBlock = blockdev.BlockSize * 8  // 4096
const wordsPerBlock = blockdev.BlockSize / 8 // 64

// Bitmap describes a bitmap region living at StartBlock for Blocks blocks on
// some mounted image. It carries no cache state of its own — every
// operation goes through the Manager passed in, matching the rest of this
// module's "no hidden state outside the block cache" design.
type Bitmap struct {
	StartBlock uint32
	Blocks     uint32
}

// New describes a bitmap occupying [startBlock, startBlock+blocks).
func New(startBlock, blocks uint32) Bitmap {
	return Bitmap{StartBlock: startBlock, Blocks: blocks}
}

// Maximum returns the total number of bits this bitmap can track.
func (b Bitmap) Maximum() uint32 {
	return b.Blocks * bitsPerBlock
}

// Alloc finds the first clear bit, sets it, and returns its global index.
// Lower indices are always preferred, which is what gives inode #0 its
// stable placement at bit 0 on a freshly created image. ok is false when
// every bit in the bitmap's range is already set.
func (b Bitmap) Alloc(mgr *blockcache.Manager) (bit uint32, ok bool) {
	for blockOffset := uint32(0); blockOffset < b.Blocks; blockOffset++ {
		handle := mgr.Get(b.StartBlock + blockOffset)
		found := false
		var foundBit uint32

		handle.Cache().Modify(0, func(buf []byte) {
			for word := 0; word < wordsPerBlock; word++ {
				wordBytes := buf[word*8 : word*8+8]
				if binary.LittleEndian.Uint64(wordBytes) == ^uint64(0) {
					// Every bit in this word is set; skip it entirely.
					continue
				}

				bm := gobitmap.Bitmap(wordBytes)
				for bitInWord := 0; bitInWord < 64; bitInWord++ {
					if !bm.Get(bitInWord) {
						bm.Set(bitInWord, true)
						foundBit = blockOffset*bitsPerBlock + uint32(word)*64 + uint32(bitInWord)
						found = true
						return
					}
				}
			}
		})

		handle.Release()
		if found {
			return foundBit, true
		}
	}
	return 0, false
}

// Dealloc clears bit. It panics if the bit was not already set — a
// double-free is a broken invariant in the caller, not a soft failure.
func (b Bitmap) Dealloc(mgr *blockcache.Manager, bit uint32) {
	if bit >= b.Maximum() {
		panic(fmt.Sprintf("bitmap: bit %d out of range [0, %d)", bit, b.Maximum()))
	}

	blockOffset := bit / bitsPerBlock
	bitInBlock := int(bit % bitsPerBlock)

	handle := mgr.Get(b.StartBlock + blockOffset)
	defer handle.Release()

	handle.Cache().Modify(0, func(buf []byte) {
		bm := gobitmap.Bitmap(buf)
		if !bm.Get(bitInBlock) {
			panic(fmt.Sprintf("bitmap: double free of bit %d", bit))
		}
		bm.Set(bitInBlock, false)
	})
}
