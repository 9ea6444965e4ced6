// Package tfs implements the two top layers of the file system: the
// TinyFileSystem image manager (layout, bitmap placement, block
// allocation) and the Inode VFS façade built on top of it.
package tfs

import (
	"fmt"
	"sync"

	"github.com/tfs-project/tinyfs/bitmap"
	"github.com/tfs-project/tinyfs/blockcache"
	"github.com/tfs-project/tinyfs/blockdev"
	"github.com/tfs-project/tinyfs/layout"
)

const inodesPerBlock = blockdev.BlockSize / layout.DiskInodeSize // 4

// TinyFileSystem owns a mounted image: its bitmaps, the block cache pool
// backing every access to it, and the single lock every Inode operation on
// this mount acquires for its full duration (spec's lock hierarchy: fs
// mutex before the cache manager's own mutex).
type TinyFileSystem struct {
	mu sync.Mutex

	mgr *blockcache.Manager

	inodeBitmap bitmap.Bitmap
	dataBitmap  bitmap.Bitmap

	inodeAreaStartBlock uint32
	dataAreaStartBlock  uint32
}

// Create formats a fresh image of totalBlocks blocks with an
// inodeBitmapBlocks-block inode bitmap and mounts it. The root directory
// (inode #0) always lands at inode bitmap bit 0.
func Create(dev blockdev.BlockDevice, totalBlocks, inodeBitmapBlocks uint32) *TinyFileSystem {
	mgr := blockcache.NewManager(dev)

	inodeBitmap := bitmap.New(1, inodeBitmapBlocks)
	maxInodes := inodeBitmap.Maximum()
	inodeAreaBlocks := ceilDiv(maxInodes*layout.DiskInodeSize, blockdev.BlockSize)
	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks

	if totalBlocks < 1+inodeTotalBlocks {
		panic(fmt.Sprintf("tfs: image of %d blocks is too small for an inode area of %d blocks", totalBlocks, inodeTotalBlocks))
	}
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := ceilDiv(dataTotalBlocks, 4097)
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	dataBitmap := bitmap.New(1+inodeBitmapBlocks+inodeAreaBlocks, dataBitmapBlocks)

	fs := &TinyFileSystem{
		mgr:                 mgr,
		inodeBitmap:         inodeBitmap,
		dataBitmap:          dataBitmap,
		inodeAreaStartBlock: 1 + inodeBitmapBlocks,
		dataAreaStartBlock:  1 + inodeTotalBlocks + dataBitmapBlocks,
	}

	for i := uint32(0); i < totalBlocks; i++ {
		handle := mgr.Get(i)
		handle.Cache().Modify(0, func(buf []byte) {
			for j := range buf {
				buf[j] = 0
			}
		})
		handle.Release()
	}

	sb := layout.SuperBlock{
		MagicValue:        layout.Magic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
	sbHandle := mgr.Get(0)
	sbHandle.Cache().Modify(0, func(buf []byte) { sb.Encode(buf) })
	sbHandle.Release()

	rootBit, ok := fs.inodeBitmap.Alloc(fs.mgr)
	if !ok || rootBit != 0 {
		panic("tfs: root inode did not land at bit 0 on a freshly formatted image")
	}
	blockID, offset := fs.diskInodePos(rootBit)
	rootHandle := mgr.Get(blockID)
	rootHandle.Cache().Modify(offset, func(buf []byte) {
		var root layout.DiskInode
		root.Initialize(layout.TypeDirectory)
		root.Encode(buf)
	})
	rootHandle.Release()

	mgr.SyncAll()
	return fs
}

// Open mounts an existing image, validating its superblock first.
func Open(dev blockdev.BlockDevice) *TinyFileSystem {
	mgr := blockcache.NewManager(dev)

	handle := mgr.Get(0)
	var sb layout.SuperBlock
	handle.Cache().Read(0, func(buf []byte) { sb = layout.DecodeSuperBlock(buf) })
	handle.Release()

	if !sb.IsValid() {
		panic("tfs: superblock is invalid (bad magic or inconsistent block accounting)")
	}

	// The bitmap's own block count must be used here, not the inode area's
	// block count — passing the wrong one silently truncates or overruns
	// the inode bitmap on every subsequent alloc/dealloc.
	inodeBitmap := bitmap.New(1, sb.InodeBitmapBlocks)
	inodeTotalBlocks := sb.InodeBitmapBlocks + sb.InodeAreaBlocks
	dataBitmap := bitmap.New(1+inodeTotalBlocks, sb.DataBitmapBlocks)

	return &TinyFileSystem{
		mgr:                 mgr,
		inodeBitmap:         inodeBitmap,
		dataBitmap:          dataBitmap,
		inodeAreaStartBlock: 1 + sb.InodeBitmapBlocks,
		dataAreaStartBlock:  1 + inodeTotalBlocks + sb.DataBitmapBlocks,
	}
}

// RootInode returns a façade for the root directory, inode #0.
func (fs *TinyFileSystem) RootInode() *Inode {
	blockID, offset := fs.diskInodePos(0)
	return &Inode{fs: fs, blockID: blockID, offset: offset}
}

// SyncAll flushes every dirty block currently held in the cache pool.
func (fs *TinyFileSystem) SyncAll() {
	fs.mgr.SyncAll()
}

func (fs *TinyFileSystem) diskInodePos(bit uint32) (blockID uint32, offset int) {
	blockID = fs.inodeAreaStartBlock + bit/inodesPerBlock
	offset = int(bit%inodesPerBlock) * layout.DiskInodeSize
	return
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
