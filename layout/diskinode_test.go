package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfs-project/tinyfs/blockcache"
	"github.com/tfs-project/tinyfs/blockdev"
	"github.com/tfs-project/tinyfs/layout"
)

// grow allocates exactly as many fresh blocks as needed and grows d to
// newSize, the same protocol the tfs package follows.
func grow(t *testing.T, mgr *blockcache.Manager, d *layout.DiskInode, next *uint32, newSize uint32) {
	needed := d.BlocksNumNeeded(newSize)
	ids := make([]uint32, needed)
	for i := range ids {
		ids[i] = *next
		*next++
	}
	d.IncreaseSize(mgr, newSize, ids)
}

func TestDiskInode_EncodeDecodeRoundTrip(t *testing.T) {
	d := layout.DiskInode{Size: 1234, Indirect1: 7, Indirect2: 8, Type: layout.TypeDirectory}
	d.Direct[0] = 42

	buf := make([]byte, layout.DiskInodeSize)
	d.Encode(buf)

	decoded := layout.DecodeDiskInode(buf)
	assert.Equal(t, d, decoded)
}

func TestDiskInode_TotalBlocksForSize_Boundaries(t *testing.T) {
	// Exactly filling the direct range needs no index overhead.
	assert.EqualValues(t, layout.NumDirect, layout.TotalBlocksForSize(layout.NumDirect*blockdev.BlockSize))
	// One data block past direct range costs one indirect1 metablock too.
	assert.EqualValues(t, layout.NumDirect+2, layout.TotalBlocksForSize((layout.NumDirect+1)*blockdev.BlockSize))
}

func TestDiskInode_GrowReadWriteAcrossIndirectBoundaries(t *testing.T) {
	dev := blockdev.NewMemDevice(20000)
	mgr := blockcache.NewManager(dev)

	var d layout.DiskInode
	d.Initialize(layout.TypeFile)
	var next uint32 = 1

	sizes := []uint32{
		100,
		layout.NumDirect * blockdev.BlockSize,
		(layout.NumDirect + 1) * blockdev.BlockSize,
		(layout.NumDirect + 200) * blockdev.BlockSize,
	}

	for _, size := range sizes {
		grow(t, mgr, &d, &next, size)
		assert.EqualValues(t, size, d.Size)

		payload := make([]byte, 37)
		for i := range payload {
			payload[i] = byte(i)
		}
		offset := size - uint32(len(payload))
		written := d.WriteAt(mgr, offset, payload)
		require.EqualValues(t, len(payload), written)

		readBack := make([]byte, len(payload))
		read := d.ReadAt(mgr, offset, readBack)
		require.EqualValues(t, len(payload), read)
		assert.Equal(t, payload, readBack)
	}
}

func TestDiskInode_ReadAtClampsPastEnd(t *testing.T) {
	dev := blockdev.NewMemDevice(4)
	mgr := blockcache.NewManager(dev)

	var d layout.DiskInode
	d.Initialize(layout.TypeFile)
	d.IncreaseSize(mgr, 10, []uint32{1})
	d.WriteAt(mgr, 0, []byte("hello world"[:10]))

	buf := make([]byte, 100)
	n := d.ReadAt(mgr, 5, buf)
	assert.EqualValues(t, 5, n)
}

func TestDiskInode_ClearSizeFreesExactlyTotalBlocksAndResetsSize(t *testing.T) {
	dev := blockdev.NewMemDevice(20000)
	mgr := blockcache.NewManager(dev)

	var d layout.DiskInode
	d.Initialize(layout.TypeFile)
	var next uint32 = 1
	size := (layout.NumDirect + 200) * blockdev.BlockSize
	grow(t, mgr, &d, &next, size)

	expected := layout.TotalBlocksForSize(size)
	freed := d.ClearSize(mgr)

	assert.Len(t, freed, int(expected))
	assert.EqualValues(t, 0, d.Size)

	buf := make([]byte, 10)
	assert.EqualValues(t, 0, d.ReadAt(mgr, 0, buf))
}

func TestDiskInode_ShrinkToReturnsExcessBlocks(t *testing.T) {
	dev := blockdev.NewMemDevice(20000)
	mgr := blockcache.NewManager(dev)

	var d layout.DiskInode
	d.Initialize(layout.TypeDirectory)
	var next uint32 = 1
	big := (layout.NumDirect + 50) * blockdev.BlockSize
	grow(t, mgr, &d, &next, big)

	small := layout.NumDirect * blockdev.BlockSize
	excess := d.ShrinkTo(mgr, small)

	assert.EqualValues(t, small, d.Size)
	assert.Len(t, excess, int(layout.TotalBlocksForSize(big)-layout.TotalBlocksForSize(small)))
	assert.True(t, d.IsDir())
}

func TestDiskInode_ShrinkToPreservesRetainedContentAcrossIndirectBoundary(t *testing.T) {
	dev := blockdev.NewMemDevice(20000)
	mgr := blockcache.NewManager(dev)

	var d layout.DiskInode
	d.Initialize(layout.TypeFile)
	var next uint32 = 1
	big := (layout.NumDirect + 50) * blockdev.BlockSize
	grow(t, mgr, &d, &next, big)

	small := (layout.NumDirect + 1) * blockdev.BlockSize
	pattern := make([]byte, small)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	written := d.WriteAt(mgr, 0, pattern)
	require.EqualValues(t, len(pattern), written)

	d.ShrinkTo(mgr, small)
	assert.EqualValues(t, small, d.Size)

	readBack := make([]byte, small)
	read := d.ReadAt(mgr, 0, readBack)
	require.EqualValues(t, small, read)
	assert.Equal(t, pattern, readBack)
}
