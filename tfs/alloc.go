package tfs

import (
	tfserr "github.com/tfs-project/tinyfs/errors"
)

// allocInode reserves a new inode bitmap bit. Running out of inodes is
// reported as a soft failure rather than a panic — unlike a pool- or
// bitmap-consistency violation, "the disk is full" is an ordinary,
// expected condition a caller should be able to handle.
func (fs *TinyFileSystem) allocInode() (uint32, error) {
	bit, ok := fs.inodeBitmap.Alloc(fs.mgr)
	if !ok {
		return 0, tfserr.ErrNoSpaceOnDevice.WithMessage("no free inodes")
	}
	return bit, nil
}

func (fs *TinyFileSystem) deallocInode(bit uint32) {
	fs.inodeBitmap.Dealloc(fs.mgr, bit)
}

// allocData reserves one data block and returns its global physical id.
func (fs *TinyFileSystem) allocData() (uint32, error) {
	bit, ok := fs.dataBitmap.Alloc(fs.mgr)
	if !ok {
		return 0, tfserr.ErrNoSpaceOnDevice.WithMessage("no free data blocks")
	}
	return fs.dataAreaStartBlock + bit, nil
}

// allocDataBlocks reserves count data blocks, rolling back any partial
// allocation if the disk fills up partway through.
func (fs *TinyFileSystem) allocDataBlocks(count uint32) ([]uint32, error) {
	ids := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := fs.allocData()
		if err != nil {
			for _, taken := range ids {
				fs.deallocData(taken)
			}
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// deallocData zeroes the block's contents (defense in depth against stale
// data leaking into a newly allocated file) and frees its bitmap bit.
func (fs *TinyFileSystem) deallocData(globalBlockID uint32) {
	handle := fs.mgr.Get(globalBlockID)
	handle.Cache().Modify(0, func(buf []byte) {
		for i := range buf {
			buf[i] = 0
		}
	})
	handle.Release()

	fs.dataBitmap.Dealloc(fs.mgr, globalBlockID-fs.dataAreaStartBlock)
}
