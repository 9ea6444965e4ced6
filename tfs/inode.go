package tfs

import (
	"fmt"

	"github.com/tfs-project/tinyfs/layout"

	tfserr "github.com/tfs-project/tinyfs/errors"
)

// Inode is a façade over one DiskInode: the (blockID, offset) pair locating
// its on-disk record plus a back-reference to the mount that owns it. Unlike
// the corpus this is grounded on, there is no manual reference count here —
// an Inode holds no cache handle of its own, and its fs pointer is an
// ordinary Go reference the garbage collector is free to reclaim once the
// last caller drops it.
type Inode struct {
	fs      *TinyFileSystem
	blockID uint32
	offset  int
}

// withDiskInode decodes the inode's on-disk record, invokes f with it, and
// — when mutate is true — re-encodes whatever f left behind back into the
// same on-disk bytes. Every caller holds fs.mu for the full call.
func (inode *Inode) withDiskInode(mutate bool, f func(d *layout.DiskInode)) {
	handle := inode.fs.mgr.Get(inode.blockID)
	defer handle.Release()

	if !mutate {
		handle.Cache().Read(inode.offset, func(buf []byte) {
			d := layout.DecodeDiskInode(buf[:layout.DiskInodeSize])
			f(&d)
		})
		return
	}

	handle.Cache().Modify(inode.offset, func(buf []byte) {
		d := layout.DecodeDiskInode(buf[:layout.DiskInodeSize])
		f(&d)
		d.Encode(buf[:layout.DiskInodeSize])
	})
}

// findEntry scans a directory's entry stream for name, returning the inode
// number it resolves to.
func findEntry(fs *TinyFileSystem, d *layout.DiskInode, name string) (uint32, bool) {
	count := d.Size / layout.DirEntrySize
	buf := make([]byte, layout.DirEntrySize)
	for i := uint32(0); i < count; i++ {
		d.ReadAt(fs.mgr, i*layout.DirEntrySize, buf)
		entry := layout.DecodeDirEntry(buf)
		if entry.Name == name {
			return entry.InodeNumber, true
		}
	}
	return 0, false
}

// growInode grows d to newSize, allocating exactly as many fresh data
// blocks as the format's index-overhead accounting says it needs.
func (fs *TinyFileSystem) growInode(d *layout.DiskInode, newSize uint32) error {
	if newSize <= d.Size {
		return nil
	}
	needed := d.BlocksNumNeeded(newSize)
	newBlocks, err := fs.allocDataBlocks(needed)
	if err != nil {
		return err
	}
	d.IncreaseSize(fs.mgr, newSize, newBlocks)
	return nil
}

// Create makes a new, empty regular file named name within this directory
// inode and returns a façade for it. It fails if this inode is not a
// directory, if name already names an entry, or if the image is full.
func (inode *Inode) Create(name string) (*Inode, error) {
	if len(name) > layout.MaxNameLength {
		return nil, tfserr.ErrNameTooLong
	}

	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var isDir, exists bool
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		isDir = d.IsDir()
		if isDir {
			_, exists = findEntry(fs, d, name)
		}
	})
	if !isDir {
		return nil, tfserr.ErrNotADirectory
	}
	if exists {
		return nil, tfserr.ErrExists
	}

	newBit, err := fs.allocInode()
	if err != nil {
		return nil, err
	}
	newBlockID, newOffset := fs.diskInodePos(newBit)

	newHandle := fs.mgr.Get(newBlockID)
	newHandle.Cache().Modify(newOffset, func(buf []byte) {
		var d layout.DiskInode
		d.Initialize(layout.TypeFile)
		d.Encode(buf[:layout.DiskInodeSize])
	})
	newHandle.Release()

	var growErr error
	inode.withDiskInode(true, func(d *layout.DiskInode) {
		fileCount := d.Size / layout.DirEntrySize
		newSize := (fileCount + 1) * layout.DirEntrySize
		if err := fs.growInode(d, newSize); err != nil {
			growErr = err
			return
		}
		entry := layout.DirEntry{Name: name, InodeNumber: newBit}
		buf := make([]byte, layout.DirEntrySize)
		entry.Encode(buf)
		d.WriteAt(fs.mgr, fileCount*layout.DirEntrySize, buf)
	})
	if growErr != nil {
		fs.deallocInode(newBit)
		return nil, growErr
	}

	fs.mgr.SyncAll()
	return &Inode{fs: fs, blockID: newBlockID, offset: newOffset}, nil
}

// Find looks up name within this directory inode and returns a façade for
// the inode it names.
func (inode *Inode) Find(name string) (*Inode, error) {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var isDir, found bool
	var bit uint32
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		isDir = d.IsDir()
		if isDir {
			bit, found = findEntry(fs, d, name)
		}
	})
	if !isDir {
		return nil, tfserr.ErrNotADirectory
	}
	if !found {
		return nil, tfserr.ErrNotFound
	}

	blockID, offset := fs.diskInodePos(bit)
	return &Inode{fs: fs, blockID: blockID, offset: offset}, nil
}

// Ls returns the names of every entry in this directory inode.
func (inode *Inode) Ls() ([]string, error) {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var isDir bool
	var names []string
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		isDir = d.IsDir()
		if !isDir {
			return
		}
		count := d.Size / layout.DirEntrySize
		buf := make([]byte, layout.DirEntrySize)
		for i := uint32(0); i < count; i++ {
			d.ReadAt(fs.mgr, i*layout.DirEntrySize, buf)
			names = append(names, layout.DecodeDirEntry(buf).Name)
		}
	})
	if !isDir {
		return nil, tfserr.ErrNotADirectory
	}
	return names, nil
}

// Size returns the current byte length of this inode's content.
func (inode *Inode) Size() uint32 {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var size uint32
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		size = d.Size
	})
	return size
}

// IsDir reports whether this inode is a directory.
func (inode *Inode) IsDir() bool {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var isDir bool
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		isDir = d.IsDir()
	})
	return isDir
}

// ReadAt copies up to len(buf) bytes starting at offset from this file's
// content, returning the number of bytes actually copied.
func (inode *Inode) ReadAt(offset uint32, buf []byte) uint32 {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var n uint32
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		n = d.ReadAt(fs.mgr, offset, buf)
	})
	return n
}

// WriteAt writes buf into this file's content starting at offset, growing
// the file first if offset+len(buf) extends past its current size.
func (inode *Inode) WriteAt(offset uint32, buf []byte) (uint32, error) {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var n uint32
	var err error
	inode.withDiskInode(true, func(d *layout.DiskInode) {
		target := offset + uint32(len(buf))
		if target > d.Size {
			if growErr := fs.growInode(d, target); growErr != nil {
				err = growErr
				return
			}
		}
		n = d.WriteAt(fs.mgr, offset, buf)
	})
	if err != nil {
		return 0, err
	}

	fs.mgr.SyncAll()
	return n, nil
}

// Clear truncates this inode's content to zero length, returning all of its
// data and index blocks to the data bitmap.
func (inode *Inode) Clear() error {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode.clearLocked()
	fs.mgr.SyncAll()
	return nil
}

// clearLocked is Clear's body, factored out so Remove can free a victim
// inode's content without re-acquiring fs.mu (which it already holds).
func (inode *Inode) clearLocked() {
	fs := inode.fs
	var freed []uint32
	var oldSize uint32
	inode.withDiskInode(true, func(d *layout.DiskInode) {
		oldSize = d.Size
		freed = d.ClearSize(fs.mgr)
	})

	if want := layout.TotalBlocksForSize(oldSize); uint32(len(freed)) != want {
		panic(fmt.Sprintf("tfs: clear freed %d blocks, expected %d", len(freed), want))
	}
	for _, id := range freed {
		fs.deallocData(id)
	}
}

// Remove deletes the directory entry named name, freeing the file or empty
// directory it resolves to and returning its inode to the inode bitmap.
// This is not one of the format's original operations — nothing upstream
// ever deletes a file — but the format's own accounting gives enough to
// build one cleanly: free the victim's content and inode bit, swap the
// directory's last entry into the freed slot, and shrink the directory by
// one DirEntrySize.
func (inode *Inode) Remove(name string) error {
	fs := inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var isDir, found bool
	var targetBit, targetIndex, count uint32
	inode.withDiskInode(false, func(d *layout.DiskInode) {
		isDir = d.IsDir()
		if !isDir {
			return
		}
		count = d.Size / layout.DirEntrySize
		buf := make([]byte, layout.DirEntrySize)
		for i := uint32(0); i < count; i++ {
			d.ReadAt(fs.mgr, i*layout.DirEntrySize, buf)
			entry := layout.DecodeDirEntry(buf)
			if entry.Name == name {
				targetBit = entry.InodeNumber
				targetIndex = i
				found = true
				break
			}
		}
	})
	if !isDir {
		return tfserr.ErrNotADirectory
	}
	if !found {
		return tfserr.ErrNotFound
	}

	targetBlockID, targetOffset := fs.diskInodePos(targetBit)
	target := &Inode{fs: fs, blockID: targetBlockID, offset: targetOffset}
	target.clearLocked()
	fs.deallocInode(targetBit)

	inode.withDiskInode(true, func(d *layout.DiskInode) {
		if targetIndex != count-1 {
			buf := make([]byte, layout.DirEntrySize)
			d.ReadAt(fs.mgr, (count-1)*layout.DirEntrySize, buf)
			d.WriteAt(fs.mgr, targetIndex*layout.DirEntrySize, buf)
		}
		excess := d.ShrinkTo(fs.mgr, (count-1)*layout.DirEntrySize)
		for _, id := range excess {
			fs.deallocData(id)
		}
	})

	fs.mgr.SyncAll()
	return nil
}
