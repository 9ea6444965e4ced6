package tfs

import (
	"fmt"
	"io"
)

// File is a position-tracked io.ReadWriteSeeker over a regular-file Inode,
// giving callers the familiar os.File-shaped surface instead of the
// explicit-offset ReadAt/WriteAt pair Inode exposes directly. The position
// bookkeeping here follows the same shape as the teacher's own stream
// wrapper around its block cache; unlike that wrapper this one carries no
// IOFlags, since TFS has no open-mode or permission concept to enforce.
type File struct {
	inode    *Inode
	position int64
}

// NewFile wraps inode in a seekable stream positioned at offset 0.
func NewFile(inode *Inode) *File {
	return &File{inode: inode}
}

// Read implements io.Reader.
func (f *File) Read(buffer []byte) (int, error) {
	n, err := f.ReadAt(buffer, f.position)
	f.position += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt. It returns io.EOF once offset reaches or
// passes the file's current size.
func (f *File) ReadAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("tfs: negative ReadAt offset %d", offset)
	}
	size := int64(f.inode.Size())
	if offset >= size {
		return 0, io.EOF
	}

	n := f.inode.ReadAt(uint32(offset), buffer)
	if int64(n) < int64(len(buffer)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// Write implements io.Writer, growing the underlying inode as needed.
func (f *File) Write(buffer []byte) (int, error) {
	n, err := f.WriteAt(buffer, f.position)
	f.position += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt.
func (f *File) WriteAt(buffer []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("tfs: negative WriteAt offset %d", offset)
	}
	n, err := f.inode.WriteAt(uint32(offset), buffer)
	return int(n), err
}

// Seek implements io.Seeker. Seeking past the end of the file is allowed;
// the file grows on the next write, the same way os.File behaves.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var absolute int64
	switch whence {
	case io.SeekStart:
		absolute = offset
	case io.SeekCurrent:
		absolute = f.position + offset
	case io.SeekEnd:
		absolute = int64(f.inode.Size()) + offset
	default:
		return f.position, fmt.Errorf("tfs: invalid seek whence %d", whence)
	}
	if absolute < 0 {
		return f.position, fmt.Errorf("tfs: seek produced negative offset %d", absolute)
	}
	f.position = absolute
	return absolute, nil
}

// Size returns the file's current byte length.
func (f *File) Size() int64 {
	return int64(f.inode.Size())
}
