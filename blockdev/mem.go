package blockdev

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// MemDevice is an in-memory BlockDevice backed by a plain byte slice, wired
// through bytesextra.NewReadWriteSeeker exactly as the corpus's own test
// fixtures wrap byte slices for image testing. It is the backing every unit
// test in this module uses instead of a throwaway host file.
type MemDevice struct {
	stream io.ReadWriteSeeker
	blocks uint32
}

// NewMemDevice allocates a zeroed image of totalBlocks blocks.
func NewMemDevice(totalBlocks uint32) *MemDevice {
	return NewMemDeviceFromImage(make([]byte, int(totalBlocks)*BlockSize))
}

// NewMemDeviceFromImage wraps an existing byte slice. len(image) must be a
// multiple of BlockSize.
func NewMemDeviceFromImage(image []byte) *MemDevice {
	if len(image)%BlockSize != 0 {
		panic(fmt.Sprintf("blockdev: image length %d is not a multiple of %d", len(image), BlockSize))
	}
	return &MemDevice{
		stream: bytesextra.NewReadWriteSeeker(image),
		blocks: uint32(len(image) / BlockSize),
	}
}

func (d *MemDevice) TotalBlocks() uint32 {
	return d.blocks
}

func (d *MemDevice) ReadBlock(id uint32, buf []byte) {
	d.checkBounds(id, len(buf))
	if _, err := d.stream.Seek(int64(id)*BlockSize, io.SeekStart); err != nil {
		panic(fmt.Sprintf("blockdev: seek to block %d failed: %s", id, err))
	}
	if _, err := d.stream.Read(buf); err != nil {
		panic(fmt.Sprintf("blockdev: read block %d failed: %s", id, err))
	}
}

func (d *MemDevice) WriteBlock(id uint32, buf []byte) {
	d.checkBounds(id, len(buf))
	if _, err := d.stream.Seek(int64(id)*BlockSize, io.SeekStart); err != nil {
		panic(fmt.Sprintf("blockdev: seek to block %d failed: %s", id, err))
	}
	if _, err := d.stream.Write(buf); err != nil {
		panic(fmt.Sprintf("blockdev: write block %d failed: %s", id, err))
	}
}

func (d *MemDevice) checkBounds(id uint32, bufLen int) {
	if bufLen != BlockSize {
		panic(fmt.Sprintf("blockdev: buffer must be %d bytes, got %d", BlockSize, bufLen))
	}
	if id >= d.blocks {
		panic(fmt.Sprintf("blockdev: block %d out of range [0, %d)", id, d.blocks))
	}
}
