// Package layout holds the on-disk records of a TFS image — the
// superblock, directory entries, and the DiskInode index engine — along
// with their encode/decode logic. Every record here is a fixed-width
// little-endian byte layout; Go has no portable in-place reinterpretation
// of a byte buffer as an arbitrary struct, so each type marshals itself
// explicitly with encoding/binary, the same technique the corpus this
// module is grounded on uses for its own on-disk inode and superblock
// records.
package layout

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Magic identifies a valid TFS superblock.
const Magic = 0x3B800001

// SuperBlock is the first block of every TFS image. Only 24 of its 512
// bytes are meaningful; the rest of the block is left zeroed.
type SuperBlock struct {
	MagicValue        uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

// IsValid checks the magic number and the block-accounting invariant from
// the format's definition: every region must exactly partition the image.
func (sb SuperBlock) IsValid() bool {
	if sb.MagicValue != Magic {
		return false
	}
	sum := 1 + sb.InodeBitmapBlocks + sb.InodeAreaBlocks + sb.DataBitmapBlocks + sb.DataAreaBlocks
	return sum == sb.TotalBlocks
}

// Encode writes the superblock's 24 significant bytes into buf, which must
// be at least 24 bytes (callers pass a full block-sized buffer in
// practice).
func (sb SuperBlock) Encode(buf []byte) {
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, sb.MagicValue)
	binary.Write(w, binary.LittleEndian, sb.TotalBlocks)
	binary.Write(w, binary.LittleEndian, sb.InodeBitmapBlocks)
	binary.Write(w, binary.LittleEndian, sb.InodeAreaBlocks)
	binary.Write(w, binary.LittleEndian, sb.DataBitmapBlocks)
	binary.Write(w, binary.LittleEndian, sb.DataAreaBlocks)
}

// DecodeSuperBlock reads a SuperBlock from the first 24 bytes of buf.
func DecodeSuperBlock(buf []byte) SuperBlock {
	r := bytes.NewReader(buf)
	var sb SuperBlock
	binary.Read(r, binary.LittleEndian, &sb.MagicValue)
	binary.Read(r, binary.LittleEndian, &sb.TotalBlocks)
	binary.Read(r, binary.LittleEndian, &sb.InodeBitmapBlocks)
	binary.Read(r, binary.LittleEndian, &sb.InodeAreaBlocks)
	binary.Read(r, binary.LittleEndian, &sb.DataBitmapBlocks)
	binary.Read(r, binary.LittleEndian, &sb.DataAreaBlocks)
	return sb
}
