// Package tfstest provides small fixtures shared by this module's test
// files, mirroring the teacher's own testing helper package: a way to get
// random bytes for round-trip tests and a ready-to-use in-memory mount.
package tfstest

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tfs-project/tinyfs/blockdev"
	"github.com/tfs-project/tinyfs/tfs"
)

// RandomBytes returns n cryptographically random bytes, failing the test
// immediately if the system RNG is unavailable.
func RandomBytes(t *testing.T, n int) []byte {
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err, "failed to generate %d random bytes", n)
	return buf
}

// SmallImageBlocks and SmallImageBitmapBlocks size a 2 MiB mount: the full
// 4096-inode table plus 3069 data blocks, enough for files that reach past
// the direct and indirect1 ranges, without slowing tests down with a full
// 16 MiB image.
const (
	SmallImageBlocks       = 4096
	SmallImageBitmapBlocks = 1
)

// NewFreshFS formats and mounts a small in-memory image, handing back both
// the mount and the device backing it so tests can re-open the same bytes.
func NewFreshFS(t *testing.T) (*tfs.TinyFileSystem, *blockdev.MemDevice) {
	dev := blockdev.NewMemDevice(SmallImageBlocks)
	fs := tfs.Create(dev, SmallImageBlocks, SmallImageBitmapBlocks)
	t.Cleanup(fs.SyncAll)
	return fs, dev
}
