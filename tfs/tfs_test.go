package tfs_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tfserr "github.com/tfs-project/tinyfs/errors"
	"github.com/tfs-project/tinyfs/internal/tfstest"
	"github.com/tfs-project/tinyfs/tfs"
)

func TestCreate_RootIsAnEmptyDirectory(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	assert.True(t, root.IsDir())
	names, err := root.Ls()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpen_ReopensAnExistingImage(t *testing.T) {
	fs, dev := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	file, err := root.Create("greeting")
	require.NoError(t, err)
	_, err = file.WriteAt(0, []byte("hello"))
	require.NoError(t, err)
	fs.SyncAll()

	reopened := tfs.Open(dev)
	found, err := reopened.RootInode().Find("greeting")
	require.NoError(t, err)

	buf := make([]byte, 5)
	n := found.ReadAt(0, buf)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestInode_CreateDuplicateNameFails(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	_, err := root.Create("dup")
	require.NoError(t, err)

	_, err = root.Create("dup")
	assert.ErrorIs(t, err, tfserr.ErrExists)
}

func TestInode_FindMissingNameFails(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	_, err := root.Find("nope")
	assert.ErrorIs(t, err, tfserr.ErrNotFound)
}

func TestInode_LsListsEveryCreatedEntry(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	want := []string{"alpha", "beta", "gamma"}
	for _, name := range want {
		_, err := root.Create(name)
		require.NoError(t, err)
	}

	got, err := root.Ls()
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)
}

func TestInode_WriteAtThenReadAtRoundTrip(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	file, err := root.Create("payload")
	require.NoError(t, err)

	data := tfstest.RandomBytes(t, 30*512+17) // 31 blocks: crosses from the 28 direct blocks into indirect1
	n, err := file.WriteAt(0, data)
	require.NoError(t, err)
	require.EqualValues(t, len(data), n)

	readBack := make([]byte, len(data))
	got := file.ReadAt(0, readBack)
	require.EqualValues(t, len(data), got)
	assert.Equal(t, data, readBack)
}

func TestInode_ReadAtInChunksMatchesWholeRead(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	file, err := root.Create("chunked")
	require.NoError(t, err)

	data := tfstest.RandomBytes(t, 103)
	_, err = file.WriteAt(0, data)
	require.NoError(t, err)

	chunked := make([]byte, 0, len(data))
	buf := make([]byte, 10)
	for offset := uint32(0); offset < uint32(len(data)); {
		n := file.ReadAt(offset, buf)
		if n == 0 {
			break
		}
		chunked = append(chunked, buf[:n]...)
		offset += n
	}
	assert.Equal(t, data, chunked)
}

func TestInode_ClearIsIdempotentAndZeroesSize(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	file, err := root.Create("toclear")
	require.NoError(t, err)
	_, err = file.WriteAt(0, tfstest.RandomBytes(t, 5000))
	require.NoError(t, err)

	require.NoError(t, file.Clear())
	assert.EqualValues(t, 0, file.Size())

	require.NoError(t, file.Clear())
	assert.EqualValues(t, 0, file.Size())
}

func TestInode_RemoveFreesEntryAndInode(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	_, err := root.Create("first")
	require.NoError(t, err)
	_, err = root.Create("second")
	require.NoError(t, err)

	require.NoError(t, root.Remove("first"))

	names, err := root.Ls()
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, names)

	_, err = root.Find("first")
	assert.ErrorIs(t, err, tfserr.ErrNotFound)

	// The freed inode bit must be reusable.
	_, err = root.Create("third")
	require.NoError(t, err)
}

func TestInode_RemoveUnknownNameFails(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	assert.ErrorIs(t, root.Remove("ghost"), tfserr.ErrNotFound)
}

func TestInode_CreateOnFileFails(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	file, err := root.Create("notadir")
	require.NoError(t, err)

	_, err = file.Create("child")
	assert.ErrorIs(t, err, tfserr.ErrNotADirectory)
}

func TestInode_ExhaustingInodesReturnsSoftError(t *testing.T) {
	fs, _ := tfstest.NewFreshFS(t)
	root := fs.RootInode()

	var lastErr error
	for i := 0; i < 100000; i++ {
		_, err := root.Create(fmt.Sprintf("f%d", i))
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	assert.ErrorIs(t, lastErr, tfserr.ErrNoSpaceOnDevice)
}
