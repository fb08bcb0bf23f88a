package pyfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFSReadWriteRoundTrip(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.Write("a/b.txt", []byte("hello")))
	assert.True(t, fs.Exists("a/b.txt"))
	data, err := fs.Read("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestMemFSReadMissingFails(t *testing.T) {
	fs := NewMem()
	_, err := fs.Read("nope.txt")
	assert.Error(t, err)
}

func TestMemFSWriteModeAppend(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.Write("log.txt", []byte("a")))
	require.NoError(t, fs.WriteMode("log.txt", []byte("b"), ModeAppend))
	data, err := fs.Read("log.txt")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}

func TestMemFSListDirAndDelete(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.Write("dir/one.txt", []byte("1")))
	require.NoError(t, fs.Write("dir/two.txt", []byte("2")))
	require.NoError(t, fs.Write("dir/sub/three.txt", []byte("3")))

	names, err := fs.ListDir("dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"one.txt", "sub", "two.txt"}, names)

	require.NoError(t, fs.Delete("dir/one.txt"))
	assert.False(t, fs.Exists("dir/one.txt"))
	assert.Error(t, fs.Delete("dir/one.txt"))
}

func TestMemFSNormalisesPaths(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.Write("/a/./b//c.txt", []byte("x")))
	assert.True(t, fs.Exists("a/b/c.txt"))
}

func TestDiskWriteReadRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Write("nested/file.txt", []byte("payload")))
	assert.True(t, d.Exists("nested/file.txt"))
	data, err := d.Read("nested/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDiskRejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	d, err := NewDisk(root)
	require.NoError(t, err)

	_, err = d.Read("../../etc/passwd")
	assert.Error(t, err)

	err = d.Write("../escape.txt", []byte("x"))
	assert.Error(t, err)
}

func TestDiskRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(outsideFile, []byte("secret"), 0o644))

	d, err := NewDisk(root)
	require.NoError(t, err)
	require.NoError(t, os.Symlink(outsideFile, filepath.Join(root, "link.txt")))

	_, err = d.Read("link.txt")
	assert.Error(t, err)
}

func TestDiskListDirAndDelete(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Write("a.txt", []byte("1")))
	require.NoError(t, d.Write("b.txt", []byte("2")))

	names, err := d.ListDir(".")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	require.NoError(t, d.Delete("a.txt"))
	assert.False(t, d.Exists("a.txt"))
}
