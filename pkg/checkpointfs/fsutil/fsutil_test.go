package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirAndExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	ok, err := Exists(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	ok, err = Exists(dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListDirsAndFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(dir, "b-dir")))
	require.NoError(t, EnsureDir(filepath.Join(dir, "a-dir")))
	require.NoError(t, WriteBinary(filepath.Join(dir, "z-file"), []byte("z")))
	require.NoError(t, WriteBinary(filepath.Join(dir, "y-file"), []byte("y")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TempPrefix+"123"), []byte("partial"), 0o644))

	dirs, err := ListDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-dir", "b-dir"}, dirs)

	files, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"y-file", "z-file"}, files)

	_, err = ListDirs(filepath.Join(dir, "missing"))
	assert.True(t, IsNotExist(err))
}

func TestWriteBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	require.NoError(t, WriteBinary(path, []byte("first")))
	require.NoError(t, WriteBinary(path, []byte("second")))

	data, err := ReadBinary(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteBinary_MissingDir(t *testing.T) {
	err := WriteBinary(filepath.Join(t.TempDir(), "missing", "blob"), []byte("x"))
	assert.True(t, IsNotExist(err))
}

func TestJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.json")
	require.NoError(t, WriteJSON(path, map[string]string{"parentCheckpointId": "cp-1"}))

	raw, err := ReadBinary(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"parentCheckpointId\": \"cp-1\"\n}", string(raw))

	var out map[string]string
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "cp-1", out["parentCheckpointId"])

	require.NoError(t, WriteBinary(path, []byte("{")))
	assert.Error(t, ReadJSON(path, &out))
}

func TestRemoveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "thread")
	require.NoError(t, EnsureDir(filepath.Join(dir, "ns", "cp")))

	require.NoError(t, RemoveAll(dir))
	ok, err := Exists(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, RemoveAll(dir))
}
