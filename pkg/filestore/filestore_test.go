package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"ok":true}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive")
}

func TestExists(t *testing.T) {
	dir := t.TempDir()

	ok, err := Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Exists(dir)
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	ok, err = Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")

	wrote, err := WriteIfChanged(path, []byte("one"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = WriteIfChanged(path, []byte("one"))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = WriteIfChanged(path, []byte("two"))
	require.NoError(t, err)
	assert.True(t, wrote)
}
