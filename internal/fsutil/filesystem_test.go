package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}
	path := filepath.Join(dir, "sub", "mesh.cfg")

	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	assert.True(t, fsys.Exists(filepath.Dir(path)))
	assert.False(t, fsys.Exists(path))

	require.NoError(t, fsys.WriteFile(path, []byte("points ="), 0o644))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "points =", string(data))

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "G1 X1\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := fsys.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "G1 X1\n", string(got))

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.Size())
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	t.Parallel()

	mfs := NewMemoryFileSystem()
	src := []byte("hello")
	require.NoError(t, mfs.WriteFile("/a/../b.txt", src, 0o644))
	src[0] = 'j'

	data, err := mfs.ReadFile("/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data[0] = 'y'
	again, _ := mfs.ReadFile("/b.txt")
	assert.Equal(t, "hello", string(again))
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	t.Parallel()

	mfs := NewMemoryFileSystem()
	w, err := mfs.Create("/out.gcode")
	require.NoError(t, err)
	_, err = io.WriteString(w, "G1 Z0.2\n")
	require.NoError(t, err)

	data, err := mfs.ReadFile("/out.gcode")
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Close())
	data, err = mfs.ReadFile("/out.gcode")
	require.NoError(t, err)
	assert.Equal(t, "G1 Z0.2\n", string(data))
}

func TestMemoryFileSystem_Open(t *testing.T) {
	t.Parallel()

	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/in.gcode", []byte("; start\n"), 0o644))

	f, err := mfs.Open("/in.gcode")
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "in.gcode", info.Name())
	assert.EqualValues(t, 8, info.Size())

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "; start\n", string(data))

	_, err = mfs.Open("/missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_StatAndDirs(t *testing.T) {
	t.Parallel()

	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/var/lib/bedmesh", 0o755))
	for _, dir := range []string{"/var/lib/bedmesh", "/var/lib", "/var", "/"} {
		info, err := mfs.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
	assert.False(t, mfs.Exists("/etc"))

	_, err := mfs.Stat("/nope.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, mfs.WriteFile("/z.stl", nil, 0o644))
	require.NoError(t, mfs.WriteFile("/a.stl", nil, 0o644))
	assert.Equal(t, []string{"/a.stl", "/z.stl"}, mfs.Files())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	osPath := filepath.Join(t.TempDir(), "part.gcode")
	for name, fsys := range map[string]FileSystem{"os": OSFileSystem{}, "memory": NewMemoryFileSystem()} {
		t.Run(name, func(t *testing.T) {
			path := osPath
			if name == "memory" {
				path = "/out/part.gcode"
			}
			require.NoError(t, fsys.WriteFile(path, []byte("G1 X1\n"), 0o644))
			require.True(t, fsys.Exists(path))

			require.NoError(t, fsys.Remove(path))
			assert.False(t, fsys.Exists(path))

			err := fsys.Remove(path)
			assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
		})
	}
}
