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

func filesystems(t *testing.T) map[string]struct {
	fsys FileSystem
	dir  string
} {
	mem := NewMemoryFileSystem()
	return map[string]struct {
		fsys FileSystem
		dir  string
	}{
		"os":     {OSFileSystem{}, t.TempDir()},
		"memory": {mem, "/data"},
	}
}

func TestFileSystem_Roundtrip(t *testing.T) {
	for name, tc := range filesystems(t) {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(tc.dir, "recordings")
			require.NoError(t, tc.fsys.MkdirAll(dir, 0o755))
			assert.True(t, tc.fsys.Exists(dir))

			path := filepath.Join(dir, "b.csv")
			w, err := tc.fsys.Create(path)
			require.NoError(t, err)
			_, err = io.WriteString(w, "0.0123\n")
			require.NoError(t, err)
			require.NoError(t, w.Close())

			data, err := tc.fsys.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "0.0123\n", string(data))

			f, err := tc.fsys.Open(path)
			require.NoError(t, err)
			data, err = io.ReadAll(f)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			assert.Equal(t, "0.0123\n", string(data))

			require.NoError(t, tc.fsys.Rename(path, filepath.Join(dir, "a.csv")))
			require.NoError(t, WriteAtomic(tc.fsys, filepath.Join(dir, "c.fit"), func(w io.Writer) error {
				_, err := w.Write([]byte{1, 2, 3})
				return err
			}))
			names, err := tc.fsys.ReadDir(dir)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.csv", "c.fit"}, names)

			require.NoError(t, tc.fsys.Remove(filepath.Join(dir, "a.csv")))
			assert.False(t, tc.fsys.Exists(filepath.Join(dir, "a.csv")))
			_, err = tc.fsys.ReadFile(filepath.Join(dir, "a.csv"))
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})
	}
}

func TestWriteAtomic_FailureLeavesNothing(t *testing.T) {
	mem := NewMemoryFileSystem()
	require.NoError(t, mem.MkdirAll("/data", 0o755))
	require.NoError(t, WriteAtomic(mem, "/data/session.log", func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}))

	boom := errors.New("boom")
	err := WriteAtomic(mem, "/data/session.log", func(w io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)

	names, err := mem.ReadDir("/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"session.log"}, names)
	data, _ := mem.ReadFile("/data/session.log")
	assert.Equal(t, "first", string(data))
}

func TestMemoryFileSystem_CreateNeedsDirectory(t *testing.T) {
	mem := NewMemoryFileSystem()
	_, err := mem.Create("/missing/file.csv")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = mem.ReadDir("/missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	w, err := mem.Create("top.csv")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())
	_, err = w.Write([]byte("x"))
	assert.Error(t, err)
}

func TestHasExtension(t *testing.T) {
	assert.True(t, HasExtension("a.CSV.gz", ".gz"))
	assert.True(t, HasExtension("a.fit", ".csv", ".fit"))
	assert.False(t, HasExtension("a.fit.tmp", ".fit"))
}
