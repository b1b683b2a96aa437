package ipf

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ipf/internal/testutil"
)

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestContent_ReadSeekReadAt(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, []testFile{{path: "letters.txt", content: "abcdefghij"}})
	c, err := a.OpenPath(MustParsePath("/letters.txt"), ReadOnly)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "/letters.txt", c.Name())
	assert.Equal(t, ReadOnly, c.Mode())
	assert.Equal(t, "letters.txt", c.Entry().Path)

	buf := make([]byte, 3)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	pos, err := c.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
	n, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "fgh", string(buf[:n]))

	pos, err = c.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)
	rest, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "j", string(rest))

	n, err = c.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	// ReadAt does not move the offset.
	_, err = c.Seek(0, io.SeekStart)
	require.NoError(t, err)
	n, err = c.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "efg", string(buf[:n]))
	n, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = c.ReadAt(buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = c.Seek(-1, io.SeekStart)
	assert.Error(t, err)
	_, err = c.Seek(0, 42)
	assert.ErrorIs(t, err, fs.ErrInvalid)
	_, err = c.ReadAt(buf, -1)
	assert.Error(t, err)

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	info, err := c.Stat()
	require.NoError(t, err)
	assert.Equal(t, "letters.txt", info.Name())
	assert.Equal(t, int64(10), info.Size())
	assert.False(t, info.IsDir())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())
}

func TestContent_ReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)
	c, err := a.OpenPath(MustParsePath("/a.txt"), ReadOnly)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrUnsupported)
	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "write", pathErr.Op)
	assert.Equal(t, "/a.txt", pathErr.Path)

	_, err = c.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, c.Truncate(0), ErrUnsupported)

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestContent_ScratchWrites(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		spill int64
	}{
		{name: "memory", spill: DefaultSpillThreshold},
		{name: "file", spill: -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := helloArchive(t, WithSpillThreshold(tc.spill), WithTempDir(t.TempDir()))
			c, err := a.OpenPath(MustParsePath("/a.txt"), ReadWriteScratch)
			require.NoError(t, err)
			defer c.Close()

			_, err = c.Seek(0, io.SeekEnd)
			require.NoError(t, err)
			_, err = c.Write([]byte(", world"))
			require.NoError(t, err)
			_, err = c.WriteAt([]byte("J"), 0)
			require.NoError(t, err)

			buf := make([]byte, 12)
			n, err := c.ReadAt(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, "Jello, world", string(buf[:n]))

			require.NoError(t, c.Truncate(3))
			size, err := c.Size()
			require.NoError(t, err)
			assert.Equal(t, int64(3), size)

			require.NoError(t, c.Truncate(5))
			buf = make([]byte, 5)
			_, err = c.ReadAt(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, []byte{'J', 'e', 'l', 0, 0}, buf)

			info, err := c.Stat()
			require.NoError(t, err)
			assert.Equal(t, int64(5), info.Size())

			// The archive is never modified by scratch writes.
			other, err := a.ReadFile("a.txt")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(other))
		})
	}
}

func TestContent_SpillToTempFile(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	content := strings.Repeat("spill me ", 100)
	a := newTestArchive(t, []testFile{{path: "a/b.txt", content: content}},
		WithSpillThreshold(64), WithTempDir(tmp))

	c, err := a.OpenPath(MustParsePath("/a/b.txt"), ReadOnly)
	require.NoError(t, err)

	names := tempEntries(t, tmp)
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "ipf-"), names[0])
	assert.True(t, strings.HasSuffix(names[0], "a_b.txt"), names[0])

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	require.NoError(t, c.Close())
	assert.Empty(t, tempEntries(t, tmp))
}

func TestContent_BelowThresholdStaysInMemory(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	a := helloArchive(t, WithSpillThreshold(5), WithTempDir(tmp))

	c, err := a.OpenPath(MustParsePath("/a.txt"), ReadOnly)
	require.NoError(t, err)
	defer c.Close()
	assert.Empty(t, tempEntries(t, tmp))
}

func TestContent_CloseIdempotent(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	a := helloArchive(t, WithSpillThreshold(-1), WithTempDir(tmp))
	c, err := a.OpenPath(MustParsePath("/a.txt"), ReadWriteScratch)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Empty(t, tempEntries(t, tmp))

	buf := make([]byte, 1)
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = c.ReadAt(buf, 0)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = c.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = c.Write(buf)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = c.WriteAt(buf, 0)
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, c.Truncate(0), fs.ErrClosed)
	_, err = c.Size()
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = c.Stat()
	assert.ErrorIs(t, err, fs.ErrClosed)
}

func TestContent_CloseReportsReleaseFailure(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	a := helloArchive(t, WithSpillThreshold(-1), WithTempDir(tmp))
	c, err := a.OpenPath(MustParsePath("/a.txt"), ReadOnly)
	require.NoError(t, err)

	tf, ok := c.data.(*tempFile)
	require.True(t, ok)
	require.NoError(t, tf.file.Close())

	first := c.Close()
	require.Error(t, first)
	assert.ErrorIs(t, first, os.ErrClosed)
	assert.Equal(t, first, c.Close(), "later calls report the same result")
	assert.Empty(t, tempEntries(t, tmp), "the file is removed even when close fails")
}

func TestContent_FailedMaterializationCleansUp(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	src := testutil.NewBuilder(t).
		AddRaw("short.txt", testutil.Deflate(t, []byte("four")), 6).
		AddRaw("corrupt.txt", []byte{0xFF, 0xFF, 0xFF}, 3).
		Source()
	a, err := New(src, WithSpillThreshold(-1), WithTempDir(tmp))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.OpenPath(MustParsePath("/short.txt"), ReadOnly)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = a.OpenPath(MustParsePath("/corrupt.txt"), ReadOnly)
	assert.ErrorIs(t, err, ErrDecompression)
	assert.ErrorIs(t, err, ErrFormat)

	assert.Empty(t, tempEntries(t, tmp))
	assert.Zero(t, a.openContents())
}

func TestContent_PayloadOutsideArchive(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)
	e, err := a.LookupString("/a.txt")
	require.NoError(t, err)

	e.Offset = 1000
	_, err = a.OpenContent(e, ReadOnly)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestContent_MaxFileSize(t *testing.T) {
	t.Parallel()

	a := helloArchive(t, WithMaxFileSize(4))
	_, err := a.OpenPath(MustParsePath("/a.txt"), ReadOnly)
	assert.ErrorIs(t, err, ErrSizeOverflow)
}

func TestContent_InvalidMode(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)
	e, err := a.LookupString("/a.txt")
	require.NoError(t, err)
	_, err = a.OpenContent(e, Mode(7))
	assert.Error(t, err)
	assert.Equal(t, "Mode(7)", Mode(7).String())
	assert.Equal(t, "read-write-scratch", ReadWriteScratch.String())
}

func TestContent_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, sampleFiles)
	e, err := a.LookupString("/data/table.bin")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := a.OpenContent(e, ReadOnly)
			if err != nil {
				errs[i] = err
				return
			}
			defer c.Close()
			b, err := io.ReadAll(c)
			results[i], errs[i] = string(b), err
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, sampleFiles[4].content, results[i])
	}
}

func TestContent_OpenAfterArchiveClose(t *testing.T) {
	t.Parallel()

	a, err := New(testutil.NewMockByteSource(testutil.HelloArchive()))
	require.NoError(t, err)
	e, err := a.LookupString("/a.txt")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.OpenContent(e, ReadOnly)
	assert.ErrorIs(t, err, fs.ErrClosed)
}

func TestTempSuffix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c.txt", tempSuffix("a/b/c.txt"))
	assert.Equal(t, "plain", tempSuffix("plain"))
	assert.Equal(t, "x_y", tempSuffix(filepath.Join("x", "y")))
}
