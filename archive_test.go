package ipf

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ipf/internal/testutil"
)

// testFile is one record of a test archive, in list order.
type testFile struct {
	path    string
	content string
}

func newTestArchive(t *testing.T, files []testFile, opts ...Option) *Archive {
	t.Helper()
	b := testutil.NewBuilder(t)
	for _, f := range files {
		b.Add(f.path, []byte(f.content))
	}
	a, err := New(b.Source(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func helloArchive(t *testing.T, opts ...Option) *Archive {
	t.Helper()
	a, err := New(testutil.NewMockByteSource(testutil.HelloArchive()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

var sampleFiles = []testFile{
	{path: "readme.txt", content: "top level"},
	{path: "ui/icon.png", content: "png bytes"},
	{path: "ui/theme/dark.css", content: "body { color: white }"},
	{path: "ui/theme/light.css", content: "body { color: black }"},
	{path: "data/table.bin", content: strings.Repeat("row;", 500)},
}

func TestHelloArchive(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)

	paths, err := a.List(RootPath(), nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "/a.txt", paths[0].String())

	e, err := a.Lookup(MustParsePath("/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), e.Size)
	assert.Equal(t, uint32(7), e.CompressedSize)
	assert.Equal(t, uint32(31), e.Offset)
	assert.Equal(t, "data", e.FSName)
	assert.Equal(t, "a.txt", e.Path)

	c, err := a.OpenContent(e, ReadOnly)
	require.NoError(t, err)
	defer c.Close()

	got, err := io.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 'e', 'l', 'l', 'o'}, got)
}

func TestLookup_NotFound(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)

	_, err := a.Lookup(MustParsePath("/missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrFormat)
	assert.NotErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = a.Lookup(MustParsePath("a.txt"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.Lookup(RootPath())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, []testFile{
		{path: "dup.txt", content: "first"},
		{path: "other.txt", content: "other"},
		{path: "dup.txt", content: "second!"},
	})

	e, err := a.Lookup(MustParsePath("/dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, uint32(len("first")), e.Size)
}

func TestLookup_CaseSensitive(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, []testFile{{path: "Data/File.TXT", content: "x"}})

	_, err := a.Lookup(MustParsePath("/Data/File.TXT"))
	require.NoError(t, err)
	_, err = a.Lookup(MustParsePath("/data/file.txt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupString(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, sampleFiles)

	e, err := a.LookupString("/ui/theme/dark.css")
	require.NoError(t, err)
	assert.Equal(t, "ui/theme/dark.css", e.Path)

	_, err = a.LookupString("/ui//dark.css")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLookup_TruncatedListIsFormatError(t *testing.T) {
	t.Parallel()

	data := testutil.HelloArchive()
	data[len(data)-24] = 3 // claim three records

	a, err := New(testutil.NewMockByteSource(data))
	require.NoError(t, err)

	_, err = a.Lookup(MustParsePath("/missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNew_TrailerTooShort(t *testing.T) {
	t.Parallel()

	_, err := New(testutil.NewMockByteSource(make([]byte, 23)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrailerTooShort)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestArchive_Info(t *testing.T) {
	t.Parallel()

	a := helloArchive(t, WithName("hello.ipf"))
	info := a.Info()
	assert.Equal(t, "hello.ipf", info.Name)
	assert.Equal(t, int64(62), info.Size)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, uint32(0), info.ListOffset)
	assert.Equal(t, [4]byte{0x50, 0x4B, 0x03, 0x04}, info.Magic)
	assert.Equal(t, 1, a.Len())
}

func TestOpen_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hello.ipf")
	require.NoError(t, os.WriteFile(path, testutil.HelloArchive(), 0o600))

	a, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "hello.ipf", a.Info().Name)
	content, err := a.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.ipf"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = Open(dir)
	assert.Error(t, err)

	short := filepath.Join(dir, "short.ipf")
	require.NoError(t, os.WriteFile(short, []byte("tiny"), 0o600))
	_, err = Open(short)
	assert.ErrorIs(t, err, ErrTrailerTooShort)

	empty := filepath.Join(dir, "empty.ipf")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = Open(empty)
	assert.ErrorIs(t, err, ErrTrailerTooShort)
}

func TestArchive_CloseReleasesContents(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	a := newTestArchive(t, sampleFiles, WithSpillThreshold(-1), WithTempDir(tmp))

	var contents []*Content
	for _, p := range []string{"/readme.txt", "/ui/icon.png", "/data/table.bin"} {
		e, err := a.LookupString(p)
		require.NoError(t, err)
		c, err := a.OpenContent(e, ReadOnly)
		require.NoError(t, err)
		contents = append(contents, c)
	}
	require.NoError(t, contents[0].Close())
	assert.Equal(t, 2, a.openContents())

	files, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	require.NoError(t, a.Close())
	assert.Equal(t, 0, a.openContents())

	files, err = os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, files)

	for _, c := range contents {
		_, err := c.Read(make([]byte, 1))
		assert.ErrorIs(t, err, fs.ErrClosed)
	}
}

func TestArchive_OperationsAfterClose(t *testing.T) {
	t.Parallel()

	a := helloArchive(t)
	e, err := a.LookupString("/a.txt")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.Lookup(MustParsePath("/a.txt"))
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = a.ListEntries(RootPath(), nil)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = a.OpenContent(e, ReadOnly)
	assert.ErrorIs(t, err, fs.ErrClosed)
	_, err = a.ReadFile("a.txt")
	assert.ErrorIs(t, err, fs.ErrClosed)
}

type closeTrackingSource struct {
	*testutil.MockByteSource
	closed int
	err    error
}

func (s *closeTrackingSource) Close() error {
	s.closed++
	return s.err
}

func TestArchive_CloseOwnedSource(t *testing.T) {
	t.Parallel()

	boom := errors.New("unmap failed")
	src := &closeTrackingSource{MockByteSource: testutil.NewMockByteSource(testutil.HelloArchive()), err: boom}

	a, err := New(src)
	require.NoError(t, err)
	require.NoError(t, a.Close(), "New does not take ownership of the source")
	assert.Equal(t, 0, src.closed)

	owned, err := New(src)
	require.NoError(t, err)
	owned.closer = src
	err = owned.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, src.closed)
}

func TestArchive_Logger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := helloArchive(t, WithLogger(logger), WithName("logged.ipf"))
	_, err := a.ReadFile("a.txt")
	require.NoError(t, err)

	c, err := a.OpenPath(MustParsePath("/a.txt"), ReadOnly)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	out := buf.String()
	assert.Contains(t, out, "archive opened")
	assert.Contains(t, out, "name=logged.ipf")
	assert.Contains(t, out, "content materialized")
	assert.Contains(t, out, "backing=memory")
}

func TestArchive_ReadAheadWindow(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, sampleFiles, WithReadAhead(0))
	paths, err := a.List(RootPath(), nil)
	require.NoError(t, err)
	assert.Len(t, paths, len(sampleFiles))
}
