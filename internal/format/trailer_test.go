package format_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ipf/internal/format"
	"github.com/meigma/ipf/internal/ipftype"
	"github.com/meigma/ipf/internal/testutil"
)

func TestReadTrailer_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trailer format.Trailer
		prefix  int
	}{
		{name: "empty", trailer: format.Trailer{}},
		{name: "zip magic", trailer: format.Trailer{Count: 1, ListOffset: 0, Magic: [4]byte{0x50, 0x4B, 0x03, 0x04}}, prefix: 40},
		{name: "max values", trailer: format.Trailer{Count: 0xFFFF, ListOffset: 0xFFFFFFFF, Magic: [4]byte{0xFF, 0x00, 0xFF, 0x00}}},
		{name: "with payload prefix", trailer: format.Trailer{Count: 7, ListOffset: 123, Magic: [4]byte{'I', 'P', 'F', 0}}, prefix: 4096},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enc, err := tc.trailer.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, enc, format.TrailerSize)

			data := append(bytes.Repeat([]byte{0xAA}, tc.prefix), enc...)
			got, err := format.ReadTrailer(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, tc.trailer, got)
		})
	}
}

func TestReadTrailer_IgnoresReservedBytes(t *testing.T) {
	t.Parallel()

	enc, err := format.Trailer{Count: 2, ListOffset: 9, Magic: [4]byte{1, 2, 3, 4}}.MarshalBinary()
	require.NoError(t, err)
	for _, i := range []int{6, 7, 8, 9, 14, 20, 23} {
		enc[i] = 0xEE
	}

	got, err := format.ReadTrailer(bytes.NewReader(enc), int64(len(enc)))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), got.Count)
	assert.Equal(t, uint32(9), got.ListOffset)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, got.Magic)
}

func TestReadTrailer_TooShort(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 23} {
		data := make([]byte, size)
		_, err := format.ReadTrailer(bytes.NewReader(data), int64(size))
		require.Error(t, err)
		assert.ErrorIs(t, err, ipftype.ErrTrailerTooShort)
		assert.ErrorIs(t, err, ipftype.ErrFormat)
	}
}

func TestReadTrailer_SourceShorterThanSize(t *testing.T) {
	t.Parallel()

	data := make([]byte, 10)
	_, err := format.ReadTrailer(bytes.NewReader(data), 64)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ipftype.ErrFormat)
}

// failingReader fails every read with err.
type failingReader struct{ err error }

func (r failingReader) ReadAt([]byte, int64) (int, error) { return 0, r.err }

func TestReadTrailer_ReadFailureIsFormatError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "unexpected eof", err: io.ErrUnexpectedEOF},
		{name: "io error", err: errors.New("disk on fire")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := format.ReadTrailer(failingReader{err: tc.err}, 64)
			require.Error(t, err)
			assert.ErrorIs(t, err, ipftype.ErrFormat)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestReadTrailer_HelloArchive(t *testing.T) {
	t.Parallel()

	data := testutil.HelloArchive()
	require.Len(t, data, 62)

	got, err := format.ReadTrailer(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), got.Count)
	assert.Equal(t, uint32(0), got.ListOffset)
	assert.Equal(t, [4]byte{0x50, 0x4B, 0x03, 0x04}, got.Magic)
}

func TestRecordRegion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), format.RecordRegion(0))
	assert.Equal(t, int64(0), format.RecordRegion(23))
	assert.Equal(t, int64(0), format.RecordRegion(24))
	assert.Equal(t, int64(38), format.RecordRegion(62))
}

func TestAppendRecord_Overflow(t *testing.T) {
	t.Parallel()

	long := string(bytes.Repeat([]byte{'a'}, 1<<16))
	_, err := format.AppendRecord(nil, &format.Entry{Path: long})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ipftype.ErrSizeOverflow))
}
