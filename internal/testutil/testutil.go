// Package testutil builds IPF archives and in-memory byte sources for tests.
package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
	"io"
	"math"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/meigma/ipf/internal/format"
	"github.com/meigma/ipf/internal/ipftype"
)

// DefaultMagic is the magic written by Builder unless overridden.
var DefaultMagic = [4]byte{0x50, 0x4B, 0x05, 0x06}

// DefaultFSName is the archive name embedded in records by Builder.
const DefaultFSName = "data.ipf"

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	sum := sha256.Sum256(data)
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Deflate compresses data as a raw DEFLATE stream.
func Deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		tb.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("flate write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("flate close error = %v", err)
	}
	return buf.Bytes()
}

type builderEntry struct {
	path    string
	fsName  string
	payload []byte
	size    uint32
	crc     uint32
}

// Builder assembles an archive: payloads first, then the record list,
// then the trailer.
type Builder struct {
	tb      testing.TB
	entries []builderEntry
	magic   [4]byte
	fsName  string
}

// NewBuilder returns an empty Builder.
func NewBuilder(tb testing.TB) *Builder {
	tb.Helper()
	return &Builder{tb: tb, magic: DefaultMagic, fsName: DefaultFSName}
}

// WithMagic overrides the trailer magic.
func (b *Builder) WithMagic(magic [4]byte) *Builder {
	b.magic = magic
	return b
}

// WithFSName overrides the archive name embedded in each record.
func (b *Builder) WithFSName(name string) *Builder {
	b.fsName = name
	return b
}

// Add appends a record whose payload is content compressed with raw DEFLATE.
// path is stored as given, so it must not carry a leading slash.
func (b *Builder) Add(path string, content []byte) *Builder {
	b.tb.Helper()
	return b.AddRaw(path, Deflate(b.tb, content), uint32(len(content))) //nolint:gosec // test content is small
}

// AddRaw appends a record with a caller-supplied payload and declared size.
// It is used to build corrupt or mismatched archives.
func (b *Builder) AddRaw(path string, payload []byte, size uint32) *Builder {
	b.tb.Helper()
	if len(payload) > math.MaxUint32 {
		b.tb.Fatalf("payload for %s too large", path)
	}
	b.entries = append(b.entries, builderEntry{
		path:    path,
		fsName:  b.fsName,
		payload: payload,
		size:    size,
		crc:     crc32.ChecksumIEEE(payload),
	})
	return b
}

// Build returns the encoded archive.
func (b *Builder) Build() []byte {
	b.tb.Helper()

	var out bytes.Buffer
	records := make([]ipftype.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		off := out.Len()
		out.Write(e.payload)
		records = append(records, ipftype.Entry{
			CRC:            e.crc,
			CompressedSize: uint32(len(e.payload)), //nolint:gosec // checked in AddRaw
			Size:           e.size,
			Offset:         uint32(off), //nolint:gosec // test archives are small
			FSName:         e.fsName,
			Path:           e.path,
		})
	}

	listOffset := out.Len()
	var list []byte
	for i := range records {
		var err error
		list, err = format.AppendRecord(list, &records[i])
		if err != nil {
			b.tb.Fatalf("AppendRecord() error = %v", err)
		}
	}
	out.Write(list)

	trailer := format.Trailer{
		Count:      uint16(len(records)), //nolint:gosec // test archives are small
		ListOffset: uint32(listOffset),   //nolint:gosec // test archives are small
		Magic:      b.magic,
	}
	tb, err := trailer.MarshalBinary()
	if err != nil {
		b.tb.Fatalf("MarshalBinary() error = %v", err)
	}
	out.Write(tb)
	return out.Bytes()
}

// Source builds the archive and wraps it in a MockByteSource.
func (b *Builder) Source() *MockByteSource {
	b.tb.Helper()
	return NewMockByteSource(b.Build())
}

// HelloArchive returns the smallest meaningful archive: one record for
// "a.txt" whose 7-byte raw DEFLATE payload at offset 31 inflates to "hello".
// The record list starts at offset 0 and the trailer follows the payload.
func HelloArchive() []byte {
	record := []byte{
		0x05, 0x00, // pathSize
		0x00, 0x00, 0x00, 0x00, // crc
		0x07, 0x00, 0x00, 0x00, // compressedSize
		0x05, 0x00, 0x00, 0x00, // size
		0x1F, 0x00, 0x00, 0x00, // offset = 31
		0x04, 0x00, // fsNameSize
		'd', 'a', 't', 'a',
		'a', '.', 't', 'x', 't',
	}
	data := make([]byte, 0, 62)
	data = append(data, record...)
	data = append(data, 0x00, 0x00) // padding up to offset 31
	data = append(data, 0xCB, 0x48, 0xCD, 0xC9, 0xC9, 0x07, 0x00)
	trailer := []byte{
		0x01, 0x00, // entryCount
		0x00, 0x00, 0x00, 0x00, // listOffset
		0x00, 0x00, 0x00, 0x00, // reserved
		0x50, 0x4B, 0x03, 0x04, // magic
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	return append(data, trailer...)
}
