package format

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/ipf/internal/cursor"
	"github.com/meigma/ipf/internal/ipftype"
)

// TrailerSize is the fixed size of the archive trailer.
const TrailerSize = 24

// Trailer holds the scan parameters stored at the end of an archive.
type Trailer struct {
	// Count is the number of records in the list.
	Count uint16

	// ListOffset is the absolute offset of the first record.
	ListOffset uint32

	// Magic identifies the format. It is read but not validated.
	Magic [4]byte
}

// ReadTrailer parses the trailer of an archive of the given size.
func ReadTrailer(src io.ReaderAt, size int64) (Trailer, error) {
	if size < TrailerSize {
		return Trailer{}, fmt.Errorf("archive size %d: %w", size, ipftype.ErrTrailerTooShort)
	}

	c := cursor.New(src, size, cursor.WithWindow(TrailerSize))
	if err := c.Seek(size - TrailerSize); err != nil {
		return Trailer{}, trailerError("position", err)
	}

	var t Trailer
	var err error
	if t.Count, err = c.ReadU16(); err != nil {
		return Trailer{}, trailerError("entry count", err)
	}
	if t.ListOffset, err = c.ReadU32(); err != nil {
		return Trailer{}, trailerError("list offset", err)
	}
	if err = c.Skip(4); err != nil {
		return Trailer{}, trailerError("reserved bytes", err)
	}
	magic, err := c.ReadBytes(len(t.Magic))
	if err != nil {
		return Trailer{}, trailerError("magic", err)
	}
	copy(t.Magic[:], magic)
	return t, nil
}

// trailerError reports an unreadable trailer as a format error while
// keeping the underlying read error visible to errors.Is.
func trailerError(field string, err error) error {
	return fmt.Errorf("%w: read trailer %s: %w", ipftype.ErrFormat, field, err)
}

// MarshalBinary encodes the trailer in its 24-byte on-disk form.
// Reserved bytes are written as zero.
func (t Trailer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TrailerSize)
	binary.LittleEndian.PutUint16(buf[0:], t.Count)
	binary.LittleEndian.PutUint32(buf[2:], t.ListOffset)
	copy(buf[10:14], t.Magic[:])
	return buf, nil
}

// RecordRegion returns the length of the region records may occupy in an
// archive of the given size: everything before the trailer.
func RecordRegion(size int64) int64 {
	if size < TrailerSize {
		return 0
	}
	return size - TrailerSize
}
