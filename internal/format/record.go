package format

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/meigma/ipf/internal/ipftype"
)

// Entry is a parsed record.
type Entry = ipftype.Entry

// skipAfterPathSize is the width of crc, compressedSize, size and offset,
// which a path-only read steps over.
const skipAfterPathSize = 16

// AppendRecord appends the on-disk encoding of e to buf.
// PathSize and FSNameSize are derived from the string lengths.
func AppendRecord(buf []byte, e *Entry) ([]byte, error) {
	if len(e.Path) > math.MaxUint16 {
		return nil, fmt.Errorf("record path %q: %w", e.Path, ipftype.ErrSizeOverflow)
	}
	if len(e.FSName) > math.MaxUint16 {
		return nil, fmt.Errorf("record fs name: %w", ipftype.ErrSizeOverflow)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Path))) //nolint:gosec // checked above
	buf = binary.LittleEndian.AppendUint32(buf, e.CRC)
	buf = binary.LittleEndian.AppendUint32(buf, e.CompressedSize)
	buf = binary.LittleEndian.AppendUint32(buf, e.Size)
	buf = binary.LittleEndian.AppendUint32(buf, e.Offset)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.FSName))) //nolint:gosec // checked above
	buf = append(buf, e.FSName...)
	buf = append(buf, e.Path...)
	return buf, nil
}
