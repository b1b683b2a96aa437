// Package ipftype holds the types shared between the archive packages.
package ipftype

// RecordHeaderSize is the fixed portion of an entry record, before the
// two variable-length strings.
const RecordHeaderSize = 2 + 4 + 4 + 4 + 4 + 2

// Entry is one record of the archive's record list.
type Entry struct {
	// PathSize is the byte length of Path as stored.
	PathSize uint16

	// CRC is the stored checksum of the decompressed content. It is never verified.
	CRC uint32

	// CompressedSize is the length of the stored raw DEFLATE payload.
	CompressedSize uint32

	// Size is the length of the decompressed content.
	Size uint32

	// Offset is the absolute byte offset of the compressed payload.
	Offset uint32

	// FSNameSize is the byte length of FSName as stored.
	FSNameSize uint16

	// FSName is the archive display name embedded in the record.
	FSName string

	// Path is the virtual path without its leading separator (e.g. "ui/icon.png").
	Path string
}

// AbsPath returns the record path in absolute virtual form ("/" + Path).
func (e *Entry) AbsPath() string {
	return "/" + e.Path
}

// EncodedSize returns the number of bytes the record occupies in the list.
func (e *Entry) EncodedSize() int {
	return RecordHeaderSize + int(e.FSNameSize) + int(e.PathSize)
}
