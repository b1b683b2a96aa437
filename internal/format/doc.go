// Package format implements the IPF archive binary layout.
//
// An archive ends with a fixed 24-byte trailer:
//
//	offset  size  field
//	0       2     entry count (u16 LE)
//	2       4     record list offset (u32 LE)
//	6       4     reserved
//	10      4     magic
//	14      10    reserved
//
// The record list starts at the list offset and holds exactly entry-count
// variable-length records:
//
//	pathSize u16 | crc u32 | compressedSize u32 | size u32 | offset u32 |
//	fsNameSize u16 | fsName [fsNameSize] | path [pathSize]
//
// There is no index. Every listing or lookup replays the record list with a
// fresh Scanner.
package format
