// Package cache provides storage for decompressed archive content.
//
// Inflating a record is the expensive part of opening it, and the archive
// format carries no index, so repeated opens of the same record redo the
// work. A Cache keeps the inflated bytes keyed by a digest of the record's
// payload location and sizes within a specific source.
//
// Two implementations are provided: disk, a sharded directory with a byte
// limit, and memory, an adaptive replacement cache bounded by entry count.
package cache
