package cache

import (
	"fmt"
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// Cache stores decompressed content.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns an fs.File for reading cached content.
	// Returns nil, false if content is not cached.
	// Each call returns a new file handle (safe for concurrent use).
	Get(key digest.Digest) (fs.File, bool)

	// Put stores content by reading from the provided fs.File.
	// The cache reads the file to completion; caller still owns/closes the file.
	Put(key digest.Digest, f fs.File) error

	// Delete removes cached content for the given key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// Key derives the cache key for a record payload. sourceID identifies the
// archive bytes; the remaining values locate and size the payload.
func Key(sourceID string, offset, compressedSize, size, crc uint32) digest.Digest {
	return digest.FromString(fmt.Sprintf("%s|%d|%d|%d|%d", sourceID, offset, compressedSize, size, crc))
}
