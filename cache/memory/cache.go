// Package memory implements an in-process content cache backed by an
// adaptive replacement cache.
package memory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencontainers/go-digest"
)

// DefaultEntries is the default number of cached contents.
const DefaultEntries = 64

// Cache implements cache.Cache in memory.
//
// Capacity is bounded by entry count; the ARC policy balances recently and
// frequently used contents. An optional byte limit rejects oversized
// contents and prunes on insert. The cache is safe for concurrent use.
type Cache struct {
	entries  int
	maxBytes int64

	mu  sync.Mutex // guards size accounting across Add and Prune
	arc *arc.ARCCache[digest.Digest, []byte]
}

// Option configures a memory cache.
type Option func(*Cache)

// WithEntries sets the maximum number of cached contents.
func WithEntries(n int) Option {
	return func(c *Cache) {
		c.entries = n
	}
}

// WithMaxBytes sets the maximum total size in bytes. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a memory cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{entries: DefaultEntries}
	for _, opt := range opts {
		opt(c)
	}
	if c.entries <= 0 {
		return nil, errors.New("entries must be > 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	a, err := arc.NewARC[digest.Digest, []byte](c.entries)
	if err != nil {
		return nil, fmt.Errorf("create arc cache: %w", err)
	}
	c.arc = a
	return c, nil
}

// Get returns a reader over the cached content.
func (c *Cache) Get(key digest.Digest) (fs.File, bool) {
	data, ok := c.arc.Get(key)
	if !ok {
		return nil, false
	}
	return &bytesFile{Reader: bytes.NewReader(data), name: key.Encoded(), size: int64(len(data))}, true
}

// Put reads f to completion and stores its bytes.
func (c *Cache) Put(key digest.Digest, f fs.File) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("cache key %q: %w", key, err)
	}
	if c.arc.Contains(key) {
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxBytes > 0 {
		c.pruneLocked(c.maxBytes - int64(len(data)))
	}
	c.arc.Add(key, data)
	return nil
}

// Delete removes cached content for the given key.
func (c *Cache) Delete(key digest.Digest) error {
	c.arc.Remove(key)
	return nil
}

// Len returns the number of cached contents.
func (c *Cache) Len() int {
	return c.arc.Len()
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	var total int64
	for _, key := range c.arc.Keys() {
		if data, ok := c.arc.Peek(key); ok {
			total += int64(len(data))
		}
	}
	return total
}

// Prune removes entries, recently used ones last, until the cache holds at
// most targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(targetBytes), nil
}

func (c *Cache) pruneLocked(targetBytes int64) int64 {
	if targetBytes < 0 {
		targetBytes = 0
	}
	remaining := c.SizeBytes()
	var freed int64
	for _, key := range c.arc.Keys() {
		if remaining <= targetBytes {
			break
		}
		data, ok := c.arc.Peek(key)
		if !ok {
			continue
		}
		c.arc.Remove(key)
		remaining -= int64(len(data))
		freed += int64(len(data))
	}
	return freed
}

// bytesFile wraps cached bytes as an fs.File.
type bytesFile struct {
	*bytes.Reader
	name string
	size int64
}

// Stat returns synthetic file info with the cached size.
func (f *bytesFile) Stat() (fs.FileInfo, error) {
	return &bytesFileInfo{name: f.name, size: f.size}, nil
}

// Close is a no-op since the underlying bytes.Reader needs no cleanup.
func (f *bytesFile) Close() error { return nil }

type bytesFileInfo struct {
	name string
	size int64
}

func (fi *bytesFileInfo) Name() string       { return fi.name }
func (fi *bytesFileInfo) Size() int64        { return fi.size }
func (fi *bytesFileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi *bytesFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *bytesFileInfo) IsDir() bool        { return false }
func (fi *bytesFileInfo) Sys() any           { return nil }
