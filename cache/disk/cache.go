// Package disk implements a filesystem-backed cache of inflated record
// contents.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	tempPrefix = ".cache-"
)

// Cache implements cache.Cache using the local filesystem.
//
// Entries live at <dir>/<algorithm>/<prefix>/<hex>, sharded by a prefix of
// the key. Every hit stamps the entry's modification time, so Prune and the
// byte limit evict the least recently used entries first. The cache is safe
// for concurrent use.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	now            func() time.Time

	bytes   atomic.Int64
	pruneMu sync.Mutex
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithClock sets the time source used to stamp entries on access.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a disk-backed cache rooted at dir. Entries already present
// under dir count toward the size limit.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.shardPrefixLen < 0:
		return nil, errors.New("shard prefix length must be >= 0")
	case c.maxBytes < 0:
		return nil, errors.New("max bytes must be >= 0")
	case c.now == nil:
		return nil, errors.New("clock is nil")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get opens the cached content for key and marks it as recently used.
// It reports false if key is not cached.
func (c *Cache) Get(key digest.Digest) (fs.File, bool) {
	path, err := c.entryPath(key)
	if err != nil {
		return nil, false
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from the digest, not user input
	if err != nil {
		return nil, false
	}
	// A failed stamp only affects eviction order.
	now := c.now()
	_ = os.Chtimes(path, now, now)
	return f, true
}

// Put stores the content read from f under key. An entry that is already
// cached is left alone, and content larger than the size limit is dropped.
// The caller keeps ownership of f.
func (c *Cache) Put(key digest.Digest, f fs.File) error {
	path, err := c.entryPath(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmpPath, written, err := c.writeTemp(filepath.Dir(path), f)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	ok, err := c.reserve(written)
	if err != nil || !ok {
		_ = os.Remove(tmpPath)
		return err
	}
	return c.commit(tmpPath, path, written)
}

// writeTemp copies f into a new temporary file in dir.
func (c *Cache) writeTemp(dir string, f fs.File) (string, int64, error) {
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", 0, err
	}
	written, err := io.Copy(tmp, f)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), written, nil
}

// commit moves a written temp file into place. Losing a race to another
// writer of the same key is not an error.
func (c *Cache) commit(tmpPath, path string, written int64) error {
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(written)
	return nil
}

// reserve makes room for need more bytes, pruning least recently used
// entries if necessary. It reports false when need cannot fit.
func (c *Cache) reserve(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// Delete removes the entry for key. A missing entry is not an error.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.entryPath(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err == nil {
		err = os.Remove(path)
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the least recently used entries until the cache holds at
// most targetBytes. It returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) entryPath(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("cache key %q: %w", key, err)
	}
	hexKey := key.Encoded()
	algDir := filepath.Join(c.dir, key.Algorithm().String())
	if c.shardPrefixLen == 0 {
		return filepath.Join(algDir, hexKey), nil
	}
	prefixLen := min(c.shardPrefixLen, len(hexKey))
	return filepath.Join(algDir, hexKey[:prefixLen], hexKey), nil
}
