package ipf

import (
	"log/slog"

	"golang.org/x/text/encoding"

	"github.com/meigma/ipf/cache"
)

// DefaultSpillThreshold is the largest decompressed size held in memory
// (32 MiB). Larger contents are materialized into a temporary file.
const DefaultSpillThreshold = 32 << 20

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithName sets the display name reported by Info.
func WithName(name string) Option {
	return func(a *Archive) {
		a.name = name
	}
}

// WithMaxFileSize limits the maximum per-entry size (compressed and
// decompressed). Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithSpillThreshold sets the largest decompressed size kept in memory.
// Contents above the threshold are backed by a temporary file.
// Values < 0 force every content onto disk.
func WithSpillThreshold(n int64) Option {
	return func(a *Archive) {
		a.spillThreshold = n
	}
}

// WithTempDir sets the directory for temporary content files.
// The default is os.TempDir.
func WithTempDir(dir string) Option {
	return func(a *Archive) {
		a.tempDir = dir
	}
}

// WithReadAhead sets the read-ahead window used while scanning records.
// Larger windows mean fewer reads against slow sources.
func WithReadAhead(n int) Option {
	return func(a *Archive) {
		a.readAhead = n
	}
}

// WithNameEncoding decodes record path and name strings with enc.
// By default the bytes are used as-is.
func WithNameEncoding(enc encoding.Encoding) Option {
	return func(a *Archive) {
		a.nameEncoding = enc
	}
}

// WithCache enables caching of decompressed content.
//
// Materialized content is stored after the first inflate and copied from
// the cache on later opens. Concurrent fills for the same payload are
// deduplicated.
func WithCache(c cache.Cache) Option {
	return func(a *Archive) {
		a.cache = c
	}
}
