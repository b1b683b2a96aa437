package ipftype

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors shared by the archive packages.
var (
	// ErrFormat is the root of every archive layout or content format error.
	ErrFormat = errors.New("ipf: invalid format")

	// ErrTrailerTooShort is returned when the archive cannot hold a trailer.
	ErrTrailerTooShort = fmt.Errorf("%w: archive shorter than trailer", ErrFormat)

	// ErrInvalidPath is returned when a string does not match the virtual path grammar.
	ErrInvalidPath = fmt.Errorf("%w: invalid virtual path", ErrFormat)

	// ErrSizeMismatch is returned when inflated content differs from its declared size.
	ErrSizeMismatch = fmt.Errorf("%w: decompressed size mismatch", ErrFormat)

	// ErrDecompression is returned when a payload is not a valid raw DEFLATE stream.
	ErrDecompression = fmt.Errorf("%w: decompression failed", ErrFormat)

	// ErrNotFound is returned when a lookup scans every record without a match.
	ErrNotFound = fmt.Errorf("ipf: entry not found: %w", fs.ErrNotExist)

	// ErrUnsupported is returned for operations the format cannot perform.
	ErrUnsupported = fmt.Errorf("ipf: %w", errors.ErrUnsupported)

	// ErrSizeOverflow is returned when a size exceeds a configured or platform limit.
	ErrSizeOverflow = errors.New("ipf: size overflow")
)
