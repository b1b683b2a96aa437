package ipf

import (
	"errors"

	"github.com/meigma/ipf/internal/ipftype"
)

// Sentinel errors re-exported from internal/ipftype.
var (
	// ErrFormat is the root of every archive layout or content format error.
	ErrFormat = ipftype.ErrFormat

	// ErrTrailerTooShort is returned when the archive is smaller than its trailer.
	ErrTrailerTooShort = ipftype.ErrTrailerTooShort

	// ErrInvalidPath is returned when a string is not a valid virtual path.
	ErrInvalidPath = ipftype.ErrInvalidPath

	// ErrSizeMismatch is returned when inflated content differs from its declared size.
	ErrSizeMismatch = ipftype.ErrSizeMismatch

	// ErrDecompression is returned when a payload is not valid raw DEFLATE data.
	ErrDecompression = ipftype.ErrDecompression

	// ErrNotFound is returned when no record matches a path.
	// It matches fs.ErrNotExist.
	ErrNotFound = ipftype.ErrNotFound

	// ErrUnsupported is returned for operations the archive cannot perform.
	// It matches errors.ErrUnsupported.
	ErrUnsupported = ipftype.ErrUnsupported

	// ErrSizeOverflow is returned when a size exceeds a configured limit.
	ErrSizeOverflow = ipftype.ErrSizeOverflow
)

// ErrPathRange is returned when a segment index or range is out of bounds.
var ErrPathRange = errors.New("ipf: path index out of range")
