package ipf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/encoding"

	"github.com/meigma/ipf/cache"
	"github.com/meigma/ipf/internal/cursor"
	"github.com/meigma/ipf/internal/format"
	"github.com/meigma/ipf/internal/inflate"
	"github.com/meigma/ipf/internal/ipftype"
)

// Re-export types from internal/ipftype for public API.
type (
	// Entry is one record of the archive's record list.
	Entry = ipftype.Entry
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// ByteSource provides random access to the archive bytes.
//
// Implementations exist for local files and HTTP range requests.
// SourceID must return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Archive provides read access to the records of an IPF archive.
//
// The trailer is parsed once, when the archive is opened. There is no
// index: every listing or lookup replays the record list from the list
// offset. Archive is safe for concurrent use; each scan and each
// materialization reads the source through its own positioned reader.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
type Archive struct {
	source   ByteSource
	closer   io.Closer // set when the archive owns the source
	name     string
	trailer  format.Trailer
	inflater *inflate.Inflater

	maxFileSize    uint64
	spillThreshold int64
	tempDir        string
	readAhead      int
	nameEncoding   encoding.Encoding
	cache          cache.Cache        // nil = no caching
	cacheGroup     singleflight.Group // zero value is valid
	logger         *slog.Logger

	mu       sync.Mutex
	contents map[*Content]struct{}
	closed   bool
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// New creates an Archive over source and parses its trailer.
//
// The caller keeps ownership of source; Close does not close it unless it
// was opened by Open.
func New(source ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		source:         source,
		name:           source.SourceID(),
		maxFileSize:    inflate.DefaultMaxFileSize,
		spillThreshold: DefaultSpillThreshold,
		readAhead:      cursor.DefaultWindow,
		contents:       make(map[*Content]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	t, err := format.ReadTrailer(source, source.Size())
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", a.name, err)
	}
	a.trailer = t
	a.inflater = inflate.New(source, source.Size(), inflate.WithMaxFileSize(a.maxFileSize))

	a.log().Debug("archive opened",
		"name", a.name,
		"size", source.Size(),
		"entries", t.Count,
		"list_offset", t.ListOffset)
	return a, nil
}

// Info describes an open archive.
type Info struct {
	// Name is the archive's display name: the base name of the file for
	// archives opened with Open, or the configured name otherwise.
	Name string

	// Size is the archive size in bytes.
	Size int64

	// Count is the number of records declared by the trailer.
	Count int

	// ListOffset is the offset of the first record.
	ListOffset uint32

	// Magic is the format identifier stored in the trailer.
	Magic [4]byte
}

// Info returns the trailer values and identity of the archive.
func (a *Archive) Info() Info {
	return Info{
		Name:       a.name,
		Size:       a.source.Size(),
		Count:      int(a.trailer.Count),
		ListOffset: a.trailer.ListOffset,
		Magic:      a.trailer.Magic,
	}
}

// Len returns the number of records declared by the trailer.
func (a *Archive) Len() int {
	return int(a.trailer.Count)
}

// Source returns the underlying ByteSource.
func (a *Archive) Source() ByteSource {
	return a.source
}

// Close closes every content view still open on the archive and then
// releases the byte source if the archive owns it. Errors from individual
// views are joined. Close is idempotent.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	open := make([]*Content, 0, len(a.contents))
	for c := range a.contents {
		open = append(open, c)
	}
	a.mu.Unlock()

	var errs []error
	for _, c := range open {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(open) > 0 {
		a.log().Debug("closed open contents", "name", a.name, "count", len(open))
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	return errors.Join(errs...)
}

// checkOpen returns fs.ErrClosed once Close has been called.
func (a *Archive) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fs.ErrClosed
	}
	return nil
}

// track registers c so Close can release it.
func (a *Archive) track(c *Content) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fs.ErrClosed
	}
	a.contents[c] = struct{}{}
	return nil
}

func (a *Archive) untrack(c *Content) {
	a.mu.Lock()
	delete(a.contents, c)
	a.mu.Unlock()
}

// openContents returns the number of content views not yet closed.
func (a *Archive) openContents() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.contents)
}

// newScanner seeds a fresh scanner from the trailer.
func (a *Archive) newScanner() (*format.Scanner, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	opts := []cursor.Option{cursor.WithWindow(a.readAhead)}
	if a.nameEncoding != nil {
		opts = append(opts, cursor.WithEncoding(a.nameEncoding))
	}
	return format.NewScanner(a.source, a.source.Size(), a.trailer, opts...)
}
