// Package inflate materializes raw DEFLATE payloads into exactly-sized
// output.
package inflate

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/ipf/internal/ipftype"
	"github.com/meigma/ipf/internal/sizing"
)

// DefaultMaxFileSize is the default limit on a decompressed entry (256 MiB).
const DefaultMaxFileSize = 256 << 20

const copyBufferSize = 32 << 10

// Inflater decompresses entry payloads from a shared source.
type Inflater struct {
	source      io.ReaderAt
	sourceSize  int64
	maxFileSize uint64
	pool        *Pool
}

// Option configures an Inflater.
type Option func(*Inflater)

// WithMaxFileSize sets the maximum decompressed or compressed size of one
// entry. Set to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(f *Inflater) {
		f.maxFileSize = limit
	}
}

// New creates an Inflater reading payloads from source, which holds
// sourceSize bytes.
func New(source io.ReaderAt, sourceSize int64, opts ...Option) *Inflater {
	f := &Inflater{
		source:      source,
		sourceSize:  sourceSize,
		maxFileSize: DefaultMaxFileSize,
		pool:        NewPool(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxFileSize returns the configured maximum entry size.
func (f *Inflater) MaxFileSize() uint64 {
	return f.maxFileSize
}

// Validate checks that e can be materialized: its sizes are within the
// limit and its payload lies inside the source.
func (f *Inflater) Validate(e *ipftype.Entry) error {
	if f.maxFileSize > 0 {
		if uint64(e.Size) > f.maxFileSize || uint64(e.CompressedSize) > f.maxFileSize {
			return fmt.Errorf("entry %s: size %d exceeds limit %d: %w", e.Path, e.Size, f.maxFileSize, ipftype.ErrSizeOverflow)
		}
	}
	if !sizing.Within(uint64(e.Offset), uint64(e.CompressedSize), f.sourceSize) {
		return fmt.Errorf("%w: entry %s: payload [%d, +%d) outside archive of %d bytes",
			ipftype.ErrFormat, e.Path, e.Offset, e.CompressedSize, f.sourceSize)
	}
	return nil
}

// Inflate decompresses the payload of e into dst. Exactly e.Size bytes are
// written on success; any other output length is ErrSizeMismatch.
func (f *Inflater) Inflate(dst io.Writer, e *ipftype.Entry) error {
	if err := f.Validate(e); err != nil {
		return err
	}

	src := &sourceReader{r: io.NewSectionReader(f.source, int64(e.Offset), int64(e.CompressedSize))}
	dec, release := f.pool.Get(src)
	defer release()

	want := int64(e.Size)
	cw := &CountingWriter{W: dst}
	buf := make([]byte, copyBufferSize)
	_, err := io.CopyBuffer(cw, &readTagger{r: io.LimitReader(dec, want+1)}, buf)
	if err != nil {
		var re readError
		if !errors.As(err, &re) {
			return fmt.Errorf("inflate %s: write: %w", e.Path, err)
		}
		if src.err != nil && !errors.Is(src.err, io.EOF) {
			return fmt.Errorf("inflate %s: read payload: %w", e.Path, src.err)
		}
		return fmt.Errorf("%w: %s: %w", ipftype.ErrDecompression, e.Path, re.err)
	}

	got, err := sizing.ToInt64(cw.N, ipftype.ErrSizeOverflow)
	if err != nil {
		return err
	}
	if got != want {
		if got > want {
			return fmt.Errorf("%w: %s: inflated to more than %d bytes", ipftype.ErrSizeMismatch, e.Path, want)
		}
		return fmt.Errorf("%w: %s: inflated to %d of %d bytes", ipftype.ErrSizeMismatch, e.Path, got, want)
	}
	return nil
}

// sourceReader remembers the last error returned by the payload source so a
// decoder failure caused by I/O is not reported as corrupt data.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

type readError struct {
	err error
}

func (e readError) Error() string { return e.err.Error() }

func (e readError) Unwrap() error { return e.err }

// readTagger marks errors coming from the decoder side of a copy.
type readTagger struct {
	r io.Reader
}

func (t *readTagger) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		err = readError{err: err}
	}
	return n, err
}
