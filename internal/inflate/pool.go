package inflate

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Pool manages reusable raw DEFLATE readers to reduce allocation overhead.
type Pool struct {
	pool *sync.Pool
}

// NewPool creates an empty reader pool.
func NewPool() *Pool {
	return &Pool{pool: &sync.Pool{}}
}

// Get returns a decompressor reading from r.
// The caller must call the returned release function when done.
func (p *Pool) Get(r io.Reader) (io.ReadCloser, func()) {
	if p == nil || p.pool == nil {
		dec := flate.NewReader(r)
		return dec, func() { _ = dec.Close() }
	}

	if value := p.pool.Get(); value != nil {
		if dec, ok := value.(io.ReadCloser); ok {
			if resetter, ok := dec.(flate.Resetter); ok && resetter.Reset(r, nil) == nil {
				return dec, func() { p.put(dec) }
			}
		}
	}

	dec := flate.NewReader(r)
	return dec, func() { p.put(dec) }
}

func (p *Pool) put(dec io.ReadCloser) {
	if resetter, ok := dec.(flate.Resetter); ok {
		// Drop the reference to the source before pooling.
		_ = resetter.Reset(eofReader{}, nil) //nolint:errcheck // clearing state before pool return
	}
	p.pool.Put(dec)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
