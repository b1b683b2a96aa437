package ipf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ipf/cache"
)

// materialize writes the decompressed content of e to dst, through the
// cache when one is configured.
func (a *Archive) materialize(e *Entry, dst io.Writer) error {
	if a.cache == nil {
		return a.inflater.Inflate(dst, e)
	}

	key := a.cacheKey(e)
	if f, ok := a.cacheGet(key, e); ok {
		a.log().Debug("content cache hit", "path", e.AbsPath())
		return copyCached(dst, f, e)
	}

	a.log().Debug("content cache miss", "path", e.AbsPath())
	if err := a.ensureCached(key, e); err != nil {
		var fill *fillError
		if errors.As(err, &fill) {
			return fill.err
		}
		a.log().Debug("content cache fill failed", "path", e.AbsPath(), "error", err)
		return a.inflater.Inflate(dst, e)
	}
	if f, ok := a.cacheGet(key, e); ok {
		return copyCached(dst, f, e)
	}
	return a.inflater.Inflate(dst, e)
}

// cacheKey identifies the payload of e within this archive's source.
func (a *Archive) cacheKey(e *Entry) digest.Digest {
	return cache.Key(a.source.SourceID(), e.Offset, e.CompressedSize, e.Size, e.CRC)
}

// cacheGet returns cached content for key if its size matches e.
// Entries of the wrong size are dropped.
func (a *Archive) cacheGet(key digest.Digest, e *Entry) (fs.File, bool) {
	f, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	info, err := f.Stat()
	if err != nil || info.Size() != int64(e.Size) {
		_ = f.Close()
		_ = a.cache.Delete(key) //nolint:errcheck // best-effort cleanup of a bad entry
		a.log().Debug("dropped cached content with wrong size", "path", e.AbsPath())
		return nil, false
	}
	return f, true
}

// ensureCached populates the cache for e if not already cached.
// Uses singleflight to prevent duplicate inflates of the same payload.
func (a *Archive) ensureCached(key digest.Digest, e *Entry) error {
	_, err, _ := a.cacheGroup.Do(key.String(), func() (any, error) {
		// Double-check after acquiring singleflight
		if f, ok := a.cache.Get(key); ok {
			_ = f.Close()
			return nil, nil //nolint:nilnil // cache hit
		}

		f := a.newInflatingFile(e)
		putErr := a.cache.Put(key, f)
		if inflateErr := f.Close(); inflateErr != nil {
			return nil, &fillError{err: inflateErr}
		}
		return nil, putErr
	})
	return err
}

// copyCached copies exactly e.Size bytes of cached content to dst.
func copyCached(dst io.Writer, f fs.File, e *Entry) error {
	defer f.Close()
	n, err := io.Copy(dst, f)
	if err != nil {
		return fmt.Errorf("read cached %s: %w", e.AbsPath(), err)
	}
	if n != int64(e.Size) {
		return fmt.Errorf("read cached %s: got %d of %d bytes: %w", e.AbsPath(), n, e.Size, io.ErrUnexpectedEOF)
	}
	return nil
}

// fillError carries an inflate failure out of a cache fill so it is
// reported instead of falling back to a second inflate.
type fillError struct {
	err error
}

func (e *fillError) Error() string { return e.err.Error() }

func (e *fillError) Unwrap() error { return e.err }

// inflatingFile streams the decompressed content of an entry as an fs.File.
// The content only reaches io.EOF when inflation succeeded with the
// declared size.
type inflatingFile struct {
	pr    *io.PipeReader
	entry Entry
	done  chan struct{}
	once  sync.Once
	err   error
}

func (a *Archive) newInflatingFile(e *Entry) *inflatingFile {
	pr, pw := io.Pipe()
	f := &inflatingFile{pr: pr, entry: *e, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = a.inflater.Inflate(pw, &f.entry)
		pw.CloseWithError(f.err)
	}()
	return f
}

func (f *inflatingFile) Read(p []byte) (int, error) {
	return f.pr.Read(p)
}

func (f *inflatingFile) Stat() (fs.FileInfo, error) {
	return newFileInfo(&f.entry, f.entry.Path), nil
}

// Close stops the inflate if it is still running and returns its error.
func (f *inflatingFile) Close() error {
	f.once.Do(func() {
		_ = f.pr.CloseWithError(fs.ErrClosed)
		<-f.done
	})
	if errors.Is(f.err, fs.ErrClosed) || errors.Is(f.err, io.ErrClosedPipe) {
		return nil
	}
	return f.err
}
