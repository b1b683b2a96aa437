package ipf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
)

// Mode selects what a Content allows.
type Mode int

const (
	// ReadOnly rejects writes with ErrUnsupported.
	ReadOnly Mode = iota

	// ReadWriteScratch allows writes to the decompressed copy. Changes are
	// never written back to the archive and are lost on Close.
	ReadWriteScratch
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWriteScratch:
		return "read-write-scratch"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Interface compliance.
var (
	_ fs.File     = (*Content)(nil)
	_ io.ReaderAt = (*Content)(nil)
	_ io.Seeker   = (*Content)(nil)
	_ io.Writer   = (*Content)(nil)
	_ io.WriterAt = (*Content)(nil)
)

// Content is the decompressed data of one record, open for random access.
//
// The data is held in memory or, above the spill threshold, in a temporary
// file. Close releases the storage exactly once; every other method fails
// with fs.ErrClosed afterwards. A Content belongs to one caller but may be
// closed concurrently by Archive.Close.
type Content struct {
	archive *Archive
	entry   Entry
	mode    Mode

	mu       sync.Mutex
	data     backing
	off      int64
	closed   bool
	closeErr error
}

// OpenContent decompresses the payload of e into a new Content.
//
// The payload is read with positioned reads only, so any number of contents
// may be opened concurrently. The inflated length must equal e.Size.
func (a *Archive) OpenContent(e Entry, mode Mode) (*Content, error) {
	if mode != ReadOnly && mode != ReadWriteScratch {
		return nil, fmt.Errorf("open content %s: invalid mode %d", e.AbsPath(), int(mode))
	}
	if err := a.checkOpen(); err != nil {
		return nil, fmt.Errorf("open content %s: %w", e.AbsPath(), err)
	}
	if err := a.inflater.Validate(&e); err != nil {
		return nil, fmt.Errorf("open content %s: %w", e.AbsPath(), err)
	}

	data, err := a.newBacking(&e)
	if err != nil {
		return nil, fmt.Errorf("open content %s: %w", e.AbsPath(), err)
	}
	if err := a.materialize(&e, io.NewOffsetWriter(data, 0)); err != nil {
		return nil, fmt.Errorf("open content %s: %w", e.AbsPath(), errors.Join(err, data.Release()))
	}

	c := &Content{archive: a, entry: e, mode: mode, data: data}
	if err := a.track(c); err != nil {
		return nil, fmt.Errorf("open content %s: %w", e.AbsPath(), errors.Join(err, data.Release()))
	}
	a.log().Debug("content materialized",
		"path", e.AbsPath(),
		"compressed_size", e.CompressedSize,
		"size", e.Size,
		"backing", data.Kind(),
		"mode", mode.String())
	return c, nil
}

// OpenPath looks up p and opens its content.
func (a *Archive) OpenPath(p Path, mode Mode) (*Content, error) {
	e, err := a.Lookup(p)
	if err != nil {
		return nil, err
	}
	return a.OpenContent(e, mode)
}

// newBacking picks in-memory or temporary-file storage for e.
func (a *Archive) newBacking(e *Entry) (backing, error) {
	if a.spillThreshold >= 0 && int64(e.Size) <= a.spillThreshold {
		return newScratch(int(e.Size)), nil
	}
	return newTempFile(a.tempDir, e.Path)
}

// Entry returns the record the content was materialized from.
func (c *Content) Entry() Entry {
	return c.entry
}

// Mode returns the access mode.
func (c *Content) Mode() Mode {
	return c.mode
}

// Name returns the absolute virtual path of the content.
func (c *Content) Name() string {
	return c.entry.AbsPath()
}

// Read implements io.Reader.
func (c *Content) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := c.data.ReadAt(p, c.off)
	c.off += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// ReadAt implements io.ReaderAt. It does not move the offset.
func (c *Content) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "read", Path: c.Name(), Err: errNegativeOffset}
	}
	return c.data.ReadAt(p, off)
}

// Seek implements io.Seeker.
func (c *Content) Seek(offset int64, whence int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("seek"); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = c.off
	case io.SeekEnd:
		size, err := c.data.Size()
		if err != nil {
			return 0, &fs.PathError{Op: "seek", Path: c.Name(), Err: err}
		}
		base = size
	default:
		return 0, &fs.PathError{Op: "seek", Path: c.Name(), Err: fs.ErrInvalid}
	}
	if base+offset < 0 {
		return 0, &fs.PathError{Op: "seek", Path: c.Name(), Err: errNegativeOffset}
	}
	c.off = base + offset
	return c.off, nil
}

// Write implements io.Writer for ReadWriteScratch contents.
func (c *Content) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWrite("write"); err != nil {
		return 0, err
	}
	n, err := c.data.WriteAt(p, c.off)
	c.off += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt for ReadWriteScratch contents.
func (c *Content) WriteAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWrite("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "write", Path: c.Name(), Err: errNegativeOffset}
	}
	return c.data.WriteAt(p, off)
}

// Truncate changes the size of a ReadWriteScratch content. Growing pads
// with zero bytes.
func (c *Content) Truncate(size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWrite("truncate"); err != nil {
		return err
	}
	if err := c.data.Truncate(size); err != nil {
		return &fs.PathError{Op: "truncate", Path: c.Name(), Err: err}
	}
	return nil
}

// Size returns the current size, which differs from Entry().Size only
// after scratch writes.
func (c *Content) Size() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("size"); err != nil {
		return 0, err
	}
	return c.data.Size()
}

// Stat implements fs.File.
func (c *Content) Stat() (fs.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("stat"); err != nil {
		return nil, err
	}
	info := newFileInfo(&c.entry, path.Base(c.entry.Path))
	size, err := c.data.Size()
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: c.Name(), Err: err}
	}
	info.size = size
	return info, nil
}

// Close releases the content's storage. The first call reports any
// release failure; later calls return the same result.
func (c *Content) Close() error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.closed = true
	if err := c.data.Release(); err != nil {
		c.closeErr = &fs.PathError{Op: "close", Path: c.Name(), Err: err}
	}
	err := c.closeErr
	c.mu.Unlock()

	c.archive.untrack(c)
	if err != nil {
		c.archive.log().Debug("content release failed", "path", c.Name(), "error", err)
	}
	return err
}

func (c *Content) check(op string) error {
	if c.closed {
		return &fs.PathError{Op: op, Path: c.Name(), Err: fs.ErrClosed}
	}
	return nil
}

func (c *Content) checkWrite(op string) error {
	if err := c.check(op); err != nil {
		return err
	}
	if c.mode != ReadWriteScratch {
		return &fs.PathError{Op: op, Path: c.Name(), Err: ErrUnsupported}
	}
	return nil
}
