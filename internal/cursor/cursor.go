// Package cursor implements a positioned little-endian reader over an
// io.ReaderAt.
//
// A Cursor batches small field reads through a read-ahead window so that
// sources with expensive ReadAt calls (HTTP range requests, for example)
// see one request per window rather than one per field. The underlying
// source is only ever accessed through ReadAt, so any number of cursors may
// share a source concurrently. A single Cursor is not safe for concurrent use.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
)

// DefaultWindow is the default read-ahead window size in bytes.
const DefaultWindow = 4 << 10

// ErrOutOfRange is returned when a seek or skip leaves the readable region.
var ErrOutOfRange = errors.New("cursor: offset out of range")

// Cursor reads little-endian values from a bounded region of an io.ReaderAt.
type Cursor struct {
	src  io.ReaderAt
	size int64
	pos  int64

	window int
	buf    []byte
	bufOff int64

	enc encoding.Encoding
	dec *encoding.Decoder
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithWindow sets the read-ahead window size. Values <= 0 disable buffering.
func WithWindow(n int) Option {
	return func(c *Cursor) {
		if n < 0 {
			n = 0
		}
		c.window = n
	}
}

// WithEncoding decodes strings returned by ReadString with enc.
// A nil encoding returns raw bytes.
func WithEncoding(enc encoding.Encoding) Option {
	return func(c *Cursor) {
		c.enc = enc
	}
}

// New returns a Cursor over the first size bytes of src, positioned at 0.
func New(src io.ReaderAt, size int64, opts ...Option) *Cursor {
	c := &Cursor{
		src:    src,
		size:   size,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.enc != nil {
		c.dec = c.enc.NewDecoder()
	}
	return c
}

// Position returns the current absolute offset.
func (c *Cursor) Position() int64 {
	return c.pos
}

// Len returns the size of the readable region.
func (c *Cursor) Len() int64 {
	return c.size
}

// Seek moves the cursor to an absolute offset in [0, Len()].
func (c *Cursor) Seek(off int64) error {
	if off < 0 || off > c.size {
		return fmt.Errorf("seek to %d (size %d): %w", off, c.size, ErrOutOfRange)
	}
	c.pos = off
	return nil
}

// Skip moves the cursor by n bytes. Negative values rewind.
func (c *Cursor) Skip(n int64) error {
	return c.Seek(c.pos + n)
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadBytes reads exactly n bytes. The returned slice is owned by the caller.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads n bytes and decodes them as text.
func (c *Cursor) ReadString(n int) (string, error) {
	b, err := c.next(n)
	if err != nil {
		return "", err
	}
	if c.dec == nil {
		return string(b), nil
	}
	s, err := c.dec.String(string(b))
	if err != nil {
		return "", fmt.Errorf("decode string at %d: %w", c.pos-int64(n), err)
	}
	return s, nil
}

// next returns a view of the next n bytes and advances past them.
// The view is only valid until the next call.
func (c *Cursor) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read %d bytes: negative length", n)
	}
	if int64(n) > c.size-c.pos {
		return nil, fmt.Errorf("read %d bytes at %d (size %d): %w", n, c.pos, c.size, io.ErrUnexpectedEOF)
	}
	if n == 0 {
		return nil, nil
	}

	if c.buffered(n) {
		start := c.pos - c.bufOff
		c.pos += int64(n)
		return c.buf[start : start+int64(n)], nil
	}

	if n > c.window {
		b := make([]byte, n)
		if err := c.readAt(b, c.pos); err != nil {
			return nil, err
		}
		c.pos += int64(n)
		return b, nil
	}

	if err := c.fill(); err != nil {
		return nil, err
	}
	c.pos += int64(n)
	return c.buf[:n], nil
}

// buffered reports whether [pos, pos+n) is already held in the window.
func (c *Cursor) buffered(n int) bool {
	if len(c.buf) == 0 || c.pos < c.bufOff {
		return false
	}
	return c.pos+int64(n) <= c.bufOff+int64(len(c.buf))
}

// fill loads the window starting at the current position.
func (c *Cursor) fill() error {
	want := int64(c.window)
	if remaining := c.size - c.pos; remaining < want {
		want = remaining
	}
	if cap(c.buf) < int(want) {
		c.buf = make([]byte, want)
	}
	c.buf = c.buf[:want]
	if err := c.readAt(c.buf, c.pos); err != nil {
		c.buf = c.buf[:0]
		return err
	}
	c.bufOff = c.pos
	return nil
}

// readAt fills p from the source, treating any shortfall as an error.
func (c *Cursor) readAt(p []byte, off int64) error {
	n, err := c.src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("read %d bytes at %d: got %d: %w", len(p), off, n, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("read %d bytes at %d: %w", len(p), off, err)
}
