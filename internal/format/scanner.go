package format

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/ipf/internal/cursor"
	"github.com/meigma/ipf/internal/ipftype"
)

// Scanner walks the record list one record at a time, in list order.
//
// A Scanner is single-use: once it reports io.EOF or an error it stays
// there. Replaying the list requires a new Scanner.
type Scanner struct {
	cur      *cursor.Cursor
	count    int
	consumed int
	err      error
}

// NewScanner returns a Scanner over the records described by t in an
// archive of the given size. Records are confined to the bytes before the
// trailer; a record that runs into the trailer is a format error.
func NewScanner(src io.ReaderAt, size int64, t Trailer, opts ...cursor.Option) (*Scanner, error) {
	c := cursor.New(src, RecordRegion(size), opts...)
	if t.Count == 0 {
		// An empty list is never read, so its offset is not checked.
		return &Scanner{cur: c}, nil
	}
	if err := c.Seek(int64(t.ListOffset)); err != nil {
		return nil, fmt.Errorf("%w: list offset %d: %w", ipftype.ErrFormat, t.ListOffset, err)
	}
	return &Scanner{cur: c, count: int(t.Count)}, nil
}

// Consumed returns how many records have been read.
func (s *Scanner) Consumed() int {
	return s.consumed
}

// Remaining returns how many records have not been read yet.
func (s *Scanner) Remaining() int {
	return s.count - s.consumed
}

// NextPath reads the next record and returns only its path.
// It returns io.EOF once every record has been consumed.
func (s *Scanner) NextPath() (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	path, err := s.readPath()
	if err != nil {
		return "", s.fail(err)
	}
	s.consumed++
	return path, nil
}

// NextRecord reads the next record in full.
// It returns io.EOF once every record has been consumed.
func (s *Scanner) NextRecord() (Entry, error) {
	if err := s.check(); err != nil {
		return Entry{}, err
	}
	e, err := s.readRecord()
	if err != nil {
		return Entry{}, s.fail(err)
	}
	s.consumed++
	return e, nil
}

func (s *Scanner) check() error {
	if s.err != nil {
		return s.err
	}
	if s.consumed >= s.count {
		return io.EOF
	}
	return nil
}

func (s *Scanner) fail(err error) error {
	s.err = fmt.Errorf("%w: record %d at offset %d: %w", ipftype.ErrFormat, s.consumed, s.cur.Position(), err)
	return s.err
}

func (s *Scanner) readPath() (string, error) {
	pathSize, err := s.cur.ReadU16()
	if err != nil {
		return "", fmt.Errorf("path size: %w", err)
	}
	if err := s.cur.Skip(skipAfterPathSize); err != nil {
		return "", noEOF(err)
	}
	fsNameSize, err := s.cur.ReadU16()
	if err != nil {
		return "", fmt.Errorf("fs name size: %w", err)
	}
	if err := s.cur.Skip(int64(fsNameSize)); err != nil {
		return "", noEOF(err)
	}
	path, err := s.cur.ReadString(int(pathSize))
	if err != nil {
		return "", fmt.Errorf("path: %w", err)
	}
	return path, nil
}

func (s *Scanner) readRecord() (Entry, error) {
	var e Entry
	var err error
	if e.PathSize, err = s.cur.ReadU16(); err != nil {
		return Entry{}, fmt.Errorf("path size: %w", err)
	}
	if e.CRC, err = s.cur.ReadU32(); err != nil {
		return Entry{}, fmt.Errorf("crc: %w", err)
	}
	if e.CompressedSize, err = s.cur.ReadU32(); err != nil {
		return Entry{}, fmt.Errorf("compressed size: %w", err)
	}
	if e.Size, err = s.cur.ReadU32(); err != nil {
		return Entry{}, fmt.Errorf("size: %w", err)
	}
	if e.Offset, err = s.cur.ReadU32(); err != nil {
		return Entry{}, fmt.Errorf("offset: %w", err)
	}
	if e.FSNameSize, err = s.cur.ReadU16(); err != nil {
		return Entry{}, fmt.Errorf("fs name size: %w", err)
	}
	if e.FSName, err = s.cur.ReadString(int(e.FSNameSize)); err != nil {
		return Entry{}, fmt.Errorf("fs name: %w", err)
	}
	if e.Path, err = s.cur.ReadString(int(e.PathSize)); err != nil {
		return Entry{}, fmt.Errorf("path: %w", err)
	}
	return e, nil
}

// noEOF maps a skip past the record region to a short read.
func noEOF(err error) error {
	if errors.Is(err, cursor.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, err)
	}
	return err
}
