package ipf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// backing stores the decompressed bytes of one Content.
type backing interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Size() (int64, error)
	// Release frees the storage. It is called exactly once.
	Release() error
	Kind() string
}

var errNegativeOffset = errors.New("negative offset")

// scratch is an in-memory backing.
type scratch struct {
	buf []byte
}

func newScratch(capacity int) *scratch {
	return &scratch{buf: make([]byte, 0, capacity)}
}

func (s *scratch) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *scratch) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	end := off + int64(len(p))
	if end > int64(len(s.buf)) {
		s.grow(end)
	}
	return copy(s.buf[off:], p), nil
}

func (s *scratch) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("truncate to %d: negative size", size)
	}
	if size <= int64(len(s.buf)) {
		s.buf = s.buf[:size]
		return nil
	}
	s.grow(size)
	return nil
}

// grow extends the buffer to size with zero bytes.
func (s *scratch) grow(size int64) {
	n := int(size) - len(s.buf)
	if int(size) <= cap(s.buf) {
		tail := s.buf[len(s.buf):size]
		clear(tail)
		s.buf = s.buf[:size]
		return
	}
	s.buf = append(s.buf, make([]byte, n)...)
}

func (s *scratch) Size() (int64, error) { return int64(len(s.buf)), nil }

func (s *scratch) Release() error {
	s.buf = nil
	return nil
}

func (s *scratch) Kind() string { return "memory" }

// tempFile is a backing stored in a temporary file that is removed on
// release.
type tempFile struct {
	file *os.File
	once sync.Once
	err  error
}

// newTempFile creates a temporary file in dir named after the record path.
func newTempFile(dir, recordPath string) (*tempFile, error) {
	f, err := os.CreateTemp(dir, "ipf-*"+tempSuffix(recordPath))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &tempFile{file: f}, nil
}

// tempSuffix flattens a record path into a file name fragment.
func tempSuffix(recordPath string) string {
	return strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_").Replace(recordPath)
}

func (t *tempFile) ReadAt(p []byte, off int64) (int, error) {
	return t.file.ReadAt(p, off)
}

func (t *tempFile) WriteAt(p []byte, off int64) (int, error) {
	return t.file.WriteAt(p, off)
}

func (t *tempFile) Truncate(size int64) error {
	return t.file.Truncate(size)
}

func (t *tempFile) Size() (int64, error) {
	info, err := t.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Release closes and removes the file. A removal failure is joined after
// the close failure.
func (t *tempFile) Release() error {
	t.once.Do(func() {
		name := t.file.Name()
		closeErr := t.file.Close()
		var removeErr error
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			removeErr = fmt.Errorf("remove temp file: %w", err)
		}
		t.err = errors.Join(closeErr, removeErr)
	})
	return t.err
}

func (t *tempFile) Kind() string { return "file" }

// Name returns the temporary file path.
func (t *tempFile) Name() string { return t.file.Name() }
