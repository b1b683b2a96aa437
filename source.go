package ipf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"
)

// mmapSource serves a local archive from a read-only memory map.
type mmapSource struct {
	r        *mmap.ReaderAt
	sourceID string
}

// ReadAt implements io.ReaderAt.
func (s *mmapSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

// Size returns the mapped length.
func (s *mmapSource) Size() int64 {
	return int64(s.r.Len())
}

// SourceID returns a stable identifier for the file content.
func (s *mmapSource) SourceID() string {
	return s.sourceID
}

// Close unmaps the file.
func (s *mmapSource) Close() error {
	return s.r.Close()
}

// fileSource wraps *os.File to implement ByteSource.
// It is used when the file cannot be memory-mapped.
type fileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

// ReadAt implements io.ReaderAt.
func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the total size of the file.
func (s *fileSource) Size() int64 {
	return s.size
}

// SourceID returns a stable identifier for the file content.
func (s *fileSource) SourceID() string {
	return s.sourceID
}

// Close closes the file.
func (s *fileSource) Close() error {
	return s.file.Close()
}

type closingSource interface {
	ByteSource
	Close() error
}

// openSource maps path, falling back to positioned reads on the open file.
func openSource(path string) (closingSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	id := fileSourceID(path, info)

	if r, err := mmap.Open(path); err == nil {
		return &mmapSource{r: r, sourceID: id}, nil
	}

	f, err := os.Open(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &fileSource{file: f, size: info.Size(), sourceID: id}, nil
}

func fileSourceID(path string, info os.FileInfo) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("file:%s:%d:%d", absPath, info.Size(), info.ModTime().UnixNano())
}

// Open opens the archive file at path.
//
// The file is memory-mapped when possible. The returned Archive owns the
// file and releases it on Close.
func Open(path string, opts ...Option) (*Archive, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithName(filepath.Base(path))}, opts...)
	a, err := New(src, opts...)
	if err != nil {
		return nil, errors.Join(err, src.Close())
	}
	a.closer = src
	return a, nil
}

// Interface compliance for the local sources.
var (
	_ ByteSource = (*mmapSource)(nil)
	_ ByteSource = (*fileSource)(nil)
)
