package ipf

import (
	"io/fs"
	"time"
)

// Mode bits reported for archive entries. The archive stores no
// permissions, so every file is read-only.
const (
	fileMode fs.FileMode = 0o444
	dirMode              = fs.ModeDir | 0o555
)

// fileInfo implements fs.FileInfo for records.
type fileInfo struct {
	entry Entry
	name  string
	size  int64
}

func newFileInfo(e *Entry, name string) *fileInfo {
	return &fileInfo{entry: *e, name: name, size: int64(e.Size)}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return fileMode }
func (fi *fileInfo) ModTime() time.Time { return time.Time{} }
func (fi *fileInfo) IsDir() bool        { return false }

// Sys returns the underlying *Entry.
func (fi *fileInfo) Sys() any { return &fi.entry }

// dirInfo implements fs.FileInfo for synthetic directories.
type dirInfo struct {
	name string
}

func (di *dirInfo) Name() string       { return di.name }
func (di *dirInfo) Size() int64        { return 0 }
func (di *dirInfo) Mode() fs.FileMode  { return dirMode }
func (di *dirInfo) ModTime() time.Time { return time.Time{} }
func (di *dirInfo) IsDir() bool        { return true }
func (di *dirInfo) Sys() any           { return nil }

// dirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type dirEntry struct {
	info fs.FileInfo
}

func (de *dirEntry) Name() string               { return de.info.Name() }
func (de *dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *dirEntry) Info() (fs.FileInfo, error) { return de.info, nil }
func (de *dirEntry) String() string             { return fs.FormatDirEntry(de) }
