package ipf

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"slices"
	"strings"

	"github.com/meigma/ipf/internal/format"
)

// Open implements fs.FS.
//
// Names follow fs.ValidPath and map to absolute virtual paths: "." is the
// root and "ui/icon.png" is "/ui/icon.png". A record opens as a read-only
// *Content that must be closed. Directories are synthesized from record
// paths; the archive does not store them.
func (a *Archive) Open(name string) (fs.File, error) {
	p, err := pathFromFS("open", name)
	if err != nil {
		return nil, err
	}

	if !p.IsRoot() {
		e, err := a.Lookup(p)
		if err == nil {
			c, err := a.OpenContent(e, ReadOnly)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: err}
			}
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}

	entries, found, err := a.children(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if !found && !p.IsRoot() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &openDir{path: p, entries: entries}, nil
}

// Stat implements fs.StatFS.
//
// Stat returns file info for the named record without decompressing it.
// For directories, Stat returns synthetic directory info.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	p, err := pathFromFS("stat", name)
	if err != nil {
		return nil, err
	}

	if !p.IsRoot() {
		e, err := a.Lookup(p)
		if err == nil {
			return newFileInfo(&e, p.base()), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}

	_, found, err := a.children(p)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if !found && !p.IsRoot() {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return &dirInfo{name: dirName(p)}, nil
}

// ReadFile implements fs.ReadFileFS.
//
// ReadFile decompresses the named record into memory without creating a
// Content. When caching is enabled, concurrent calls for the same record
// share one inflate.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	p, err := pathFromFS("readfile", name)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
	}

	e, err := a.Lookup(p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, found, dirErr := a.children(p); dirErr == nil && found {
				return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
			}
		}
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	if err := a.inflater.Validate(&e); err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}

	var buf bytes.Buffer
	buf.Grow(int(e.Size))
	if err := a.materialize(&e, &buf); err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return buf.Bytes(), nil
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns the immediate children of the named directory, sorted by
// name. When a name occurs more than once, the first record in list order
// wins.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := pathFromFS("readdir", name)
	if err != nil {
		return nil, err
	}

	entries, found, err := a.children(p)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !found && !p.IsRoot() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

var errIsDir = errors.New("is a directory")

// children scans the record list once and returns the immediate children
// of dir. found reports whether any record lies below dir.
func (a *Archive) children(dir Path) (entries []fs.DirEntry, found bool, err error) {
	s, err := a.newScanner()
	if err != nil {
		return nil, false, err
	}

	depth := dir.NameCount()
	seen := make(map[string]struct{})
	it := format.NewIter[Entry](s, format.FullRecord)
	for it.Next() {
		e := it.Value()
		p, err := ParsePath(e.AbsPath())
		if err != nil {
			it.Stop()
			return nil, false, err
		}
		segs := p.segments()
		if len(segs) <= depth || !p.StartsWith(dir) {
			continue
		}
		found = true
		name := segs[depth]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if len(segs) == depth+1 {
			entries = append(entries, &dirEntry{info: newFileInfo(&e, name)})
		} else {
			entries = append(entries, &dirEntry{info: &dirInfo{name: name}})
		}
	}
	if err := it.Err(); err != nil {
		return nil, false, err
	}

	slices.SortFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries, found, nil
}

func dirName(p Path) string {
	if p.IsRoot() {
		return "."
	}
	return p.base()
}

// openDir implements fs.File and fs.ReadDirFile for synthetic directories.
type openDir struct {
	path    Path
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path.fsName(), Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return &dirInfo{name: dirName(d.path)}, nil
}

func (d *openDir) Close() error {
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return slices.Clone(rest[:n]), nil
}
