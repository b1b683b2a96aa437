package ipf

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Separator delimits virtual path segments.
const Separator = "/"

// Path is a virtual path inside an archive.
//
// A path is either the root "/", an absolute path such as "/ui/icon.png", or
// a relative path such as "ui/icon.png". Each segment is one or more of
// [A-Za-z0-9_-], optionally followed by a single ".ext" of the same
// characters. Path is a comparable value type: == and map keys use the
// serialized form, as do Equal and Compare.
type Path struct {
	raw string
	abs bool
}

// rootPath is the absolute path with no segments.
var rootPath = Path{raw: Separator, abs: true}

// RootPath returns the root path "/".
func RootPath() Path {
	return rootPath
}

// ParsePath parses s as a virtual path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if s == Separator {
		return rootPath, nil
	}

	abs := strings.HasPrefix(s, Separator)
	body := s
	if abs {
		body = s[1:]
	}
	segs := strings.Split(body, Separator)
	for _, seg := range segs {
		if err := validSegment(seg); err != nil {
			return Path{}, fmt.Errorf("%w: %q: %w", ErrInvalidPath, s, err)
		}
	}
	return Path{raw: s, abs: abs}, nil
}

// MustParsePath is like ParsePath but panics if s is not a valid path.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// validSegment checks one segment against name("." ext)?.
func validSegment(seg string) error {
	if seg == "" {
		return errors.New("empty segment")
	}
	name, ext, hasExt := strings.Cut(seg, ".")
	if !validName(name) {
		return fmt.Errorf("invalid segment %q", seg)
	}
	if hasExt && !validName(ext) {
		if strings.Contains(ext, ".") {
			return fmt.Errorf("segment %q has more than one extension", seg)
		}
		return fmt.Errorf("invalid extension in segment %q", seg)
	}
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// segments returns the path's segments, not counting the root.
func (p Path) segments() []string {
	body := p.raw
	if p.abs {
		body = body[len(Separator):]
	}
	if body == "" {
		return nil
	}
	return strings.Split(body, Separator)
}

// base returns the last segment, or "" for the root.
func (p Path) base() string {
	if p.IsRoot() {
		return ""
	}
	return p.raw[strings.LastIndex(p.raw, Separator)+1:]
}

// IsAbs reports whether the path starts at the root.
func (p Path) IsAbs() bool {
	return p.abs
}

// IsRoot reports whether p is "/".
func (p Path) IsRoot() bool {
	return p.abs && p.raw == Separator
}

// Root returns "/" for an absolute path. It reports false for a relative path.
func (p Path) Root() (Path, bool) {
	if !p.abs {
		return Path{}, false
	}
	return rootPath, true
}

// NameCount returns the number of segments, not counting the root.
func (p Path) NameCount() int {
	return len(p.segments())
}

// Name returns segment i as a relative single-segment path.
func (p Path) Name(i int) (Path, error) {
	segs := p.segments()
	if i < 0 || i >= len(segs) {
		return Path{}, fmt.Errorf("name %d of %q: %w", i, p.raw, ErrPathRange)
	}
	return Path{raw: segs[i]}, nil
}

// Subpath returns the segments [begin, end) as a new path. The result is
// absolute only when p is absolute and begin is 0.
func (p Path) Subpath(begin, end int) (Path, error) {
	segs := p.segments()
	if begin < 0 || end > len(segs) || begin >= end {
		return Path{}, fmt.Errorf("subpath [%d, %d) of %q: %w", begin, end, p.raw, ErrPathRange)
	}
	abs := p.abs && begin == 0
	return newPath(abs, segs[begin:end]), nil
}

// StartsWith reports whether both paths are absolute and other's segments
// are a prefix of p's. Comparison is exact and case-sensitive.
func (p Path) StartsWith(other Path) bool {
	if !p.abs || !other.abs {
		return false
	}
	mine, theirs := p.segments(), other.segments()
	if len(theirs) > len(mine) {
		return false
	}
	for i, seg := range theirs {
		if mine[i] != seg {
			return false
		}
	}
	return true
}

// FileName returns the last segment as a relative path. It reports false
// for the root.
func (p Path) FileName() (Path, bool) {
	if p.IsRoot() || p.raw == "" {
		return Path{}, false
	}
	return Path{raw: p.base()}, true
}

// Parent returns p without its last segment. The parent of "/a" is "/";
// the root and single-segment relative paths have no parent.
func (p Path) Parent() (Path, bool) {
	if p.IsRoot() || p.raw == "" {
		return Path{}, false
	}
	i := strings.LastIndex(p.raw, Separator)
	switch {
	case i < 0:
		return Path{}, false
	case i == 0:
		return rootPath, true
	}
	return Path{raw: p.raw[:i], abs: p.abs}, true
}

// Join appends name, which may hold several segments, to p.
func (p Path) Join(name string) (Path, error) {
	if p.IsRoot() {
		return ParsePath(Separator + name)
	}
	return ParsePath(p.raw + Separator + name)
}

// String returns the serialized path.
func (p Path) String() string {
	return p.raw
}

// Equal reports whether p and other serialize identically.
func (p Path) Equal(other Path) bool {
	return p.raw == other.raw
}

// Compare orders paths by their serialized form.
func (p Path) Compare(other Path) int {
	return strings.Compare(p.raw, other.raw)
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// fsName returns the fs.FS form of an absolute path: "." for the root and
// the segments without a leading slash otherwise.
func (p Path) fsName() string {
	if p.IsRoot() {
		return "."
	}
	return strings.TrimPrefix(p.raw, Separator)
}

// pathFromFS converts an fs.FS name to an absolute path.
func pathFromFS(op, name string) (Path, error) {
	if !fs.ValidPath(name) {
		return Path{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return rootPath, nil
	}
	p, err := ParsePath(Separator + name)
	if err != nil {
		// No record can have a path outside the grammar.
		return Path{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return p, nil
}

func newPath(abs bool, segs []string) Path {
	raw := strings.Join(segs, Separator)
	if abs {
		raw = Separator + raw
	}
	return Path{raw: raw, abs: abs}
}
