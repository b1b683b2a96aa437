package ipf

import (
	"fmt"
	"iter"

	"github.com/meigma/ipf/internal/format"
)

// Filter decides whether a listed path is yielded. A non-nil error stops
// the listing and is reported by Lister.Err.
type Filter func(Path) (bool, error)

// Lister enumerates the record paths under a directory, in list order.
//
// A Lister reads each record once. Rejected records are skipped, never
// re-offered, and exhaustion is permanent. A Lister is not safe for
// concurrent use.
type Lister struct {
	it     *format.Iter[string]
	dir    Path
	filter Filter
	cur    Path
	err    error
	done   bool
}

// ListEntries returns a Lister over every record whose path starts with
// dir. dir must be absolute; "/" lists every record. A nil filter accepts
// every path.
func (a *Archive) ListEntries(dir Path, filter Filter) (*Lister, error) {
	if !dir.IsAbs() {
		return nil, fmt.Errorf("list %q: %w: directory must be absolute", dir.String(), ErrInvalidPath)
	}
	s, err := a.newScanner()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return &Lister{
		it:     format.NewIter[string](s, format.PeekPath),
		dir:    dir,
		filter: filter,
	}, nil
}

// Next advances to the next accepted path. It returns false when the
// records are exhausted or the listing failed; Err tells them apart.
func (l *Lister) Next() bool {
	if l.done {
		return false
	}
	for l.it.Next() {
		p, err := ParsePath(Separator + l.it.Value())
		if err != nil {
			return l.fail(fmt.Errorf("list %s: record path: %w", l.dir, err))
		}
		if !p.StartsWith(l.dir) {
			continue
		}
		if l.filter != nil {
			ok, err := l.filter(p)
			if err != nil {
				return l.fail(fmt.Errorf("list %s: filter %s: %w", l.dir, p, err))
			}
			if !ok {
				continue
			}
		}
		l.cur = p
		return true
	}
	if err := l.it.Err(); err != nil {
		return l.fail(fmt.Errorf("list %s: %w", l.dir, err))
	}
	l.done = true
	l.cur = Path{}
	return false
}

// Path returns the path accepted by the last successful Next.
func (l *Lister) Path() Path {
	return l.cur
}

// Err returns the error that ended the listing, if any.
func (l *Lister) Err() error {
	return l.err
}

// Stop ends the listing early.
func (l *Lister) Stop() {
	if !l.done {
		l.it.Stop()
		l.done = true
		l.cur = Path{}
	}
}

// All returns an iterator over the remaining paths. A failure is yielded
// once as the final element.
func (l *Lister) All() iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		for l.Next() {
			if !yield(l.cur, nil) {
				l.Stop()
				return
			}
		}
		if l.err != nil {
			yield(Path{}, l.err)
		}
	}
}

func (l *Lister) fail(err error) bool {
	l.it.Stop()
	l.err = err
	l.done = true
	l.cur = Path{}
	return false
}

// List collects every path under dir accepted by filter.
func (a *Archive) List(dir Path, filter Filter) ([]Path, error) {
	l, err := a.ListEntries(dir, filter)
	if err != nil {
		return nil, err
	}
	var paths []Path
	for l.Next() {
		paths = append(paths, l.Path())
	}
	return paths, l.Err()
}

// Entries returns an iterator over the records under dir, in list order
// and including duplicates. A failure is yielded once as the final element.
func (a *Archive) Entries(dir Path) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if !dir.IsAbs() {
			yield(Entry{}, fmt.Errorf("entries %q: %w: directory must be absolute", dir.String(), ErrInvalidPath))
			return
		}
		s, err := a.newScanner()
		if err != nil {
			yield(Entry{}, fmt.Errorf("entries %s: %w", dir, err))
			return
		}

		it := format.NewIter[Entry](s, format.FullRecord)
		defer it.Stop()
		for it.Next() {
			e := it.Value()
			p, err := ParsePath(e.AbsPath())
			if err != nil {
				yield(Entry{}, fmt.Errorf("entries %s: record path: %w", dir, err))
				return
			}
			if !p.StartsWith(dir) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("entries %s: %w", dir, err))
		}
	}
}
