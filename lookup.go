package ipf

import (
	"fmt"

	"github.com/meigma/ipf/internal/format"
)

// Lookup returns the first record, in list order, whose absolute path
// equals p. It returns an error matching ErrNotFound when no record
// matches; a relative path never matches.
func (a *Archive) Lookup(p Path) (Entry, error) {
	if !p.IsAbs() || p.IsRoot() {
		return Entry{}, fmt.Errorf("lookup %q: %w", p.String(), ErrNotFound)
	}
	s, err := a.newScanner()
	if err != nil {
		return Entry{}, fmt.Errorf("lookup %s: %w", p, err)
	}

	target := p.String()
	it := format.NewIter[Entry](s, format.FullRecord)
	for it.Next() {
		e := it.Value()
		if e.AbsPath() == target {
			it.Stop()
			return e, nil
		}
	}
	if err := it.Err(); err != nil {
		return Entry{}, fmt.Errorf("lookup %s: %w", p, err)
	}
	return Entry{}, fmt.Errorf("lookup %s: %w", p, ErrNotFound)
}

// LookupString parses s and looks it up.
func (a *Archive) LookupString(s string) (Entry, error) {
	p, err := ParsePath(s)
	if err != nil {
		return Entry{}, fmt.Errorf("lookup %q: %w", s, err)
	}
	return a.Lookup(p)
}
