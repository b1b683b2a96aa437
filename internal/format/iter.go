package format

import "io"

// Advance reads one record from a Scanner and projects it to T.
// PeekPath and FullRecord are the two projections the archive uses.
type Advance[T any] func(*Scanner) (T, error)

// PeekPath advances by one record, returning only its path.
func PeekPath(s *Scanner) (string, error) {
	return s.NextPath()
}

// FullRecord advances by one record, returning every field.
func FullRecord(s *Scanner) (Entry, error) {
	return s.NextRecord()
}

type iterState uint8

const (
	iterReady iterState = iota
	iterDone
	iterFailed
)

// Iter drives a Scanner with a fixed Advance projection.
//
// Next moves to the following record and reports whether one was read.
// Exhaustion and failure are terminal: a stopped Iter never reads again.
type Iter[T any] struct {
	scanner *Scanner
	advance Advance[T]
	state   iterState
	value   T
	err     error
}

// NewIter returns an Iter reading s through advance.
func NewIter[T any](s *Scanner, advance Advance[T]) *Iter[T] {
	return &Iter[T]{scanner: s, advance: advance}
}

// Next reads the next record. It returns false when the list is exhausted
// or reading failed; Err distinguishes the two.
func (it *Iter[T]) Next() bool {
	if it.state != iterReady {
		return false
	}
	v, err := it.advance(it.scanner)
	if err == io.EOF {
		it.stop(iterDone, nil)
		return false
	}
	if err != nil {
		it.stop(iterFailed, err)
		return false
	}
	it.value = v
	return true
}

// Value returns the record read by the last successful Next.
func (it *Iter[T]) Value() T {
	return it.value
}

// Err returns the error that stopped the iteration, if any.
func (it *Iter[T]) Err() error {
	return it.err
}

// Stop ends the iteration early. Later calls to Next return false.
func (it *Iter[T]) Stop() {
	if it.state == iterReady {
		it.stop(iterDone, nil)
	}
}

func (it *Iter[T]) stop(state iterState, err error) {
	var zero T
	it.state = state
	it.value = zero
	it.err = err
}
