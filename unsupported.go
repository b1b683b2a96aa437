package ipf

import "io/fs"

// The archive is immutable. The operations below exist so callers adapting
// an Archive to a writable filesystem interface get a uniform error; each
// returns an *fs.PathError wrapping ErrUnsupported.

// Create always fails: records cannot be added.
func (a *Archive) Create(name string) (fs.File, error) {
	return nil, unsupported("create", name)
}

// Remove always fails: records cannot be deleted.
func (a *Archive) Remove(name string) error {
	return unsupported("remove", name)
}

// Rename always fails: records cannot be moved.
func (a *Archive) Rename(oldname, _ string) error {
	return unsupported("rename", oldname)
}

// Symlink always fails: the format has no links.
func (a *Archive) Symlink(_, newname string) error {
	return unsupported("symlink", newname)
}

// Watch always fails: an immutable archive produces no change events.
func (a *Archive) Watch(name string) error {
	return unsupported("watch", name)
}

func unsupported(op, name string) error {
	return &fs.PathError{Op: op, Path: name, Err: ErrUnsupported}
}
